// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telegramtest provides an in-memory telegram.Platform.
package telegramtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
)

// Call records one platform invocation.
type Call struct {
	Method string
	ChatID string
	UserID int64
	Arg    string
}

// Fake records calls and returns the errors configured in Fail.
type Fake struct {
	mu      sync.Mutex
	calls   []Call
	fail    map[string]failure
	members map[int64]telegram.ChatMember
	updates [][]telegram.Update
	seq     atomic.Int64
}

var _ telegram.Platform = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		fail:    make(map[string]failure),
		members: make(map[int64]telegram.ChatMember),
	}
}

type failure struct {
	err       error
	remaining int // 0 means until cleared
}

// Fail makes method return err until cleared with a nil err.
func (f *Fake) Fail(method string, err error) {
	f.FailN(method, err, 0)
}

// FailN makes the next n calls to method return err. n <= 0 fails until
// cleared.
func (f *Fake) FailN(method string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	if n < 0 {
		n = 0
	}
	f.fail[method] = failure{err: err, remaining: n}
}

// SetMember sets what GetChatMember returns for userID.
func (f *Fake) SetMember(userID int64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[userID] = telegram.ChatMember{Status: status, User: telegram.User{ID: userID}}
}

// QueueUpdates appends a batch returned by the next GetUpdates call.
func (f *Fake) QueueUpdates(batch ...telegram.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, batch)
}

// Calls returns the recorded calls for method, or all calls when method is empty.
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of calls to method.
func (f *Fake) Count(method string) int {
	return len(f.Calls(method))
}

// Reset clears recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	fl, ok := f.fail[c.Method]
	if !ok {
		return nil
	}
	if fl.remaining > 0 {
		fl.remaining--
		if fl.remaining == 0 {
			delete(f.fail, c.Method)
		} else {
			f.fail[c.Method] = fl
		}
	}
	return fl.err
}

func (f *Fake) CreateChatInviteLink(_ context.Context, chatID string, opts telegram.InviteLinkOptions) (*telegram.ChatInviteLink, error) {
	if err := f.record(Call{Method: "createChatInviteLink", ChatID: chatID, Arg: opts.Name}); err != nil {
		return nil, err
	}
	return &telegram.ChatInviteLink{
		InviteLink:         fmt.Sprintf("https://t.me/+fake%06d", f.seq.Add(1)),
		Name:               opts.Name,
		CreatesJoinRequest: opts.CreatesJoinRequest,
		ExpireDate:         opts.ExpireDate,
	}, nil
}

func (f *Fake) RevokeChatInviteLink(_ context.Context, chatID, inviteLink string) error {
	return f.record(Call{Method: "revokeChatInviteLink", ChatID: chatID, Arg: inviteLink})
}

func (f *Fake) ApproveChatJoinRequest(_ context.Context, chatID string, userID int64) error {
	return f.record(Call{Method: "approveChatJoinRequest", ChatID: chatID, UserID: userID})
}

func (f *Fake) DeclineChatJoinRequest(_ context.Context, chatID string, userID int64) error {
	return f.record(Call{Method: "declineChatJoinRequest", ChatID: chatID, UserID: userID})
}

func (f *Fake) BanChatMember(_ context.Context, chatID string, userID int64) error {
	return f.record(Call{Method: "banChatMember", ChatID: chatID, UserID: userID})
}

func (f *Fake) UnbanChatMember(_ context.Context, chatID string, userID int64, _ bool) error {
	return f.record(Call{Method: "unbanChatMember", ChatID: chatID, UserID: userID})
}

func (f *Fake) GetChatMember(_ context.Context, chatID string, userID int64) (*telegram.ChatMember, error) {
	if err := f.record(Call{Method: "getChatMember", ChatID: chatID, UserID: userID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		m = telegram.ChatMember{Status: telegram.MemberLeft, User: telegram.User{ID: userID}}
	}
	return &m, nil
}

func (f *Fake) SendMessage(_ context.Context, chatID, text, _ string) error {
	return f.record(Call{Method: "sendMessage", ChatID: chatID, Arg: text})
}

// GetUpdates pops the next queued batch, or waits for ctx when none is queued.
func (f *Fake) GetUpdates(ctx context.Context, _ int64, _ int) ([]telegram.Update, error) {
	if err := f.record(Call{Method: "getUpdates"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if len(f.updates) > 0 {
		batch := f.updates[0]
		f.updates = f.updates[1:]
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *Fake) GetMe(context.Context) (*telegram.User, error) {
	if err := f.record(Call{Method: "getMe"}); err != nil {
		return nil, err
	}
	return &telegram.User{ID: 1, IsBot: true, FirstName: "gatekeeper", Username: "gatekeeper_bot"}, nil
}
