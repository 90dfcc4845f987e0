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

// Package telegram is a Bot API client covering the channel-membership
// primitives gatekeeper depends on.
package telegram

import (
	"context"
	"errors"
	"fmt"
)

// Platform is the messaging platform gatekeeper drives. Client implements it
// over HTTP; telegramtest.Fake implements it in memory.
type Platform interface {
	CreateChatInviteLink(ctx context.Context, chatID string, opts InviteLinkOptions) (*ChatInviteLink, error)
	RevokeChatInviteLink(ctx context.Context, chatID, inviteLink string) error
	ApproveChatJoinRequest(ctx context.Context, chatID string, userID int64) error
	DeclineChatJoinRequest(ctx context.Context, chatID string, userID int64) error
	BanChatMember(ctx context.Context, chatID string, userID int64) error
	UnbanChatMember(ctx context.Context, chatID string, userID int64, onlyIfBanned bool) error
	GetChatMember(ctx context.Context, chatID string, userID int64) (*ChatMember, error)
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error)
	GetMe(ctx context.Context) (*User, error)
}

// ErrNotConfigured is returned by every call when no bot token is set.
var ErrNotConfigured = errors.New("telegram bot token is not configured")

// APIError is a response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %ds)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// IsRetryable reports whether the error is transient: transport failures,
// rate limiting and server errors. Client errors (bad request, forbidden)
// are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return !errors.Is(err, ErrNotConfigured) && !errors.Is(err, context.Canceled)
}
