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

package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recorded struct {
	path string
	body map[string]any
}

func newTestServer(t *testing.T, handler func(method string, body map[string]any) (int, string)) (*Client, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		_ = sonic.Unmarshal(raw, &body)
		mu.Lock()
		reqs = append(reqs, recorded{path: r.URL.Path, body: body})
		mu.Unlock()

		method := r.URL.Path[len("/botTOKEN/"):]
		status, resp := handler(method, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)
	return NewClient(Config{Token: "TOKEN", APIBase: srv.URL}), &reqs
}

func TestCreateChatInviteLink(t *testing.T) {
	c, reqs := newTestServer(t, func(method string, _ map[string]any) (int, string) {
		assert.Equal(t, "createChatInviteLink", method)
		return 200, `{"ok":true,"result":{"invite_link":"https://t.me/+abc","creates_join_request":true,"expire_date":1700000000}}`
	})

	link, err := c.CreateChatInviteLink(context.Background(), "-1001", InviteLinkOptions{
		Name:               "sub-1",
		ExpireDate:         1700000000,
		CreatesJoinRequest: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+abc", link.InviteLink)
	assert.True(t, link.CreatesJoinRequest)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, "/botTOKEN/createChatInviteLink", got.path)
	assert.Equal(t, "-1001", got.body["chat_id"])
	assert.Equal(t, true, got.body["creates_join_request"])
	assert.EqualValues(t, 1700000000, got.body["expire_date"])
	assert.Equal(t, "sub-1", got.body["name"])
}

func TestBanAndUnban(t *testing.T) {
	c, reqs := newTestServer(t, func(string, map[string]any) (int, string) {
		return 200, `{"ok":true,"result":true}`
	})
	ctx := context.Background()

	require.NoError(t, c.BanChatMember(ctx, "-1001", 42))
	require.NoError(t, c.UnbanChatMember(ctx, "-1001", 42, true))

	require.Len(t, *reqs, 2)
	assert.Equal(t, "/botTOKEN/banChatMember", (*reqs)[0].path)
	assert.EqualValues(t, 42, (*reqs)[0].body["user_id"])
	assert.Equal(t, "/botTOKEN/unbanChatMember", (*reqs)[1].path)
	assert.Equal(t, true, (*reqs)[1].body["only_if_banned"])
}

func TestAPIError(t *testing.T) {
	c, _ := newTestServer(t, func(string, map[string]any) (int, string) {
		return 400, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
	})

	err := c.ApproveChatJoinRequest(context.Background(), "-1001", 42)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, "approveChatJoinRequest", apiErr.Method)
	assert.Contains(t, apiErr.Description, "chat not found")
	assert.False(t, IsRetryable(err))
}

func TestCallSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c, _ := newTestServer(t, func(method string, _ map[string]any) (int, string) {
		if method == "banChatMember" {
			return 200, `{"ok":true,"result":true}`
		}
		return 400, `{"ok":false,"error_code":400,"description":"Bad Request: HIDE_REQUESTER_MISSING"}`
	})
	ctx := context.Background()
	require.NoError(t, c.BanChatMember(ctx, "-1001", 42))
	require.Error(t, c.ApproveChatJoinRequest(ctx, "-1001", 42))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "telegram.banChatMember", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	assert.Equal(t, "telegram.approveChatJoinRequest", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	var code int64
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "telegram.error_code" {
			code = kv.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(400), code)
}

func TestRateLimitedIsRetryable(t *testing.T) {
	c, _ := newTestServer(t, func(string, map[string]any) (int, string) {
		return 429, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`
	})

	err := c.BanChatMember(context.Background(), "-1001", 42)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 3, apiErr.RetryAfter)
	assert.True(t, IsRetryable(err))
}

func TestGetUpdatesAndMember(t *testing.T) {
	c, _ := newTestServer(t, func(method string, _ map[string]any) (int, string) {
		switch method {
		case "getUpdates":
			return 200, `{"ok":true,"result":[{"update_id":7,"chat_join_request":{"chat":{"id":-1001,"type":"channel","title":"VIP"},"from":{"id":42,"first_name":"Ann"},"date":1,"invite_link":{"invite_link":"https://t.me/+abc","creates_join_request":true}}}]}`
		case "getChatMember":
			return 200, `{"ok":true,"result":{"status":"administrator","user":{"id":42,"first_name":"Ann"}}}`
		}
		return 404, `{"ok":false,"error_code":404,"description":"Not Found"}`
	})
	ctx := context.Background()

	updates, err := c.GetUpdates(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	req := updates[0].ChatJoinRequest
	require.NotNil(t, req)
	assert.EqualValues(t, 42, req.From.ID)
	assert.Equal(t, "https://t.me/+abc", req.InviteLink.InviteLink)

	member, err := c.GetChatMember(ctx, "-1001", 42)
	require.NoError(t, err)
	assert.True(t, member.IsAdmin())
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(Config{})
	err := c.SendMessage(context.Background(), "1", "hi", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, IsRetryable(err))
}

func TestConfigIsAdmin(t *testing.T) {
	cfg := Config{AdminIDs: []int64{1, 2}}
	assert.True(t, cfg.IsAdmin(2))
	assert.False(t, cfg.IsAdmin(3))
	assert.Equal(t, 30, cfg.PollTimeoutSeconds())
}
