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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	httpx "github.com/go-arcade/gatekeeper/pkg/http"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/trace"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const DefaultAPIBase = "https://api.telegram.org"

// Config holds the bot credentials and update-loop options.
type Config struct {
	Token       string  `mapstructure:"token"`
	APIBase     string  `mapstructure:"apiBase"`
	Timeout     int     `mapstructure:"timeout"` // seconds per call
	Debug       bool    `mapstructure:"debug"`
	Polling     bool    `mapstructure:"polling"`
	PollTimeout int     `mapstructure:"pollTimeout"` // seconds of getUpdates long polling
	ChannelID   string  `mapstructure:"channelId"`   // default channel
	AdminIDs    []int64 `mapstructure:"adminIds"`
}

func (c Config) callTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// PollTimeoutSeconds returns the getUpdates long-poll window.
func (c Config) PollTimeoutSeconds() int {
	if c.PollTimeout <= 0 {
		return 30
	}
	return c.PollTimeout
}

// IsAdmin reports whether userID is a configured bot administrator.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Client calls the Bot API. Each method POSTs a JSON body to
// <apiBase>/bot<token>/<method> and unwraps the ok/result envelope.
// Results are decoded with sonic.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	token   string
}

var _ Platform = (*Client)(nil)

// NewClient creates a Bot API client.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}
	return &Client{
		// deadlines come from per-call contexts so long polling can outlive them
		http: httpx.NewClient(httpx.ClientConfig{
			BaseURL: base + "/bot" + cfg.Token,
			Timeout: time.Hour,
			Debug:   cfg.Debug,
		}),
		timeout: cfg.callTimeout(),
		token:   cfg.Token,
	}
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call runs one Bot API method inside a client span. The URL carries the
// token and is never recorded.
func (c *Client) call(ctx context.Context, method string, payload any, out any, timeout time.Duration) (err error) {
	ctx, span := trace.StartSpan(ctx, "telegram."+method, oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	span.SetAttributes(attribute.String("telegram.method", method))
	defer func() {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			span.SetAttributes(attribute.Int("telegram.error_code", apiErr.Code))
		}
		trace.End(span, err)
	}()

	if c.token == "" {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var env envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&env).
		SetError(&env).
		Post(method)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !env.OK {
		apiErr := &APIError{
			Method:      method,
			Code:        env.ErrorCode,
			Description: env.Description,
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		log.Debugw("telegram call rejected", "method", method, "code", apiErr.Code, "description", apiErr.Description)
		return apiErr
	}
	if out != nil {
		if err := sonic.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) CreateChatInviteLink(ctx context.Context, chatID string, opts InviteLinkOptions) (*ChatInviteLink, error) {
	payload := map[string]any{
		"chat_id":              chatID,
		"creates_join_request": opts.CreatesJoinRequest,
	}
	if opts.Name != "" {
		payload["name"] = opts.Name
	}
	if opts.ExpireDate > 0 {
		payload["expire_date"] = opts.ExpireDate
	}
	var link ChatInviteLink
	if err := c.call(ctx, "createChatInviteLink", payload, &link, c.timeout); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *Client) RevokeChatInviteLink(ctx context.Context, chatID, inviteLink string) error {
	return c.call(ctx, "revokeChatInviteLink", map[string]any{
		"chat_id":     chatID,
		"invite_link": inviteLink,
	}, nil, c.timeout)
}

func (c *Client) ApproveChatJoinRequest(ctx context.Context, chatID string, userID int64) error {
	return c.call(ctx, "approveChatJoinRequest", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil, c.timeout)
}

func (c *Client) DeclineChatJoinRequest(ctx context.Context, chatID string, userID int64) error {
	return c.call(ctx, "declineChatJoinRequest", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil, c.timeout)
}

func (c *Client) BanChatMember(ctx context.Context, chatID string, userID int64) error {
	return c.call(ctx, "banChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil, c.timeout)
}

func (c *Client) UnbanChatMember(ctx context.Context, chatID string, userID int64, onlyIfBanned bool) error {
	return c.call(ctx, "unbanChatMember", map[string]any{
		"chat_id":        chatID,
		"user_id":        userID,
		"only_if_banned": onlyIfBanned,
	}, nil, c.timeout)
}

func (c *Client) GetChatMember(ctx context.Context, chatID string, userID int64) (*ChatMember, error) {
	var member ChatMember
	if err := c.call(ctx, "getChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, &member, c.timeout); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	return c.call(ctx, "sendMessage", payload, nil, c.timeout)
}

// GetUpdates long-polls for updates after offset. The call deadline is the
// poll window plus the regular call timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message", "chat_join_request", "chat_member"},
	}, &updates, c.timeout+time.Duration(timeoutSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", map[string]any{}, &me, c.timeout); err != nil {
		return nil, err
	}
	return &me, nil
}
