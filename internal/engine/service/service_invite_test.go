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

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestInvite_AnonymousLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Invite.Issue(ctx, IssueRequest{DurationSeconds: 1800})
	require.NoError(t, err)
	assert.Equal(t, testChannel, res.ChannelID)
	assert.Empty(t, res.EntitlementID)
	assert.Equal(t, 30*time.Minute, res.Duration)
	assert.True(t, res.ExpiresAt.Equal(env.clock.Now().Add(30*time.Minute)))

	token, err := env.repos.InviteToken.GetByLink(ctx, res.Link)
	require.NoError(t, err)
	assert.Nil(t, token.EntitlementID)
	assert.Equal(t, model.TokenSourceAdmin, token.Source)
	assert.Equal(t, int64(1800), token.Duration)
	assert.False(t, token.Used)
}

func TestInvite_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Invite.Issue(ctx, IssueRequest{})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = env.svc.Invite.Issue(ctx, IssueRequest{DurationSeconds: 60, ChannelID: "-1"})
	assert.ErrorIs(t, err, ErrChannelNotManaged)

	sub := "nobody"
	_, err = env.svc.Invite.Issue(ctx, IssueRequest{SubscriberID: &sub})
	assert.ErrorIs(t, err, ErrEntitlementNotFound)
	assert.Equal(t, 0, env.platform.Count("createChatInviteLink"))
}

func TestInvite_BySubscriberCapsAtEntitlementExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.svc.Payment.Confirm(ctx, model.PaymentConfirmedReq{SubscriberID: "sub-1", DurationSeconds: 600})
	require.NoError(t, err)

	sub := "sub-1"
	res, err := env.svc.Invite.Issue(ctx, IssueRequest{SubscriberID: &sub, DurationSeconds: 7200})
	require.NoError(t, err)
	assert.Equal(t, resp.EntitlementID, res.EntitlementID)
	assert.True(t, res.ExpiresAt.Equal(resp.ExpiresAt))
}

func TestInvite_RetriesTransientFailures(t *testing.T) {
	env := newTestEnv(t)
	env.platform.FailN("createChatInviteLink", &telegram.APIError{Method: "createChatInviteLink", Code: 502, Description: "Bad Gateway"}, 2)

	res, err := env.svc.Invite.Issue(context.Background(), IssueRequest{DurationSeconds: 60})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Link)
	assert.Equal(t, 3, env.platform.Count("createChatInviteLink"))
}

func TestInvite_PermanentFailure(t *testing.T) {
	env := newTestEnv(t)
	env.platform.Fail("createChatInviteLink", &telegram.APIError{Method: "createChatInviteLink", Code: 400, Description: "Bad Request: not enough rights"})

	_, err := env.svc.Invite.Issue(context.Background(), IssueRequest{DurationSeconds: 60})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 1, env.platform.Count("createChatInviteLink"))
}

func TestInvite_StoreExternal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, err := env.svc.Invite.StoreExternal(ctx, model.StoreTestLinkReq{
		Link:      "https://t.me/+external",
		ExpiresAt: env.clock.Now().Add(time.Hour),
		Duration:  120,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TokenSourceTest, token.Source)
	assert.Equal(t, testChannel, token.ChannelID)

	dec, err := env.svc.Join.Validate(ctx, JoinRequest{InviteLink: "https://t.me/+external", PlatformUserID: 5})
	require.NoError(t, err)
	ent := env.entitlement(t, dec.EntitlementID)
	assert.True(t, ent.ExpiresAt.Equal(env.clock.Now().Add(2*time.Minute)))

	_, err = env.svc.Invite.StoreExternal(ctx, model.StoreTestLinkReq{
		Link:      "https://t.me/+stale",
		ExpiresAt: env.clock.Now().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	// without an explicit duration the window runs to the link expiry
	token, err = env.svc.Invite.StoreExternal(ctx, model.StoreTestLinkReq{
		Link:      "https://t.me/+derived",
		ExpiresAt: env.clock.Now().Add(90 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(90), token.Duration)
}

func TestInvite_StoreExternalRejectsSubSecondWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Invite.StoreExternal(ctx, model.StoreTestLinkReq{
		Link:      "https://t.me/+almost-gone",
		ExpiresAt: env.clock.Now().Add(500 * time.Millisecond),
	})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = env.repos.InviteToken.GetByLink(ctx, "https://t.me/+almost-gone")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPayment_Confirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	confirmedAt := env.clock.Now().Add(-10 * time.Minute)

	resp, err := env.svc.Payment.Confirm(ctx, model.PaymentConfirmedReq{
		SubscriberID:    "sub-1",
		DurationSeconds: 3600,
		ConfirmedAt:     confirmedAt,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Link)
	assert.True(t, resp.ExpiresAt.Equal(confirmedAt.Add(time.Hour)))

	token, err := env.repos.InviteToken.GetByLink(ctx, resp.Link)
	require.NoError(t, err)
	require.NotNil(t, token.EntitlementID)
	assert.Equal(t, resp.EntitlementID, *token.EntitlementID)
	assert.Equal(t, model.TokenSourcePayment, token.Source)

	sub, err := env.repos.Subscriber.GetBySubscriberID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Nil(t, sub.PlatformUserID)
}

func TestPayment_ConfirmValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Payment.Confirm(ctx, model.PaymentConfirmedReq{DurationSeconds: 60})
	assert.ErrorIs(t, err, ErrEntitlementNotFound)

	_, err = env.svc.Payment.Confirm(ctx, model.PaymentConfirmedReq{SubscriberID: "s", DurationSeconds: 0})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = env.svc.Payment.Confirm(ctx, model.PaymentConfirmedReq{
		SubscriberID:    "s",
		DurationSeconds: 60,
		ConfirmedAt:     env.clock.Now().Add(-time.Hour),
	})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestPayment_ConfirmKeepsEntitlementWhenIssuanceFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.platform.Fail("createChatInviteLink", errors.New("connection reset"))

	resp, err := env.svc.Payment.Confirm(ctx, model.PaymentConfirmedReq{SubscriberID: "sub-1", DurationSeconds: 3600})
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Link)

	env.platform.Fail("createChatInviteLink", nil)
	sub := "sub-1"
	res, err := env.svc.Invite.Issue(ctx, IssueRequest{SubscriberID: &sub})
	require.NoError(t, err)
	assert.Equal(t, resp.EntitlementID, res.EntitlementID)
}

func TestInviteCleanup_Sweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stale, err := env.svc.Invite.Issue(ctx, IssueRequest{DurationSeconds: 60})
	require.NoError(t, err)
	used, err := env.svc.Invite.Issue(ctx, IssueRequest{DurationSeconds: 60})
	require.NoError(t, err)
	_, err = env.svc.Join.Validate(ctx, JoinRequest{InviteLink: used.Link, PlatformUserID: 42})
	require.NoError(t, err)
	fresh, err := env.svc.Invite.Issue(ctx, IssueRequest{DurationSeconds: 3600})
	require.NoError(t, err)
	env.platform.Reset()

	env.clock.Advance(2 * time.Minute)
	res, err := env.svc.InviteCleanup.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, int64(1), res.Deleted)

	revokes := env.platform.Calls("revokeChatInviteLink")
	require.Len(t, revokes, 1)
	assert.Equal(t, stale.Link, revokes[0].Arg)

	_, err = env.repos.InviteToken.GetByLink(ctx, stale.Link)
	assert.Error(t, err)
	_, err = env.repos.InviteToken.GetByLink(ctx, used.Link)
	assert.NoError(t, err)
	_, err = env.repos.InviteToken.GetByLink(ctx, fresh.Link)
	assert.NoError(t, err)
}
