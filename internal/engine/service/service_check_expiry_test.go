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
	"testing"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.svc.CheckExpiry.Check(ctx, 999)
	require.NoError(t, err)
	assert.True(t, v.ShouldKick)
	assert.Equal(t, ReasonUserNotFound, v.Reason)

	dec := env.admit(t, 42, time.Hour)
	v, err = env.svc.CheckExpiry.Check(ctx, 42)
	require.NoError(t, err)
	assert.False(t, v.ShouldKick)
	require.NotNil(t, v.ExpiresAt)
	assert.True(t, v.ExpiresAt.Equal(dec.ExpiresAt))

	// the cached expiry is judged against the current time
	env.clock.Advance(time.Hour)
	v, err = env.svc.CheckExpiry.Check(ctx, 42)
	require.NoError(t, err)
	assert.True(t, v.ShouldKick)
	assert.Equal(t, ReasonSubscriptionEnd, v.Reason)

	_, err = env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	v, err = env.svc.CheckExpiry.Check(ctx, 42)
	require.NoError(t, err)
	assert.True(t, v.ShouldKick)
	assert.Equal(t, ReasonNoSubscription, v.Reason)
}

func TestCheckExpiry_InvalidatedOnAdmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.svc.CheckExpiry.Check(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, ReasonUserNotFound, v.Reason)

	env.admit(t, 42, time.Hour)
	v, err = env.svc.CheckExpiry.Check(ctx, 42)
	require.NoError(t, err)
	assert.False(t, v.ShouldKick)
}

func TestCheckExpiry_PendingSubscriber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.svc.Payment.Confirm(ctx, model.PaymentConfirmedReq{SubscriberID: "sub-1", DurationSeconds: 60})
	require.NoError(t, err)
	_, err = env.svc.Join.Validate(ctx, JoinRequest{InviteLink: resp.Link, PlatformUserID: 42})
	require.NoError(t, err)

	// without a cache every check reads the database
	env.access.CheckExpiryCacheTTL = 0
	svc := env.build()
	defer svc.Timer.Stop()

	v, err := svc.CheckExpiry.Check(ctx, 42)
	require.NoError(t, err)
	assert.False(t, v.ShouldKick)

	env.clock.Advance(2 * time.Minute)
	v, err = svc.CheckExpiry.Check(ctx, 42)
	require.NoError(t, err)
	assert.True(t, v.ShouldKick)
	assert.Equal(t, ReasonNoSubscription, v.Reason)
}
