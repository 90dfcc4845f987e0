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
	"sync"
	"testing"
	"time"

	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevoke_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dec := env.admit(t, 42, time.Hour)

	require.NoError(t, env.svc.Revoker.Revoke(ctx, dec.EntitlementID, TriggerManual))
	require.NoError(t, env.svc.Revoker.Revoke(ctx, dec.EntitlementID, TriggerManual))
	require.NoError(t, env.svc.Revoker.Revoke(ctx, dec.EntitlementID, TriggerReconcile))

	assert.Equal(t, 1, env.platform.Count("banChatMember"))
	assert.Equal(t, 1, env.platform.Count("unbanChatMember"))
	ent := env.entitlement(t, dec.EntitlementID)
	assert.Equal(t, statemachine.EntitlementRevoked, ent.Status)
	assert.Equal(t, string(TriggerManual), ent.EndReason)

	_, _, ok := env.svc.Timer.Pending(42)
	assert.False(t, ok)
}

func TestRevoke_UnknownEntitlement(t *testing.T) {
	env := newTestEnv(t)
	err := env.svc.Revoker.Revoke(context.Background(), "missing", TriggerManual)
	assert.ErrorIs(t, err, ErrEntitlementNotFound)
}

func TestRevoke_TimerFiresAtExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dec := env.admit(t, 42, time.Second)

	require.Eventually(t, func() bool {
		return env.platform.Count("unbanChatMember") == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return env.entitlement(t, dec.EntitlementID).Status == statemachine.EntitlementExpired
	}, time.Second, 10*time.Millisecond)

	env.clock.Advance(2 * time.Second)
	res, err := env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
	assert.Equal(t, 1, env.platform.Count("banChatMember"))

	sub, err := env.repos.Subscriber.GetByPlatformUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, statemachine.JoinExpired, sub.JoinStatus)
}

func TestRevoke_TimerAndReconcilerRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dec := env.admit(t, 42, time.Hour)
	env.clock.Advance(time.Hour + time.Second)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, env.svc.Revoker.Revoke(ctx, dec.EntitlementID, TriggerTimer))
	}()
	go func() {
		defer wg.Done()
		_, err := env.svc.Reconciler.Sweep(ctx)
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Equal(t, 1, env.platform.Count("banChatMember"))
	assert.Equal(t, 1, env.platform.Count("unbanChatMember"))
	assert.Equal(t, statemachine.EntitlementExpired, env.entitlement(t, dec.EntitlementID).Status)
	assert.Equal(t, 0, env.svc.Timer.Len())
}

func TestRevoke_SupersededEntitlementExpiresWithoutRemoval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.admit(t, 42, time.Hour)
	second := env.admit(t, 42, 2*time.Hour)

	env.clock.Advance(time.Hour + time.Second)
	res, err := env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Due)
	assert.Equal(t, 1, res.Revoked)

	assert.Equal(t, 0, env.platform.Count("banChatMember"))
	old := env.entitlement(t, first.EntitlementID)
	assert.Equal(t, statemachine.EntitlementExpired, old.Status)
	assert.Equal(t, "superseded", old.EndReason)
	assert.Equal(t, statemachine.EntitlementActive, env.entitlement(t, second.EntitlementID).Status)

	id, _, ok := env.svc.Timer.Pending(42)
	require.True(t, ok)
	assert.Equal(t, second.EntitlementID, id)
}

func TestRevoke_PlatformFailureLeavesEntitlementActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dec := env.admit(t, 42, time.Hour)
	env.clock.Advance(time.Hour + time.Second)

	env.platform.Fail("banChatMember", errors.New("bad gateway"))
	res, err := env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, statemachine.EntitlementActive, env.entitlement(t, dec.EntitlementID).Status)

	env.platform.Fail("banChatMember", nil)
	res, err = env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Revoked)
	assert.Equal(t, statemachine.EntitlementExpired, env.entitlement(t, dec.EntitlementID).Status)
}

func TestKick(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dec := env.admit(t, 42, time.Hour)

	n, err := env.svc.Revoker.Kick(ctx, 42, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, statemachine.EntitlementRevoked, env.entitlement(t, dec.EntitlementID).Status)

	sub, err := env.repos.Subscriber.GetByPlatformUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, statemachine.JoinKicked, sub.JoinStatus)

	v, err := env.svc.CheckExpiry.Check(ctx, 42)
	require.NoError(t, err)
	assert.True(t, v.ShouldKick)
}

func TestKick_UserWithoutEntitlement(t *testing.T) {
	env := newTestEnv(t)

	n, err := env.svc.Revoker.Kick(context.Background(), 77, "test")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	bans := env.platform.Calls("banChatMember")
	require.Len(t, bans, 1)
	assert.Equal(t, testChannel, bans[0].ChatID)
	assert.Equal(t, int64(77), bans[0].UserID)
}

func TestReconcile_RestartRecovery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dec := env.admit(t, 42, time.Hour)

	// a restart loses every in-memory timer
	env.svc.Timer.Stop()
	env.svc = env.build()
	assert.Equal(t, 0, env.svc.Timer.Len())

	env.clock.Advance(time.Hour + time.Second)
	res, err := env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Revoked)
	assert.Equal(t, statemachine.EntitlementExpired, env.entitlement(t, dec.EntitlementID).Status)
	assert.Equal(t, 1, env.platform.Count("banChatMember"))
}

func TestReconcile_HourScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dec := env.admit(t, 42, 3600*time.Second)

	env.clock.Advance(3599 * time.Second)
	res, err := env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)

	env.clock.Advance(2 * time.Second)
	res, err = env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Due)
	assert.Equal(t, 1, res.Revoked)

	assert.Equal(t, statemachine.EntitlementExpired, env.entitlement(t, dec.EntitlementID).Status)
	assert.Equal(t, 1, env.platform.Count("banChatMember"))
	assert.Equal(t, 1, env.platform.Count("unbanChatMember"))
}

func TestReconcile_SkipsWhenLockHeld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.admit(t, 42, time.Hour)
	env.clock.Advance(2 * time.Hour)

	lock, err := cache.AcquireLock(ctx, env.cache, reconcileLockKey, time.Minute)
	require.NoError(t, err)

	res, err := env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, env.platform.Count("banChatMember"))

	require.NoError(t, lock.Release(ctx))
	res, err = env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Revoked)
}
