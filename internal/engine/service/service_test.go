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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram/telegramtest"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/database"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/retry"
	"github.com/stretchr/testify/require"
)

const testChannel = "-1001234567890"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	repos    *repo.Repositories
	platform *telegramtest.Fake
	cache    cache.ICache
	clock    *fakeClock
	svc      *Services
	tg       telegram.Config
	access   AccessConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "gatekeeper.db"))
	require.NoError(t, err)

	env := &testEnv{
		repos:    repo.NewRepositories(db),
		platform: telegramtest.New(),
		cache:    cache.NewFastCache(cache.FastCacheConfig{}),
		clock:    newFakeClock(),
		tg: telegram.Config{
			ChannelID: testChannel,
			AdminIDs:  []int64{1},
		},
		access: AccessConfig{
			ReconcileRate:       1000,
			ReconcileBurst:      10,
			ReconcileLock:       true,
			CheckExpiryCacheTTL: 30,
		},
	}
	env.svc = env.build()
	t.Cleanup(func() { env.svc.Timer.Stop() })
	return env
}

// build wires a fresh set of services over the same database, as a restarted
// process would.
func (e *testEnv) build() *Services {
	svc := NewServices(e.repos, e.platform, e.cache, metrics.NewNopAccessMetrics(), e.tg, e.access, e.clock.Now)
	svc.Invite.backoff = retry.Fixed(0)
	return svc
}

// admit issues an anonymous link and has userID join with it.
func (e *testEnv) admit(t *testing.T, userID int64, duration time.Duration) *Decision {
	t.Helper()
	ctx := context.Background()
	res, err := e.svc.Invite.Issue(ctx, IssueRequest{DurationSeconds: int64(duration / time.Second)})
	require.NoError(t, err)
	dec, err := e.svc.Join.Validate(ctx, JoinRequest{
		InviteLink:     res.Link,
		PlatformUserID: userID,
		ChatID:         testChannel,
		UserInfo:       model.UserInfo{FirstName: "Ann"},
	})
	require.NoError(t, err)
	require.True(t, dec.Approve)
	return dec
}

func (e *testEnv) entitlement(t *testing.T, id string) *model.Entitlement {
	t.Helper()
	ent, err := e.repos.Entitlement.GetByEntitlementID(context.Background(), id)
	require.NoError(t, err)
	return ent
}
