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

package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/conf"
	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/engine/router"
	"github.com/go-arcade/gatekeeper/internal/engine/service"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram/telegramtest"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/database"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const testChannel = "-1001234567890"

func newTestApp(t *testing.T) (*App, *repo.Repositories, *telegramtest.Fake) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "gatekeeper.db"))
	require.NoError(t, err)

	appConf := &conf.AppConfig{
		Telegram: telegram.Config{ChannelID: testChannel},
		Access:   service.DefaultAccessConfig(),
	}
	repos := repo.NewRepositories(db)
	platform := telegramtest.New()
	metricsServer := metrics.NewServer(metrics.MetricsConfig{})
	services := service.NewServices(repos, platform, cache.NewFastCache(cache.FastCacheConfig{}),
		metrics.NewNopAccessMetrics(), appConf.Telegram, appConf.Access, nil)

	scheduler, err := ProvideScheduler(services, appConf.Access, metrics.NewCronMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)

	sd := ProvideShutdownManager()
	rt := router.NewRouter(&appConf.Http, services, metricsServer, sd)
	app, cleanup, err := NewApp(rt, services, platform, scheduler, metricsServer, sd, zap.NewNop(), sdktrace.NewTracerProvider(), appConf)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = scheduler.Stop(context.Background())
		cleanup()
	})
	return app, repos, platform
}

func TestProvideSchedulerRegistersJobs(t *testing.T) {
	app, _, _ := newTestApp(t)

	var names []string
	for _, e := range app.Cron.Entries() {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{JobReconcile, JobInviteCleanup}, names)
}

func TestProvideSchedulerRejectsBadSpec(t *testing.T) {
	app, _, _ := newTestApp(t)
	access := service.DefaultAccessConfig()
	access.ReconcileSpec = "not a spec"

	_, err := ProvideScheduler(app.Services, access, metrics.NewCronMetrics(prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestStartSweepsExpiredEntitlements(t *testing.T) {
	app, repos, platform := newTestApp(t)
	ctx := context.Background()

	// left behind by a previous process
	userID := int64(5150)
	require.NoError(t, repos.Entitlement.Create(ctx, &model.Entitlement{
		EntitlementID:  "01STALE",
		SubscriberID:   "sub-stale",
		PlatformUserID: &userID,
		ChannelID:      testChannel,
		Status:         statemachine.EntitlementActive,
		ExpiresAt:      time.Now().Add(-time.Minute),
		Duration:       60,
		ConfirmedAt:    time.Now().Add(-2 * time.Minute),
	}))

	platform.SetMember(1, telegram.MemberAdministrator)
	require.NoError(t, app.Start(ctx))

	ent, err := repos.Entitlement.GetByEntitlementID(ctx, "01STALE")
	require.NoError(t, err)
	assert.Equal(t, statemachine.EntitlementExpired, ent.Status)
	assert.Equal(t, 1, platform.Count("banChatMember"))
	assert.Equal(t, 1, platform.Count("unbanChatMember"))

	channels, err := repos.Channel.ListConnected(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, model.BotStatusConnected, channels[0].BotStatus)
	assert.True(t, app.Services.Registry.IsManaged(testChannel))
}

func TestShutdownDrains(t *testing.T) {
	app, _, _ := newTestApp(t)
	require.NoError(t, app.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	app.shutdown(cancel)

	assert.True(t, app.Shutdown.IsShuttingDown())
	assert.Error(t, ctx.Err())
}
