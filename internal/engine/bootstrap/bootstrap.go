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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-arcade/gatekeeper/internal/engine/conf"
	"github.com/go-arcade/gatekeeper/internal/engine/router"
	"github.com/go-arcade/gatekeeper/internal/engine/service"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/cron"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/safe"
	"github.com/go-arcade/gatekeeper/pkg/shutdown"
	"github.com/gofiber/fiber/v2"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	JobReconcile     = "reconcile"
	JobInviteCleanup = "invite-cleanup"
)

type App struct {
	HttpApp  *fiber.App
	Services *service.Services
	Platform telegram.Platform
	Cron     *cron.Scheduler
	Metrics  *metrics.Server
	Shutdown *shutdown.Manager
	Logger   *zap.Logger
	Tracer   *sdktrace.TracerProvider
	AppConf  *conf.AppConfig

	botDone chan struct{}
}

// InitAppFunc init app function type
type InitAppFunc func(configPath string) (*App, func(), error)

func NewApp(
	rt *router.Router,
	services *service.Services,
	platform telegram.Platform,
	scheduler *cron.Scheduler,
	metricsServer *metrics.Server,
	shutdownMgr *shutdown.Manager,
	logger *zap.Logger,
	tp *sdktrace.TracerProvider,
	appConf *conf.AppConfig,
) (*App, func(), error) {
	app := &App{
		HttpApp:  rt.Router(),
		Services: services,
		Platform: platform,
		Cron:     scheduler,
		Metrics:  metricsServer,
		Shutdown: shutdownMgr,
		Logger:   logger,
		Tracer:   tp,
		AppConf:  appConf,
	}

	cleanup := func() {
		services.Timer.Stop()
		_ = logger.Sync()
	}
	return app, cleanup, nil
}

// ProvideScheduler registers the background jobs on a stopped scheduler.
func ProvideScheduler(services *service.Services, access service.AccessConfig, m *metrics.CronMetrics) (*cron.Scheduler, error) {
	s := cron.New(cron.WithMetrics(m))
	if err := s.AddFunc(JobReconcile, access.ReconcileSpec, services.Reconciler.Job); err != nil {
		return nil, err
	}
	if err := s.AddFunc(JobInviteCleanup, access.InviteCleanupSpec, services.InviteCleanup.Job); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideShutdownManager provides the process drain flag.
func ProvideShutdownManager() *shutdown.Manager {
	return shutdown.NewManager()
}

// Bootstrap init app, return App instance and cleanup function
func Bootstrap(configFile string, initApp InitAppFunc) (*App, func(), error) {
	app, cleanup, err := initApp(configFile)
	if err != nil {
		return nil, nil, err
	}
	return app, cleanup, nil
}

// Start loads the managed channels and converges state left by a previous
// process before any traffic is served.
func (a *App) Start(ctx context.Context) error {
	if err := a.Services.Registry.Sync(ctx, a.Platform); err != nil {
		return fmt.Errorf("load channel registry: %w", err)
	}
	res, err := a.Services.Reconciler.Sweep(ctx)
	if err != nil {
		log.Warnw("startup sweep failed", "error", err)
	} else {
		log.Infow("startup sweep finished", "due", res.Due, "revoked", res.Revoked, "failed", res.Failed)
	}

	if err := a.Metrics.Start(); err != nil {
		return err
	}
	a.Cron.Start()
	return nil
}

// Run start app and wait for exit signal, then gracefully shutdown
func Run(app *App, cleanup func()) {
	defer cleanup()
	appConf := app.AppConf

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Errorw("startup failed", "error", err)
		return
	}

	if appConf.Telegram.Polling {
		app.botDone = make(chan struct{})
		safe.GoNamed("bot", func() {
			defer close(app.botDone)
			if err := app.Services.Bot.Run(ctx); err != nil {
				log.Errorw("bot loop stopped", "error", err)
			}
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	listenErr := make(chan error, 1)
	safe.GoNamed("http", func() {
		addr := fmt.Sprintf("%s:%d", appConf.Http.Host, appConf.Http.Port)
		log.Infow("HTTP listener started", "address", addr)
		var err error
		if appConf.Http.TLS.CertFile != "" && appConf.Http.TLS.KeyFile != "" {
			err = app.HttpApp.ListenTLS(addr, appConf.Http.TLS.CertFile, appConf.Http.TLS.KeyFile)
		} else {
			err = app.HttpApp.Listen(addr)
		}
		listenErr <- err
	})

	select {
	case sig := <-quit:
		log.Infow("received signal, shutting down gracefully", "signal", sig.String())
	case err := <-listenErr:
		if err != nil {
			log.Errorw("HTTP listener failed", "error", err)
		}
	case <-app.Shutdown.Done():
		log.Info("shutdown requested")
	}

	app.shutdown(cancel)
	log.Info("server shutdown complete")
}

// shutdown drains HTTP, then stops the bot loop, the jobs and the metrics
// listener concurrently within the configured timeout.
func (a *App) shutdown(cancel context.CancelFunc) {
	a.Shutdown.Shutdown()

	ctx, done := context.WithTimeout(context.Background(), a.AppConf.Http.ShutdownTimeoutDuration())
	defer done()

	if err := a.HttpApp.ShutdownWithContext(ctx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	}
	cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Cron.Stop(gctx)
	})
	g.Go(func() error {
		return a.Metrics.Stop(gctx)
	})
	if a.Tracer != nil {
		g.Go(func() error {
			return a.Tracer.ForceFlush(gctx)
		})
	}
	if a.botDone != nil {
		g.Go(func() error {
			select {
			case <-a.botDone:
				return nil
			case <-gctx.Done():
				return errors.New("bot loop did not stop in time")
			}
		})
	}
	if err := g.Wait(); err != nil {
		log.Warnw("shutdown incomplete", "error", err)
	}
}
