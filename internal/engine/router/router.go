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

package router

import (
	"github.com/go-arcade/gatekeeper/internal/engine/service"
	"github.com/go-arcade/gatekeeper/pkg/http"
	"github.com/go-arcade/gatekeeper/pkg/http/middleware"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/shutdown"
	"github.com/go-arcade/gatekeeper/pkg/trace/inject"
	"github.com/go-arcade/gatekeeper/pkg/version"
	"github.com/gofiber/fiber/v2"
)

type Router struct {
	Http     *http.Http
	Services *service.Services
	Metrics  *metrics.Server
	Shutdown *shutdown.Manager
}

func NewRouter(
	httpConf *http.Http,
	services *service.Services,
	metricsServer *metrics.Server,
	shutdownMgr *shutdown.Manager,
) *Router {
	return &Router{
		Http:     httpConf,
		Services: services,
		Metrics:  metricsServer,
		Shutdown: shutdownMgr,
	}
}

func (rt *Router) Router() *fiber.App {
	app := http.NewApp(*rt.Http)

	app.Use(
		middleware.ExceptionMiddleware,
		middleware.RequestMiddleware(),
		inject.FiberMiddleware(middleware.RequestID),
		middleware.AccessLogMiddleware(rt.Http),
	)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(version.GetVersion())
	})
	if rt.Http.ExposeMetrics && rt.Metrics != nil {
		app.Get("/metrics", rt.Metrics.FiberHandler())
	}

	api := app.Group("/api/telegram", rt.drainMiddleware)
	rt.telegramRoutes(api)

	// must come after every route
	app.Use(func(c *fiber.Ctx) error {
		c.Status(fiber.StatusNotFound)
		return http.WithRepErr(c, http.NotFound.Code, "request path not found", c.Path())
	})
	return app
}

// drainMiddleware answers 503 on API routes once shutdown has begun.
func (rt *Router) drainMiddleware(c *fiber.Ctx) error {
	if rt.Shutdown != nil && rt.Shutdown.IsShuttingDown() {
		return http.WithRepFailure(c, fiber.StatusServiceUnavailable, http.ServiceUnavailable)
	}
	return c.Next()
}
