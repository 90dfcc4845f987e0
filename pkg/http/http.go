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

package http

import (
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/gofiber/fiber/v2"
)

// Http holds the HTTP server options.
type Http struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ExposeMetrics   bool   `mapstructure:"exposeMetrics"`
	AccessLog       bool   `mapstructure:"accessLog"`
	BodyLimit       int    `mapstructure:"bodyLimit"`       // bytes
	ReadTimeout     int    `mapstructure:"readTimeout"`     // seconds
	WriteTimeout    int    `mapstructure:"writeTimeout"`    // seconds
	IdleTimeout     int    `mapstructure:"idleTimeout"`     // seconds
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"` // seconds
	TLS             TLS    `mapstructure:"tls"`
	Auth            Auth   `mapstructure:"auth"`
}

type TLS struct {
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// Auth protects the API. An empty SecretKey disables service-token checks on
// the internal routes; an empty APIKey disables key checks on the bot webhooks.
type Auth struct {
	SecretKey string `mapstructure:"secretKey"`
	APIKey    string `mapstructure:"apiKey"`
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

// ShutdownTimeoutDuration returns the graceful shutdown budget.
func (h Http) ShutdownTimeoutDuration() time.Duration {
	return seconds(h.ShutdownTimeout, 10)
}

// NewApp builds a fiber app using sonic for JSON and the unified error envelope.
func NewApp(cfg Http) *fiber.App {
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	return fiber.New(fiber.Config{
		AppName:               "gatekeeper",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ReadTimeout:           seconds(cfg.ReadTimeout, 10),
		WriteTimeout:          seconds(cfg.WriteTimeout, 10),
		IdleTimeout:           seconds(cfg.IdleTimeout, 60),
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ErrorHandler:          ErrorHandler,
	})
}

// ErrorHandler writes errors returned by handlers as ResponseErr.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		c.Status(fe.Code)
		return WithRepErr(c, fe.Code, fe.Message, c.Path())
	}
	log.Errorw("unhandled request error", "path", c.Path(), "method", c.Method(), "error", err)
	c.Status(fiber.StatusInternalServerError)
	return WithRepErr(c, InternalError.Code, InternalError.Msg, c.Path())
}
