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

package conf

import (
	"github.com/go-arcade/gatekeeper/internal/engine/service"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/database"
	"github.com/go-arcade/gatekeeper/pkg/http"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/trace"
	"github.com/google/wire"
)

// ProviderSet provides the configuration sections.
var ProviderSet = wire.NewSet(
	ProvideConf,
	ProvideHttpConfig,
	ProvideLogConfig,
	ProvideDatabaseConfig,
	ProvideRedisConfig,
	ProvideTelegramConfig,
	ProvideAccessConfig,
	ProvideMetricsConfig,
	ProvideTraceConfig,
)

func ProvideConf(confPath string) *AppConfig {
	return NewConf(confPath)
}

func ProvideHttpConfig(c *AppConfig) *http.Http {
	return &c.Http
}

func ProvideLogConfig(c *AppConfig) *log.Conf {
	return &c.Log
}

func ProvideDatabaseConfig(c *AppConfig) database.Database {
	return c.Database
}

func ProvideRedisConfig(c *AppConfig) cache.Redis {
	return c.Redis
}

func ProvideTelegramConfig(c *AppConfig) telegram.Config {
	return c.Telegram
}

// ProvideAccessConfig returns the access section with defaults filled in.
func ProvideAccessConfig(c *AppConfig) service.AccessConfig {
	return c.Access.WithDefaults()
}

func ProvideMetricsConfig(c *AppConfig) metrics.MetricsConfig {
	return c.Metrics
}

func ProvideTraceConfig(c *AppConfig) trace.Conf {
	return c.Trace
}
