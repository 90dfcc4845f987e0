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
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-arcade/gatekeeper/internal/engine/service"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/database"
	"github.com/go-arcade/gatekeeper/pkg/http"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/trace"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: GATEKEEPER_TELEGRAM_TOKEN sets
// telegram.token.
const EnvPrefix = "GATEKEEPER"

type AppConfig struct {
	Log      log.Conf              `mapstructure:"log"`
	Http     http.Http             `mapstructure:"http"`
	Database database.Database     `mapstructure:"database"`
	Redis    cache.Redis           `mapstructure:"redis"`
	Telegram telegram.Config       `mapstructure:"telegram"`
	Access   service.AccessConfig  `mapstructure:"access"`
	Metrics  metrics.MetricsConfig `mapstructure:"metrics"`
	Trace    trace.Conf            `mapstructure:"trace"`
}

var (
	cfg  *AppConfig
	once sync.Once
)

// NewConf loads the configuration once per process and watches the file.
// Only the log section is applied on change; everything else needs a restart.
func NewConf(confPath string) *AppConfig {
	once.Do(func() {
		v, c, err := load(confPath)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
		cfg = c

		v.OnConfigChange(func(e fsnotify.Event) {
			log.Infow("config file changed", "path", e.Name)
			var next AppConfig
			if err := v.Unmarshal(&next); err != nil {
				log.Warnw("failed to unmarshal changed config", "error", err)
				return
			}
			if err := log.Init(&next.Log); err != nil {
				log.Warnw("failed to apply log config", "error", err)
			}
		})
		v.WatchConfig()
	})
	return cfg
}

// LoadConfigFile reads the TOML file at confPath with defaults and
// environment overrides applied.
func LoadConfigFile(confPath string) (*AppConfig, error) {
	_, c, err := load(confPath)
	return c, err
}

func load(confPath string) (*viper.Viper, *AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if confPath != "" {
		v.SetConfigFile(confPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./conf.d")
	}
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	c := &AppConfig{}
	if err := v.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal configuration file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	log.Infow("config file loaded", "path", v.ConfigFileUsed())
	return v, c, nil
}

func setDefaults(v *viper.Viper) {
	logDefaults := log.SetDefaults()
	v.SetDefault("log.output", logDefaults.Output)
	v.SetDefault("log.path", logDefaults.Path)
	v.SetDefault("log.filename", logDefaults.Filename)
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.keepHours", logDefaults.KeepHours)
	v.SetDefault("log.rotateSize", logDefaults.RotateSize)
	v.SetDefault("log.rotateNum", logDefaults.RotateNum)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.exposeMetrics", true)
	v.SetDefault("http.accessLog", true)
	v.SetDefault("http.shutdownTimeout", 10)
	v.SetDefault("http.auth.secretKey", "")
	v.SetDefault("http.auth.apiKey", "")

	v.SetDefault("database.type", database.TypeSQLite)
	v.SetDefault("database.autoMigrate", true)
	v.SetDefault("database.sqlite.path", "./data/gatekeeper.db")
	v.SetDefault("database.mysql.host", "")
	v.SetDefault("database.mysql.password", "")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.apiBase", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 10)
	v.SetDefault("telegram.polling", false)
	v.SetDefault("telegram.pollTimeout", 30)
	v.SetDefault("telegram.channelId", "")

	access := service.DefaultAccessConfig()
	v.SetDefault("access.reconcileSpec", access.ReconcileSpec)
	v.SetDefault("access.inviteCleanupSpec", access.InviteCleanupSpec)
	v.SetDefault("access.reconcileBatch", access.ReconcileBatch)
	v.SetDefault("access.reconcileRate", access.ReconcileRate)
	v.SetDefault("access.reconcileBurst", access.ReconcileBurst)
	v.SetDefault("access.reconcileLock", access.ReconcileLock)
	v.SetDefault("access.lockTtl", access.LockTTL)
	v.SetDefault("access.inviteRetryAttempts", access.InviteRetryAttempts)
	v.SetDefault("access.checkExpiryCacheTtl", access.CheckExpiryCacheTTL)
	v.SetDefault("access.cleanupBatch", access.CleanupBatch)
	v.SetDefault("access.welcomeMessage", access.WelcomeMessage)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.pprof", false)

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.protocol", trace.ProtocolGRPC)
	v.SetDefault("trace.endpoint", "")
	v.SetDefault("trace.serviceName", "gatekeeper")
	v.SetDefault("trace.insecure", true)
	v.SetDefault("trace.sampleRatio", 1.0)
}

// Validate rejects settings the process cannot start with.
func (c *AppConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.Http.Port)
	}
	if c.Telegram.Polling && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.polling requires telegram.token")
	}
	if c.Database.Type != database.TypeMySQL && c.Database.Type != database.TypeSQLite {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}
	if err := c.Trace.Validate(); err != nil {
		return err
	}
	return nil
}
