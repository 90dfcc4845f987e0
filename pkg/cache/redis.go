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

package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/trace/inject"
	"github.com/redis/go-redis/v9"
)

const (
	ModeSingle   = "single"
	ModeSentinel = "sentinel"
)

// Redis holds connection options. An empty Address disables Redis.
type Redis struct {
	Mode             string `mapstructure:"mode"`
	Address          string `mapstructure:"address"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	PoolSize         int    `mapstructure:"poolSize"`
	UseTLS           bool   `mapstructure:"useTLS"`
	MasterName       string `mapstructure:"masterName"`
	SentinelUsername string `mapstructure:"sentinelUsername"`
	SentinelPassword string `mapstructure:"sentinelPassword"`
	DialTimeout      int    `mapstructure:"dialTimeout"`  // seconds
	ReadTimeout      int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout     int    `mapstructure:"writeTimeout"` // seconds
}

// Enabled reports whether a Redis address is configured.
func (r Redis) Enabled() bool {
	return strings.TrimSpace(r.Address) != ""
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// NewRedis connects to Redis in single or sentinel mode and pings it.
func NewRedis(cfg Redis) (redis.UniversalClient, error) {
	var client redis.UniversalClient
	switch cfg.Mode {
	case ModeSingle, "":
		opts := &redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  seconds(cfg.DialTimeout),
			ReadTimeout:  seconds(cfg.ReadTimeout),
			WriteTimeout: seconds(cfg.WriteTimeout),
		}
		if cfg.UseTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client = redis.NewClient(opts)
	case ModeSentinel:
		opts := &redis.FailoverOptions{
			MasterName:       cfg.MasterName,
			SentinelAddrs:    strings.Split(cfg.Address, ","),
			Password:         cfg.Password,
			DB:               cfg.DB,
			PoolSize:         cfg.PoolSize,
			SentinelUsername: cfg.SentinelUsername,
			SentinelPassword: cfg.SentinelPassword,
			DialTimeout:      seconds(cfg.DialTimeout),
			ReadTimeout:      seconds(cfg.ReadTimeout),
			WriteTimeout:     seconds(cfg.WriteTimeout),
		}
		if cfg.UseTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client = redis.NewFailoverClient(opts)
	default:
		return nil, fmt.Errorf("unsupported redis mode: %s", cfg.Mode)
	}

	inject.RegisterRedisHook(client)

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		log.Errorw("failed to connect redis", "error", err)
		return nil, err
	}

	log.Infow("redis connected", "mode", cfg.Mode)
	return client, nil
}
