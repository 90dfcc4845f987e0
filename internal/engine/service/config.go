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
	"time"

	"golang.org/x/time/rate"
)

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

// AccessConfig tunes issuance, expiry enforcement and the background jobs.
type AccessConfig struct {
	ReconcileSpec       string  `mapstructure:"reconcileSpec"`
	InviteCleanupSpec   string  `mapstructure:"inviteCleanupSpec"`
	ReconcileBatch      int     `mapstructure:"reconcileBatch"`
	ReconcileRate       float64 `mapstructure:"reconcileRate"` // revocations per second
	ReconcileBurst      int     `mapstructure:"reconcileBurst"`
	ReconcileLock       bool    `mapstructure:"reconcileLock"`
	LockTTL             int     `mapstructure:"lockTtl"` // seconds
	InviteRetryAttempts int     `mapstructure:"inviteRetryAttempts"`
	CheckExpiryCacheTTL int     `mapstructure:"checkExpiryCacheTtl"` // seconds, 0 disables
	CleanupBatch        int     `mapstructure:"cleanupBatch"`
	WelcomeMessage      string  `mapstructure:"welcomeMessage"`
}

// DefaultAccessConfig returns the values used for unset fields.
func DefaultAccessConfig() AccessConfig {
	return AccessConfig{
		ReconcileSpec:       "@every 1m",
		InviteCleanupSpec:   "@every 1h",
		ReconcileBatch:      500,
		ReconcileRate:       20,
		ReconcileBurst:      1,
		ReconcileLock:       true,
		LockTTL:             55,
		InviteRetryAttempts: 3,
		CheckExpiryCacheTTL: 30,
		CleanupBatch:        500,
		WelcomeMessage:      "Welcome to %s! Your access is active and will be managed based on your subscription status.",
	}
}

// WithDefaults fills zero fields from DefaultAccessConfig.
func (c AccessConfig) WithDefaults() AccessConfig {
	d := DefaultAccessConfig()
	if c.ReconcileSpec == "" {
		c.ReconcileSpec = d.ReconcileSpec
	}
	if c.InviteCleanupSpec == "" {
		c.InviteCleanupSpec = d.InviteCleanupSpec
	}
	if c.ReconcileBatch <= 0 {
		c.ReconcileBatch = d.ReconcileBatch
	}
	if c.ReconcileRate <= 0 {
		c.ReconcileRate = d.ReconcileRate
	}
	if c.ReconcileBurst <= 0 {
		c.ReconcileBurst = d.ReconcileBurst
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.InviteRetryAttempts <= 0 {
		c.InviteRetryAttempts = d.InviteRetryAttempts
	}
	if c.CheckExpiryCacheTTL < 0 {
		c.CheckExpiryCacheTTL = 0
	}
	if c.CleanupBatch <= 0 {
		c.CleanupBatch = d.CleanupBatch
	}
	if c.WelcomeMessage == "" {
		c.WelcomeMessage = d.WelcomeMessage
	}
	return c
}

func (c AccessConfig) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(c.ReconcileRate), c.ReconcileBurst)
}

func (c AccessConfig) lockTTL() time.Duration {
	return time.Duration(c.LockTTL) * time.Second
}

func (c AccessConfig) checkExpiryTTL() time.Duration {
	return time.Duration(c.CheckExpiryCacheTTL) * time.Second
}
