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

	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
)

// Services groups every access-control service behind one value.
type Services struct {
	Registry      *ChannelRegistry
	Timer         *TimerScheduler
	CheckExpiry   *CheckExpiryService
	Revoker       *Revoker
	Invite        *InviteService
	Payment       *PaymentService
	Join          *JoinService
	Reconciler    *Reconciler
	InviteCleanup *InviteCleanup
	Stats         *StatsService
	Bot           *BotService
}

// NewServices builds the services and installs the Revoker as the expiry
// timer handler. A nil clock means time.Now.
func NewServices(
	repos *repo.Repositories,
	platform telegram.Platform,
	c cache.ICache,
	m *metrics.AccessMetrics,
	tg telegram.Config,
	access AccessConfig,
	now Clock,
) *Services {
	if now == nil {
		now = time.Now
	}
	access = access.WithDefaults()

	registry := NewChannelRegistry(repos.Channel, tg.ChannelID)
	timer := NewTimerScheduler(m)
	timer.now = now
	checkExpiry := NewCheckExpiryService(repos, c, access.checkExpiryTTL(), now)
	revoker := NewRevoker(repos, platform, registry, timer, checkExpiry, m, now)
	timer.SetHandler(revoker.HandleTimer)

	invite := NewInviteService(repos, platform, registry, m, access, now)
	join := NewJoinService(repos, platform, registry, timer, checkExpiry, m, now)
	stats := NewStatsService(repos, timer, registry, now)

	return &Services{
		Registry:      registry,
		Timer:         timer,
		CheckExpiry:   checkExpiry,
		Revoker:       revoker,
		Invite:        invite,
		Payment:       NewPaymentService(repos, invite, registry, now),
		Join:          join,
		Reconciler:    NewReconciler(repos, platform, revoker, c, m, access, now),
		InviteCleanup: NewInviteCleanup(repos, platform, access, now),
		Stats:         stats,
		Bot:           NewBotService(platform, tg, access, repos, join, invite, revoker, timer, registry, stats, now),
	}
}
