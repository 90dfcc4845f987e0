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

	"github.com/go-arcade/gatekeeper/internal/engine/repo"
)

// Stats is a point-in-time view of enforcement state.
type Stats struct {
	ActiveEntitlements int64 `json:"activeEntitlements"`
	PendingTimers      int   `json:"pendingTimers"`
	ManagedChannels    int   `json:"managedChannels"`
}

type StatsService struct {
	repos    *repo.Repositories
	timer    *TimerScheduler
	registry *ChannelRegistry
	now      Clock
}

func NewStatsService(repos *repo.Repositories, timer *TimerScheduler, registry *ChannelRegistry, now Clock) *StatsService {
	return &StatsService{repos: repos, timer: timer, registry: registry, now: now}
}

func (s *StatsService) Snapshot(ctx context.Context) (Stats, error) {
	active, err := s.repos.Entitlement.CountActive(ctx, s.now())
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ActiveEntitlements: active,
		PendingTimers:      s.timer.Len(),
		ManagedChannels:    len(s.registry.List()),
	}, nil
}
