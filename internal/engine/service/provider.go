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
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/google/wire"
)

// ProviderSet provides the service layer.
var ProviderSet = wire.NewSet(ProvideServices)

// ProvideServices builds Services on the wall clock.
func ProvideServices(
	repos *repo.Repositories,
	platform telegram.Platform,
	c cache.ICache,
	m *metrics.AccessMetrics,
	tg telegram.Config,
	access AccessConfig,
) *Services {
	return NewServices(repos, platform, c, m, tg, access, nil)
}
