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

package metrics

import "github.com/google/wire"

// ProviderSet provides the registry and the collectors built on it.
var ProviderSet = wire.NewSet(
	ProvideServer,
	ProvideAccessMetrics,
	ProvideCronMetrics,
)

func ProvideServer(conf MetricsConfig) *Server {
	return NewServer(conf)
}

func ProvideAccessMetrics(s *Server) *AccessMetrics {
	return NewAccessMetrics(s.Registry())
}

func ProvideCronMetrics(s *Server) *CronMetrics {
	return NewCronMetrics(s.Registry())
}
