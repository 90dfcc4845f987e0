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
	"github.com/google/wire"
)

// defaultLocalMaxBytes is the in-process cache size (32MB)
const defaultLocalMaxBytes = 32 * 1024 * 1024

// ProviderSet provides the ICache used for locks and cached reads.
var ProviderSet = wire.NewSet(ProvideICache)

// ProvideICache connects to Redis when configured and otherwise falls back to
// an in-process FastCache, which keeps locks local to this instance.
func ProvideICache(conf Redis) (ICache, func(), error) {
	if !conf.Enabled() {
		return NewFastCache(FastCacheConfig{MaxBytes: defaultLocalMaxBytes}), func() {}, nil
	}
	client, err := NewRedis(conf)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisCache(client), func() { _ = client.Close() }, nil
}
