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
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// FastCacheConfig holds fastcache configuration
type FastCacheConfig struct {
	MaxBytes int
}

// FastCache is an in-process ICache backed by VictoriaMetrics fastcache.
// Each value is stored behind an 8-byte expiry deadline (unix nanos, 0 = none).
type FastCache struct {
	cache *fastcache.Cache
	now   func() time.Time
	// mu serializes read-modify-write operations (SetNX, CompareAndDelete).
	mu sync.Mutex
}

// NewFastCache creates a new FastCache instance
func NewFastCache(conf FastCacheConfig) *FastCache {
	maxBytes := conf.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 16 * 1024 * 1024
	}
	return &FastCache{
		cache: fastcache.New(maxBytes),
		now:   time.Now,
	}
}

func (fc *FastCache) encode(value any, expiration time.Duration) ([]byte, error) {
	var payload []byte
	switch v := value.(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	case int:
		payload = []byte(strconv.Itoa(v))
	case int64:
		payload = []byte(strconv.FormatInt(v, 10))
	default:
		data, err := sonic.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode cache value: %w", err)
		}
		payload = data
	}

	var deadline int64
	if expiration > 0 {
		deadline = fc.now().Add(expiration).UnixNano()
	}
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], uint64(deadline))
	copy(buf[8:], payload)
	return buf, nil
}

// load returns the live payload for key, dropping it when expired.
func (fc *FastCache) load(key string) ([]byte, bool) {
	raw, ok := fc.cache.HasGet(nil, []byte(key))
	if !ok || len(raw) < 8 {
		return nil, false
	}
	deadline := int64(binary.BigEndian.Uint64(raw[:8]))
	if deadline != 0 && fc.now().UnixNano() >= deadline {
		fc.cache.Del([]byte(key))
		return nil, false
	}
	return raw[8:], true
}

func (fc *FastCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	value, ok := fc.load(key)
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(value))
	return cmd
}

func (fc *FastCache) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	buf, err := fc.encode(value, expiration)
	if err != nil {
		cmd.SetErr(err)
		return cmd
	}
	fc.cache.Set([]byte(key), buf)
	cmd.SetVal("OK")
	return cmd
}

func (fc *FastCache) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx, "setnx", key)
	buf, err := fc.encode(value, expiration)
	if err != nil {
		cmd.SetErr(err)
		return cmd
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if _, ok := fc.load(key); ok {
		cmd.SetVal(false)
		return cmd
	}
	fc.cache.Set([]byte(key), buf)
	cmd.SetVal(true)
	return cmd
}

func (fc *FastCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	var count int64
	for _, key := range keys {
		if _, ok := fc.load(key); ok {
			count++
		}
		fc.cache.Del([]byte(key))
	}
	cmd.SetVal(count)
	return cmd
}

func (fc *FastCache) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	current, ok := fc.load(key)
	if !ok || string(current) != value {
		return false, nil
	}
	fc.cache.Del([]byte(key))
	return true, nil
}

// Reset drops every entry.
func (fc *FastCache) Reset() {
	fc.cache.Reset()
}
