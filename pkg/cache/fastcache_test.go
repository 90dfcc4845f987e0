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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFastCache(now *time.Time) *FastCache {
	fc := NewFastCache(FastCacheConfig{})
	fc.now = func() time.Time { return *now }
	return fc
}

func TestFastCache_GetSetDel(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	fc := newTestFastCache(&now)

	_, err := fc.Get(ctx, "missing").Result()
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, fc.Set(ctx, "k", "v", 0).Err())
	got, err := fc.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	n, err := fc.Del(ctx, "k", "missing").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFastCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	fc := newTestFastCache(&now)

	require.NoError(t, fc.Set(ctx, "k", map[string]int{"a": 1}, time.Second).Err())
	got, err := fc.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, got)

	now = now.Add(time.Second)
	_, err = fc.Get(ctx, "k").Result()
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestFastCache_SetNXAndCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	fc := newTestFastCache(&now)

	ok, err := fc.SetNX(ctx, "lock", "a", time.Minute).Result()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fc.SetNX(ctx, "lock", "b", time.Minute).Result()
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := fc.CompareAndDelete(ctx, "lock", "b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = fc.CompareAndDelete(ctx, "lock", "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	// an expired lease can be taken again
	require.True(t, fc.SetNX(ctx, "lease", "x", time.Second).Val())
	now = now.Add(2 * time.Second)
	assert.True(t, fc.SetNX(ctx, "lease", "y", time.Second).Val())
}

func TestAcquireLock(t *testing.T) {
	ctx := context.Background()
	fc := NewFastCache(FastCacheConfig{})

	first, err := AcquireLock(ctx, fc, "sweep", time.Minute)
	require.NoError(t, err)

	_, err = AcquireLock(ctx, fc, "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, first.Release(ctx))

	second, err := AcquireLock(ctx, fc, "sweep", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, second.Release(ctx))
}
