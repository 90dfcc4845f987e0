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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedTimer struct {
	userID        int64
	entitlementID string
}

func newRecordingScheduler(t *testing.T) (*TimerScheduler, func() []firedTimer) {
	t.Helper()
	s := NewTimerScheduler(nil)
	t.Cleanup(s.Stop)

	var (
		mu    sync.Mutex
		fired []firedTimer
	)
	s.SetHandler(func(_ context.Context, userID int64, entitlementID string) {
		mu.Lock()
		fired = append(fired, firedTimer{userID, entitlementID})
		mu.Unlock()
	})
	return s, func() []firedTimer {
		mu.Lock()
		defer mu.Unlock()
		return append([]firedTimer(nil), fired...)
	}
}

func TestTimerScheduler_Fires(t *testing.T) {
	s, fired := newRecordingScheduler(t)

	s.Schedule(1, "ent-1", time.Now().Add(20*time.Millisecond))
	assert.Equal(t, 1, s.Len())

	require.Eventually(t, func() bool { return len(fired()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, firedTimer{1, "ent-1"}, fired()[0])
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerScheduler_PastDeadlineFiresImmediately(t *testing.T) {
	s, fired := newRecordingScheduler(t)
	s.Schedule(1, "ent-1", time.Now().Add(-time.Hour))
	require.Eventually(t, func() bool { return len(fired()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestTimerScheduler_RescheduleReplaces(t *testing.T) {
	s, fired := newRecordingScheduler(t)

	s.Schedule(1, "ent-1", time.Now().Add(30*time.Millisecond))
	s.Schedule(1, "ent-2", time.Now().Add(60*time.Millisecond))
	assert.Equal(t, 1, s.Len())

	id, _, ok := s.Pending(1)
	require.True(t, ok)
	assert.Equal(t, "ent-2", id)

	require.Eventually(t, func() bool { return len(fired()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	got := fired()
	require.Len(t, got, 1)
	assert.Equal(t, "ent-2", got[0].entitlementID)
}

func TestTimerScheduler_Cancel(t *testing.T) {
	s, fired := newRecordingScheduler(t)

	s.Schedule(1, "ent-1", time.Now().Add(30*time.Millisecond))
	s.Schedule(2, "ent-2", time.Now().Add(30*time.Millisecond))

	assert.False(t, s.CancelFor(1, "other"))
	assert.True(t, s.CancelFor(1, "ent-1"))
	assert.True(t, s.Cancel(2))
	assert.False(t, s.Cancel(2))
	assert.Equal(t, 0, s.Len())

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, fired())
}

func TestTimerScheduler_Stop(t *testing.T) {
	s, fired := newRecordingScheduler(t)

	s.Schedule(1, "ent-1", time.Now().Add(30*time.Millisecond))
	s.Stop()
	assert.Equal(t, 0, s.Len())

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, fired())
}
