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
	"time"

	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/safe"
)

// TimerHandler runs when a subscriber's timer fires.
type TimerHandler func(ctx context.Context, userID int64, entitlementID string)

type timerEntry struct {
	entitlementID string
	fireAt        time.Time
	timer         *time.Timer
	gen           uint64
}

// TimerScheduler keeps one in-memory expiry timer per platform user. It is a
// fast path only: entries are lost on restart and the reconciler covers them.
type TimerScheduler struct {
	mu      sync.Mutex
	entries map[int64]*timerEntry
	gen     uint64
	handler TimerHandler

	ctx    context.Context
	cancel context.CancelFunc

	metrics *metrics.AccessMetrics
	now     Clock
}

func NewTimerScheduler(m *metrics.AccessMetrics) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if m == nil {
		m = metrics.NewNopAccessMetrics()
	}
	return &TimerScheduler{
		entries: make(map[int64]*timerEntry),
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		now:     time.Now,
	}
}

// SetHandler binds the fire handler. It must be called before Schedule.
func (s *TimerScheduler) SetHandler(h TimerHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Schedule arms a timer for userID at fireAt, replacing any previous one.
func (s *TimerScheduler) Schedule(userID int64, entitlementID string, fireAt time.Time) {
	delay := fireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if old, ok := s.entries[userID]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.entries[userID] = &timerEntry{
		entitlementID: entitlementID,
		fireAt:        fireAt,
		gen:           gen,
		timer:         time.AfterFunc(delay, func() { s.fire(userID, gen) }),
	}
	n := len(s.entries)
	s.mu.Unlock()

	s.metrics.ScheduledTimers.Set(float64(n))
	log.Debugw("expiry timer scheduled", "userId", userID, "entitlementId", entitlementID, "fireAt", fireAt)
}

func (s *TimerScheduler) fire(userID int64, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	entitlementID := e.entitlementID
	handler := s.handler
	s.mu.Unlock()

	if handler != nil && s.ctx.Err() == nil {
		safe.DoNamed("expiry-timer", func() {
			handler(s.ctx, userID, entitlementID)
		})
	}

	s.mu.Lock()
	if e, ok := s.entries[userID]; ok && e.gen == gen {
		delete(s.entries, userID)
	}
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.ScheduledTimers.Set(float64(n))
}

// Cancel stops and removes the timer of userID.
func (s *TimerScheduler) Cancel(userID int64) bool {
	return s.cancelIf(userID, func(*timerEntry) bool { return true })
}

// CancelFor removes the timer of userID only if it belongs to entitlementID.
func (s *TimerScheduler) CancelFor(userID int64, entitlementID string) bool {
	return s.cancelIf(userID, func(e *timerEntry) bool { return e.entitlementID == entitlementID })
}

func (s *TimerScheduler) cancelIf(userID int64, match func(*timerEntry) bool) bool {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok || !match(e) {
		s.mu.Unlock()
		return false
	}
	e.timer.Stop()
	delete(s.entries, userID)
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.ScheduledTimers.Set(float64(n))
	return true
}

// Pending returns the timer registered for userID.
func (s *TimerScheduler) Pending(userID int64) (entitlementID string, fireAt time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return "", time.Time{}, false
	}
	return e.entitlementID, e.fireAt, true
}

func (s *TimerScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every pending timer and the context passed to handlers.
func (s *TimerScheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.metrics.ScheduledTimers.Set(0)
}
