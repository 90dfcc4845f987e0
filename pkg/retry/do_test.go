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

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noSleep(c *config) {
	c.sleep = func(context.Context, time.Duration) error { return nil }
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var waits []time.Duration
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	},
		WithMaxAttempts(5),
		WithBackoff(Exponential(100*time.Millisecond, time.Second)),
		WithOnRetry(func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) }),
		noSleep,
	)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, waits)
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	last := errors.New("third")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return errors.New("early")
	}, WithMaxAttempts(3), noSleep)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	bad := errors.New("bad request")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(bad)
	}, WithMaxAttempts(5), noSleep)
	assert.ErrorIs(t, err, bad)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIf(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("no")
	}, WithMaxAttempts(4), WithRetryIf(func(error) bool { return false }), noSleep)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("upstream down")
	}, WithMaxAttempts(3), WithBackoff(Fixed(time.Hour)))
	assert.EqualError(t, err, "upstream down")
	assert.Equal(t, 1, calls)
}

func TestBackoffAndJitter(t *testing.T) {
	b := Exponential(time.Second, 5*time.Second)
	assert.Equal(t, time.Second, b.Next(0))
	assert.Equal(t, 4*time.Second, b.Next(2))
	assert.Equal(t, 5*time.Second, b.Next(10))
	assert.Equal(t, 5*time.Second, b.Next(100))

	for range 50 {
		assert.Less(t, FullJitter(time.Second), time.Second)
		j := EqualJitter(time.Second)
		assert.GreaterOrEqual(t, j, 500*time.Millisecond)
		assert.Less(t, j, time.Second)
	}
	assert.Equal(t, time.Duration(0), FullJitter(0))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.True(t, IsRetryableError(errors.New("x")))
}
