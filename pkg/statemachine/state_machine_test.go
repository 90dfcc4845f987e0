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

package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_AllowAndCheck(t *testing.T) {
	sm := New[string]().Allow("a", "b", "c").Allow("a", "b")

	assert.True(t, sm.CanTransition("a", "b"))
	assert.False(t, sm.CanTransition("b", "a"))
	assert.ElementsMatch(t, []string{"b", "c"}, sm.ValidNextStates("a"))
	assert.Empty(t, sm.ValidNextStates("z"))

	assert.NoError(t, sm.Check("a", "c"))
	assert.ErrorIs(t, sm.Check("c", "a"), ErrInvalidTransition)
}

func TestStateMachine_Fire(t *testing.T) {
	sm := NewWithState("idle").On("idle", "go", "busy")

	to, err := sm.Fire("idle", "go")
	require.NoError(t, err)
	assert.Equal(t, "busy", to)
	assert.True(t, sm.CanTransition("idle", "busy"))

	_, err = sm.Fire("busy", "go")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStateMachine_ToDotIsStable(t *testing.T) {
	sm := NewJoinStateMachine()
	first := sm.ToDot("join")
	assert.Equal(t, first, sm.ToDot("join"))
	assert.Contains(t, first, `start -> "pending"`)
	assert.Contains(t, first, `"joined" -> "kicked" [label="kick"]`)
}

func TestJoinStateMachine(t *testing.T) {
	sm := NewJoinStateMachine()
	assert.Equal(t, JoinPending, sm.Initial())

	tests := []struct {
		from, to JoinStatus
		allowed  bool
	}{
		{JoinPending, JoinJoined, true},
		{JoinJoined, JoinExpired, true},
		{JoinJoined, JoinKicked, true},
		{JoinJoined, JoinLeft, true},
		{JoinExpired, JoinJoined, true},
		{JoinKicked, JoinJoined, true},
		{JoinLeft, JoinJoined, true},
		{JoinJoined, JoinPending, false},
		{JoinPending, JoinExpired, false},
		{JoinExpired, JoinKicked, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, sm.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.ElementsMatch(t, []JoinStatus{JoinPending, JoinExpired, JoinKicked, JoinLeft}, sm.Sources(JoinJoined))
	assert.True(t, JoinLeft.IsTerminal())
	assert.False(t, JoinJoined.IsTerminal())
}

func TestEntitlementStateMachine(t *testing.T) {
	sm := NewEntitlementStateMachine()

	to, err := sm.Fire(EntitlementActive, EventExpire)
	require.NoError(t, err)
	assert.Equal(t, EntitlementExpired, to)

	to, err = sm.Fire(EntitlementPending, EventRevoke)
	require.NoError(t, err)
	assert.Equal(t, EntitlementRevoked, to)

	_, err = sm.Fire(EntitlementPending, EventExpire)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, sm.Check(EntitlementExpired, EntitlementActive), ErrInvalidTransition)

	assert.Equal(t, []EntitlementStatus{EntitlementActive, EntitlementPending}, sm.Sources(EntitlementRevoked))
	assert.True(t, EntitlementRevoked.IsTerminal())
	assert.True(t, EntitlementPending.IsLive())
	assert.False(t, EntitlementExpired.IsLive())
}
