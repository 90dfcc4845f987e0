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

// JoinStatus tracks whether a subscriber is currently inside the channel.
type JoinStatus string

const (
	JoinPending JoinStatus = "pending"
	JoinJoined  JoinStatus = "joined"
	JoinExpired JoinStatus = "expired"
	JoinKicked  JoinStatus = "kicked"
	JoinLeft    JoinStatus = "left"
)

const (
	EventAdmit  Event = "admit"
	EventExpire Event = "expire"
	EventKick   Event = "kick"
	EventLeave  Event = "leave"
)

// IsTerminal reports whether the subscriber is out of the channel.
func (s JoinStatus) IsTerminal() bool {
	return s == JoinExpired || s == JoinKicked || s == JoinLeft
}

// NewJoinStateMachine builds the JoinStatus table. A subscriber that expired,
// was kicked or left may be admitted again on a renewed entitlement; a joined
// subscriber never goes back to pending.
func NewJoinStateMachine() *StateMachine[JoinStatus] {
	sm := NewWithState(JoinPending)
	sm.On(JoinPending, EventAdmit, JoinJoined).
		On(JoinJoined, EventExpire, JoinExpired).
		On(JoinJoined, EventKick, JoinKicked).
		On(JoinJoined, EventLeave, JoinLeft)
	for _, s := range []JoinStatus{JoinExpired, JoinKicked, JoinLeft} {
		sm.On(s, EventAdmit, JoinJoined)
	}
	return sm
}
