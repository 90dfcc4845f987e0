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

// EntitlementStatus is the lifecycle of a paid access window.
type EntitlementStatus string

const (
	EntitlementPending EntitlementStatus = "pending"
	EntitlementActive  EntitlementStatus = "active"
	EntitlementExpired EntitlementStatus = "expired"
	EntitlementRevoked EntitlementStatus = "revoked"
)

const (
	EventActivate Event = "activate"
	EventRevoke   Event = "revoke"
)

// IsTerminal reports whether no further transition is possible.
func (s EntitlementStatus) IsTerminal() bool {
	return s == EntitlementExpired || s == EntitlementRevoked
}

// IsLive reports whether the entitlement can still grant access.
func (s EntitlementStatus) IsLive() bool {
	return s == EntitlementPending || s == EntitlementActive
}

// NewEntitlementStateMachine builds the entitlement status table.
func NewEntitlementStateMachine() *StateMachine[EntitlementStatus] {
	sm := NewWithState(EntitlementPending)
	sm.On(EntitlementPending, EventActivate, EntitlementActive).
		On(EntitlementPending, EventRevoke, EntitlementRevoked).
		On(EntitlementActive, EventExpire, EntitlementExpired).
		On(EntitlementActive, EventRevoke, EntitlementRevoked)
	return sm
}
