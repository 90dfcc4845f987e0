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

import "errors"

var (
	ErrInvalidOrExpiredToken = errors.New("invite link is invalid or expired")
	ErrAlreadyConsumed       = errors.New("invite link already used")
	ErrUpstreamUnavailable   = errors.New("messaging platform unavailable")
	ErrPersistenceError      = errors.New("persistence failure")
	ErrRevocationFailed      = errors.New("revocation failed")
	ErrEntitlementNotFound   = errors.New("entitlement not found")
	ErrChannelNotManaged     = errors.New("channel not managed")
	ErrInvalidDuration       = errors.New("invalid duration")
)

// Neutral reasons returned to the platform side of the webhook.
const (
	ReasonInvalidToken    = "invalid or expired invite link"
	ReasonAlreadyUsed     = "invite link already used"
	ReasonNotManaged      = "channel not managed"
	ReasonUnavailable     = "temporarily unavailable"
	ReasonUserNotFound    = "user not found"
	ReasonNoSubscription  = "no active subscription"
	ReasonSubscriptionEnd = "subscription expired"
)

// rejectReason maps a validation error to the reason shown to the caller.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return ReasonInvalidToken
	case errors.Is(err, ErrAlreadyConsumed):
		return ReasonAlreadyUsed
	case errors.Is(err, ErrChannelNotManaged):
		return ReasonNotManaged
	default:
		return ReasonUnavailable
	}
}
