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

package model

import (
	"time"

	"github.com/go-arcade/gatekeeper/pkg/statemachine"
)

// Entitlement is a paid, time-bounded right to be inside a channel.
// ExpiresAt never changes after creation.
type Entitlement struct {
	BaseModel
	EntitlementID  string                         `gorm:"column:entitlement_id;type:varchar(32);uniqueIndex" json:"entitlementId"`
	SubscriberID   string                         `gorm:"column:subscriber_id;type:varchar(64);index" json:"subscriberId"`
	PlatformUserID *int64                         `gorm:"column:platform_user_id;index" json:"platformUserId,omitempty"`
	ChannelID      string                         `gorm:"column:channel_id;type:varchar(64)" json:"channelId"`
	Status         statemachine.EntitlementStatus `gorm:"column:status;type:varchar(16);index:idx_entitlement_status_expires,priority:1" json:"status"`
	ExpiresAt      time.Time                      `gorm:"column:expires_at;index:idx_entitlement_status_expires,priority:2" json:"expiresAt"`
	Duration       int64                          `gorm:"column:duration" json:"duration"` // seconds
	ConfirmedAt    time.Time                      `gorm:"column:confirmed_at" json:"confirmedAt"`
	EndedAt        *time.Time                     `gorm:"column:ended_at" json:"endedAt,omitempty"`
	EndReason      string                         `gorm:"column:end_reason;type:varchar(255)" json:"endReason,omitempty"`
	ApprovalChatID string                         `gorm:"column:approval_chat_id;type:varchar(64);index" json:"approvalChatId,omitempty"` // chat still owing the join approval
}

func (e *Entitlement) TableName() string {
	return "t_entitlement"
}

// IsExpiredAt reports whether the entitlement no longer grants access at now.
func (e *Entitlement) IsExpiredAt(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// UserID returns the bound platform user id, or 0.
func (e *Entitlement) UserID() int64 {
	if e.PlatformUserID == nil {
		return 0
	}
	return *e.PlatformUserID
}

// PaymentConfirmedReq is posted by the payment backend once a charge settles.
type PaymentConfirmedReq struct {
	SubscriberID    string    `json:"subscriberId"`
	DurationSeconds int64     `json:"durationSeconds"`
	ConfirmedAt     time.Time `json:"confirmedAt"`
	ChannelID       string    `json:"channelId,omitempty"`
}

type PaymentConfirmedResp struct {
	EntitlementID string    `json:"entitlementId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Link          string    `json:"link,omitempty"`
}
