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

import "time"

const (
	TokenSourcePayment = "payment"
	TokenSourceAdmin   = "admin"
	TokenSourceTest    = "test"
)

// InviteToken is a single-use admission credential backed by a platform
// invite link. EntitlementID is nil for anonymous and test tokens.
type InviteToken struct {
	BaseModel
	Link           string     `gorm:"column:link;type:varchar(255);uniqueIndex" json:"link"`
	LinkID         string     `gorm:"column:link_id;type:varchar(64);uniqueIndex" json:"linkId"`
	EntitlementID  *string    `gorm:"column:entitlement_id;type:varchar(32);index" json:"entitlementId,omitempty"`
	ChannelID      string     `gorm:"column:channel_id;type:varchar(64)" json:"channelId"`
	PlatformUserID *int64     `gorm:"column:platform_user_id" json:"platformUserId,omitempty"`
	Used           bool       `gorm:"column:used;index:idx_invite_used_expires,priority:1" json:"used"`
	UsedBy         *int64     `gorm:"column:used_by" json:"usedBy,omitempty"`
	UsedAt         *time.Time `gorm:"column:used_at" json:"usedAt,omitempty"`
	ExpiresAt      time.Time  `gorm:"column:expires_at;index:idx_invite_used_expires,priority:2" json:"expiresAt"`
	Duration       int64      `gorm:"column:duration" json:"duration"` // seconds of access granted on admission
	Source         string     `gorm:"column:source;type:varchar(16)" json:"source"`
}

func (t *InviteToken) TableName() string {
	return "t_invite_token"
}

// IssueInviteResp is returned to whoever asked for a link.
type IssueInviteResp struct {
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StoreTestLinkReq registers a link created outside the service.
type StoreTestLinkReq struct {
	Link      string    `json:"link"`
	LinkID    string    `json:"link_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Duration  int64     `json:"duration,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
}
