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

	"github.com/bytedance/sonic"
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
	"gorm.io/datatypes"
)

// AnonymousSubscriberPrefix prefixes subscribers created from tokens that
// carry no entitlement.
const AnonymousSubscriberPrefix = "tg_"

// Subscriber is a paying user and their current channel membership.
type Subscriber struct {
	BaseModel
	SubscriberID   string                  `gorm:"column:subscriber_id;type:varchar(64);uniqueIndex" json:"subscriberId"`
	PlatformUserID *int64                  `gorm:"column:platform_user_id;uniqueIndex" json:"platformUserId,omitempty"`
	JoinStatus     statemachine.JoinStatus `gorm:"column:join_status;type:varchar(16)" json:"joinStatus"`
	JoinedAt       *time.Time              `gorm:"column:joined_at" json:"joinedAt,omitempty"`
	LeftAt         *time.Time              `gorm:"column:left_at" json:"leftAt,omitempty"`
	Profile        datatypes.JSON          `gorm:"column:profile" json:"profile,omitempty"`
}

func (s *Subscriber) TableName() string {
	return "t_subscriber"
}

// UserInfo is the platform profile captured on admission.
type UserInfo struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// IsZero reports whether no field is set.
func (u UserInfo) IsZero() bool {
	return u == UserInfo{}
}

// ProfileJSON encodes info for the profile column.
func ProfileJSON(info UserInfo) datatypes.JSON {
	if info.IsZero() {
		return nil
	}
	data, err := sonic.Marshal(info)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}

// UserInfo decodes the stored profile.
func (s *Subscriber) UserInfo() UserInfo {
	var info UserInfo
	if len(s.Profile) > 0 {
		_ = sonic.Unmarshal(s.Profile, &info)
	}
	return info
}
