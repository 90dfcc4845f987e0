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

const (
	ChannelStatusActive   = "active"
	ChannelStatusInactive = "inactive"

	BotStatusNotConnected = "not_connected"
	BotStatusConnected    = "connected"
	BotStatusError        = "error"

	ChatTypeChannel    = "channel"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
)

// Channel is a chat the bot manages access for.
type Channel struct {
	BaseModel
	ChatID    string `gorm:"column:chat_id;type:varchar(64);uniqueIndex" json:"chatId"`
	Title     string `gorm:"column:title;type:varchar(255)" json:"title"`
	ChatType  string `gorm:"column:chat_type;type:varchar(16)" json:"chatType"`
	Status    string `gorm:"column:status;type:varchar(16)" json:"status"`
	BotStatus string `gorm:"column:bot_status;type:varchar(16)" json:"botStatus"`
	IsDefault bool   `gorm:"column:is_default" json:"isDefault"`
}

func (c *Channel) TableName() string {
	return "t_channel"
}
