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

package repo

import (
	"context"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/pkg/database"
	"gorm.io/gorm/clause"
)

type IChannelRepository interface {
	ListConnected(ctx context.Context) ([]model.Channel, error)
	Upsert(ctx context.Context, ch *model.Channel) error
	UpdateBotStatus(ctx context.Context, chatID, botStatus string) error
}

type ChannelRepo struct {
	database.IDatabase
}

func NewChannelRepo(db database.IDatabase) IChannelRepository {
	return &ChannelRepo{IDatabase: db}
}

// ListConnected returns active channels the bot is connected to.
func (r *ChannelRepo) ListConnected(ctx context.Context) ([]model.Channel, error) {
	var list []model.Channel
	if err := database.ReadDB(r.Database().WithContext(ctx)).Table((&model.Channel{}).TableName()).
		Where("status = ? AND bot_status = ?", model.ChannelStatusActive, model.BotStatusConnected).
		Order("is_default DESC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Upsert inserts the channel or refreshes its metadata by chat id.
func (r *ChannelRepo) Upsert(ctx context.Context, ch *model.Channel) error {
	return r.Database().WithContext(ctx).Table(ch.TableName()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "chat_type", "status", "bot_status", "is_default", "updated_at"}),
		}).Create(ch).Error
}

func (r *ChannelRepo) UpdateBotStatus(ctx context.Context, chatID, botStatus string) error {
	return r.Database().WithContext(ctx).Table((&model.Channel{}).TableName()).
		Where("chat_id = ?", chatID).
		Update("bot_status", botStatus).Error
}
