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
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/pkg/database"
)

type IInviteTokenRepository interface {
	Create(ctx context.Context, t *model.InviteToken) error
	GetByLink(ctx context.Context, link string) (*model.InviteToken, error)
	GetUsableByLink(ctx context.Context, link string, now time.Time) (*model.InviteToken, error)
	Consume(ctx context.Context, link string, userID int64, now time.Time) (bool, error)
	ListExpiredUnused(ctx context.Context, now time.Time, limit int) ([]model.InviteToken, error)
	DeleteExpiredUnused(ctx context.Context, ids []uint64, now time.Time) (int64, error)
}

type InviteTokenRepo struct {
	database.IDatabase
}

func NewInviteTokenRepo(db database.IDatabase) IInviteTokenRepository {
	return &InviteTokenRepo{IDatabase: db}
}

func (r *InviteTokenRepo) Create(ctx context.Context, t *model.InviteToken) error {
	return r.Database().WithContext(ctx).Table(t.TableName()).Create(t).Error
}

func (r *InviteTokenRepo) GetByLink(ctx context.Context, link string) (*model.InviteToken, error) {
	var t model.InviteToken
	if err := database.WriteDB(r.Database().WithContext(ctx)).Table(t.TableName()).
		Where("link = ?", link).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetUsableByLink returns the token only while it is unused and unexpired.
func (r *InviteTokenRepo) GetUsableByLink(ctx context.Context, link string, now time.Time) (*model.InviteToken, error) {
	var t model.InviteToken
	if err := database.WriteDB(r.Database().WithContext(ctx)).Table(t.TableName()).
		Where("link = ? AND used = ? AND expires_at > ?", link, false, now).
		First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// Consume marks the token used by userID. Exactly one concurrent caller
// sees true; the rest see false.
func (r *InviteTokenRepo) Consume(ctx context.Context, link string, userID int64, now time.Time) (bool, error) {
	res := r.Database().WithContext(ctx).Table((&model.InviteToken{}).TableName()).
		Where("link = ? AND used = ? AND expires_at > ?", link, false, now).
		Updates(map[string]any{
			"used":             true,
			"used_by":          userID,
			"used_at":          now,
			"platform_user_id": userID,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *InviteTokenRepo) ListExpiredUnused(ctx context.Context, now time.Time, limit int) ([]model.InviteToken, error) {
	var list []model.InviteToken
	q := r.Database().WithContext(ctx).Table((&model.InviteToken{}).TableName()).
		Where("used = ? AND expires_at <= ?", false, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteExpiredUnused removes the listed tokens if they are still unused and
// expired, so a token consumed meanwhile survives.
func (r *InviteTokenRepo) DeleteExpiredUnused(ctx context.Context, ids []uint64, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.Database().WithContext(ctx).Table((&model.InviteToken{}).TableName()).
		Where("id IN ? AND used = ? AND expires_at <= ?", ids, false, now).
		Delete(&model.InviteToken{})
	return res.RowsAffected, res.Error
}
