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
	"errors"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/pkg/database"
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
	"gorm.io/gorm"
)

type ISubscriberRepository interface {
	GetBySubscriberID(ctx context.Context, subscriberID string) (*model.Subscriber, error)
	GetByPlatformUser(ctx context.Context, userID int64) (*model.Subscriber, error)
	Ensure(ctx context.Context, subscriberID string) (*model.Subscriber, error)
	BindPlatformUser(ctx context.Context, subscriberID string, userID int64, info model.UserInfo) error
	SetJoinStatus(ctx context.Context, subscriberID string, from []statemachine.JoinStatus, to statemachine.JoinStatus, at time.Time) (bool, error)
}

type SubscriberRepo struct {
	database.IDatabase
}

func NewSubscriberRepo(db database.IDatabase) ISubscriberRepository {
	return &SubscriberRepo{IDatabase: db}
}

func (r *SubscriberRepo) GetBySubscriberID(ctx context.Context, subscriberID string) (*model.Subscriber, error) {
	var s model.Subscriber
	if err := database.WriteDB(r.Database().WithContext(ctx)).Table(s.TableName()).
		Where("subscriber_id = ?", subscriberID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriberRepo) GetByPlatformUser(ctx context.Context, userID int64) (*model.Subscriber, error) {
	var s model.Subscriber
	if err := database.WriteDB(r.Database().WithContext(ctx)).Table(s.TableName()).
		Where("platform_user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Ensure returns the subscriber, creating it in JoinStatus pending if absent.
func (r *SubscriberRepo) Ensure(ctx context.Context, subscriberID string) (*model.Subscriber, error) {
	s, err := r.GetBySubscriberID(ctx, subscriberID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	s = &model.Subscriber{
		SubscriberID: subscriberID,
		JoinStatus:   statemachine.JoinPending,
	}
	if err := r.Database().WithContext(ctx).Table(s.TableName()).
		Where(model.Subscriber{SubscriberID: subscriberID}).
		FirstOrCreate(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// BindPlatformUser records the platform identity and profile of a subscriber.
// A platform user already bound to another subscriber is released first so
// the unique index holds.
func (r *SubscriberRepo) BindPlatformUser(ctx context.Context, subscriberID string, userID int64, info model.UserInfo) error {
	db := r.Database().WithContext(ctx).Table((&model.Subscriber{}).TableName())
	if err := db.Session(&gorm.Session{}).
		Where("platform_user_id = ? AND subscriber_id <> ?", userID, subscriberID).
		Update("platform_user_id", nil).Error; err != nil {
		return err
	}
	updates := map[string]any{"platform_user_id": userID}
	if profile := model.ProfileJSON(info); profile != nil {
		updates["profile"] = profile
	}
	return db.Session(&gorm.Session{}).
		Where("subscriber_id = ?", subscriberID).
		Updates(updates).Error
}

// SetJoinStatus moves the subscriber to status to when it currently is in
// one of from.
func (r *SubscriberRepo) SetJoinStatus(ctx context.Context, subscriberID string, from []statemachine.JoinStatus, to statemachine.JoinStatus, at time.Time) (bool, error) {
	updates := map[string]any{"join_status": to}
	switch {
	case to == statemachine.JoinJoined:
		updates["joined_at"] = at
		updates["left_at"] = nil
	case to.IsTerminal():
		updates["left_at"] = at
	}
	res := r.Database().WithContext(ctx).Table((&model.Subscriber{}).TableName()).
		Where("subscriber_id = ? AND join_status IN ?", subscriberID, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}
