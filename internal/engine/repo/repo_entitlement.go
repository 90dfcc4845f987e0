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
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
)

type IEntitlementRepository interface {
	Create(ctx context.Context, e *model.Entitlement) error
	GetByEntitlementID(ctx context.Context, entitlementID string) (*model.Entitlement, error)
	GetLatestLiveBySubscriber(ctx context.Context, subscriberID string) (*model.Entitlement, error)
	GetLatestByPlatformUser(ctx context.Context, userID int64) (*model.Entitlement, error)
	GetActiveByPlatformUser(ctx context.Context, userID int64, now time.Time) (*model.Entitlement, error)
	ListActiveByPlatformUser(ctx context.Context, userID int64) ([]model.Entitlement, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Entitlement, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
	Activate(ctx context.Context, entitlementID string, userID int64) (bool, error)
	End(ctx context.Context, entitlementID string, from []statemachine.EntitlementStatus, to statemachine.EntitlementStatus, reason string, at time.Time) (bool, error)
	SetApprovalChat(ctx context.Context, entitlementID, chatID string) error
	ListApprovalPending(ctx context.Context, now time.Time, limit int) ([]model.Entitlement, error)
}

type EntitlementRepo struct {
	database.IDatabase
}

func NewEntitlementRepo(db database.IDatabase) IEntitlementRepository {
	return &EntitlementRepo{IDatabase: db}
}

func (r *EntitlementRepo) Create(ctx context.Context, e *model.Entitlement) error {
	return r.Database().WithContext(ctx).Table(e.TableName()).Create(e).Error
}

func (r *EntitlementRepo) GetByEntitlementID(ctx context.Context, entitlementID string) (*model.Entitlement, error) {
	var e model.Entitlement
	if err := database.WriteDB(r.Database().WithContext(ctx)).Table(e.TableName()).
		Where("entitlement_id = ?", entitlementID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GetLatestLiveBySubscriber returns the newest pending or active entitlement.
func (r *EntitlementRepo) GetLatestLiveBySubscriber(ctx context.Context, subscriberID string) (*model.Entitlement, error) {
	var e model.Entitlement
	if err := database.WriteDB(r.Database().WithContext(ctx)).Table(e.TableName()).
		Where("subscriber_id = ? AND status IN ?", subscriberID, []statemachine.EntitlementStatus{
			statemachine.EntitlementPending, statemachine.EntitlementActive,
		}).
		Order("expires_at DESC").First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EntitlementRepo) GetLatestByPlatformUser(ctx context.Context, userID int64) (*model.Entitlement, error) {
	var e model.Entitlement
	if err := r.Database().WithContext(ctx).Table(e.TableName()).
		Where("platform_user_id = ?", userID).
		Order("expires_at DESC").First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GetActiveByPlatformUser returns the active, unexpired entitlement that
// lasts longest.
func (r *EntitlementRepo) GetActiveByPlatformUser(ctx context.Context, userID int64, now time.Time) (*model.Entitlement, error) {
	var e model.Entitlement
	if err := database.WriteDB(r.Database().WithContext(ctx)).Table(e.TableName()).
		Where("platform_user_id = ? AND status = ? AND expires_at > ?", userID, statemachine.EntitlementActive, now).
		Order("expires_at DESC").First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EntitlementRepo) ListActiveByPlatformUser(ctx context.Context, userID int64) ([]model.Entitlement, error) {
	var list []model.Entitlement
	if err := database.WriteDB(r.Database().WithContext(ctx)).Table((&model.Entitlement{}).TableName()).
		Where("platform_user_id = ? AND status = ?", userID, statemachine.EntitlementActive).
		Order("expires_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListDue returns active entitlements whose expiry has passed, oldest first.
func (r *EntitlementRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Entitlement, error) {
	var list []model.Entitlement
	q := database.WriteDB(r.Database().WithContext(ctx)).Table((&model.Entitlement{}).TableName()).
		Where("status = ? AND expires_at <= ?", statemachine.EntitlementActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *EntitlementRepo) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := database.ReadDB(r.Database().WithContext(ctx)).Table((&model.Entitlement{}).TableName()).
		Where("status = ? AND expires_at > ?", statemachine.EntitlementActive, now).
		Count(&n).Error
	return n, err
}

// Activate binds the platform user and moves pending to active. An active
// entitlement only accepts the user it is already bound to. It reports false
// when the entitlement has ended or belongs to someone else.
func (r *EntitlementRepo) Activate(ctx context.Context, entitlementID string, userID int64) (bool, error) {
	res := r.Database().WithContext(ctx).Table((&model.Entitlement{}).TableName()).
		Where("entitlement_id = ?", entitlementID).
		Where("status = ? OR (status = ? AND platform_user_id = ?)",
			statemachine.EntitlementPending, statemachine.EntitlementActive, userID).
		Updates(map[string]any{
			"platform_user_id": userID,
			"status":           statemachine.EntitlementActive,
			"updated_at":       time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

// End moves the entitlement to a terminal status if it is still in one of
// from. The conditional update makes concurrent callers agree on one winner.
func (r *EntitlementRepo) End(ctx context.Context, entitlementID string, from []statemachine.EntitlementStatus, to statemachine.EntitlementStatus, reason string, at time.Time) (bool, error) {
	res := r.Database().WithContext(ctx).Table((&model.Entitlement{}).TableName()).
		Where("entitlement_id = ? AND status IN ?", entitlementID, from).
		Updates(map[string]any{
			"status":     to,
			"ended_at":   at,
			"end_reason": reason,
		})
	return res.RowsAffected > 0, res.Error
}

// SetApprovalChat records the chat whose join approval is still owed to the
// entitlement's user. An empty chatID clears it.
func (r *EntitlementRepo) SetApprovalChat(ctx context.Context, entitlementID, chatID string) error {
	return r.Database().WithContext(ctx).Table((&model.Entitlement{}).TableName()).
		Where("entitlement_id = ?", entitlementID).
		Update("approval_chat_id", chatID).Error
}

// ListApprovalPending returns live active entitlements still owed a join
// approval, oldest first.
func (r *EntitlementRepo) ListApprovalPending(ctx context.Context, now time.Time, limit int) ([]model.Entitlement, error) {
	var list []model.Entitlement
	q := database.WriteDB(r.Database().WithContext(ctx)).Table((&model.Entitlement{}).TableName()).
		Where("status = ? AND expires_at > ? AND approval_chat_id <> ''", statemachine.EntitlementActive, now).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
