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

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/pkg/id"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
)

// PaymentService turns confirmed payments into pending entitlements.
type PaymentService struct {
	repos    *repo.Repositories
	invite   *InviteService
	registry *ChannelRegistry
	now      Clock
}

func NewPaymentService(repos *repo.Repositories, invite *InviteService, registry *ChannelRegistry, now Clock) *PaymentService {
	return &PaymentService{
		repos:    repos,
		invite:   invite,
		registry: registry,
		now:      now,
	}
}

// Confirm records the entitlement and issues its invite link. When issuance
// fails the entitlement is kept and the response carries it with the error,
// so the caller can ask for a link again later.
func (s *PaymentService) Confirm(ctx context.Context, req model.PaymentConfirmedReq) (*model.PaymentConfirmedResp, error) {
	subscriberID := strings.TrimSpace(req.SubscriberID)
	if subscriberID == "" {
		return nil, ErrEntitlementNotFound
	}
	if req.DurationSeconds <= 0 {
		return nil, ErrInvalidDuration
	}
	now := s.now()
	confirmedAt := req.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = now
	}
	expiresAt := confirmedAt.Add(time.Duration(req.DurationSeconds) * time.Second)
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: entitlement would already be expired", ErrInvalidDuration)
	}
	channelID, err := s.registry.Resolve(req.ChannelID)
	if err != nil {
		return nil, err
	}

	ent := &model.Entitlement{
		EntitlementID: id.GetULID(),
		SubscriberID:  subscriberID,
		ChannelID:     channelID,
		Status:        statemachine.NewEntitlementStateMachine().Initial(),
		ExpiresAt:     expiresAt,
		Duration:      req.DurationSeconds,
		ConfirmedAt:   confirmedAt,
	}
	err = s.repos.Transaction(ctx, func(tx *repo.Repositories) error {
		if _, err := tx.Subscriber.Ensure(ctx, subscriberID); err != nil {
			return err
		}
		return tx.Entitlement.Create(ctx, ent)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create entitlement: %w", ErrPersistenceError, err)
	}
	log.Infow("entitlement created", "entitlementId", ent.EntitlementID, "subscriberId", subscriberID, "expiresAt", expiresAt)

	resp := &model.PaymentConfirmedResp{
		EntitlementID: ent.EntitlementID,
		ExpiresAt:     expiresAt,
	}
	issued, err := s.invite.Issue(ctx, IssueRequest{
		EntitlementID: ent.EntitlementID,
		ChannelID:     channelID,
		Source:        model.TokenSourcePayment,
	})
	if err != nil {
		return resp, err
	}
	resp.Link = issued.Link
	return resp, nil
}
