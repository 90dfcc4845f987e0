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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/id"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
	"github.com/go-arcade/gatekeeper/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// JoinRequest is a platform join request presenting an invite link.
type JoinRequest struct {
	InviteLink     string
	PlatformUserID int64
	ChatID         string
	UserInfo       model.UserInfo
}

// Decision is the outcome of a join request. Reason is neutral text that is
// safe to return to the platform side. ApprovalPending marks an admission
// whose platform approval failed and is retried by the reconciler.
type Decision struct {
	Approve         bool      `json:"approve"`
	Reason          string    `json:"reason,omitempty"`
	ApprovalPending bool      `json:"approvalPending,omitempty"`
	EntitlementID   string    `json:"entitlementId,omitempty"`
	SubscriberID    string    `json:"-"`
	ExpiresAt       time.Time `json:"-"`
}

// JoinService validates join requests against invite tokens.
type JoinService struct {
	repos       *repo.Repositories
	platform    telegram.Platform
	registry    *ChannelRegistry
	timer       *TimerScheduler
	checkExpiry *CheckExpiryService
	metrics     *metrics.AccessMetrics
	now         Clock
	joinSM      *statemachine.StateMachine[statemachine.JoinStatus]
}

func NewJoinService(
	repos *repo.Repositories,
	platform telegram.Platform,
	registry *ChannelRegistry,
	timer *TimerScheduler,
	checkExpiry *CheckExpiryService,
	m *metrics.AccessMetrics,
	now Clock,
) *JoinService {
	return &JoinService{
		repos:       repos,
		platform:    platform,
		registry:    registry,
		timer:       timer,
		checkExpiry: checkExpiry,
		metrics:     m,
		now:         now,
		joinSM:      statemachine.NewJoinStateMachine(),
	}
}

// Validate consumes the token at most once and admits the user. Rejections
// return a non-approving Decision together with the sentinel error.
func (s *JoinService) Validate(ctx context.Context, req JoinRequest) (dec *Decision, err error) {
	ctx, span := trace.StartSpan(ctx, "join.validate")
	span.SetAttributes(
		attribute.Int64("platform.user_id", req.PlatformUserID),
		attribute.String("platform.chat_id", req.ChatID),
	)
	defer func() {
		span.SetAttributes(attribute.Bool("join.approve", dec != nil && dec.Approve))
		trace.End(span, err)
	}()

	dec, err = s.validate(ctx, req)
	switch {
	case err == nil:
		s.metrics.Admissions.WithLabelValues("approved").Inc()
	case errors.Is(err, ErrPersistenceError):
		s.metrics.Admissions.WithLabelValues("error").Inc()
	default:
		s.metrics.Admissions.WithLabelValues("rejected").Inc()
	}
	if err != nil {
		log.Infow("join request rejected",
			"userId", req.PlatformUserID, "chatId", req.ChatID, "error", err)
		return &Decision{Approve: false, Reason: rejectReason(err)}, err
	}
	return dec, nil
}

func (s *JoinService) validate(ctx context.Context, req JoinRequest) (*Decision, error) {
	link := strings.TrimSpace(req.InviteLink)
	if link == "" || req.PlatformUserID <= 0 {
		return nil, ErrInvalidOrExpiredToken
	}
	if req.ChatID != "" && !s.registry.IsManaged(req.ChatID) {
		return nil, ErrChannelNotManaged
	}

	now := s.now()
	token, err := s.repos.InviteToken.GetUsableByLink(ctx, link, now)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, s.unusableReason(ctx, link)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load token: %w", ErrPersistenceError, err)
	}

	userID := req.PlatformUserID
	var ent *model.Entitlement
	err = s.repos.Transaction(ctx, func(tx *repo.Repositories) error {
		consumed, err := tx.InviteToken.Consume(ctx, link, userID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrAlreadyConsumed
		}

		if token.EntitlementID == nil {
			ent, err = s.synthesize(ctx, tx, token, userID, now)
		} else {
			ent, err = s.activate(ctx, tx, *token.EntitlementID, userID, now)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Subscriber.Ensure(ctx, ent.SubscriberID); err != nil {
			return err
		}
		if err := tx.Subscriber.BindPlatformUser(ctx, ent.SubscriberID, userID, req.UserInfo); err != nil {
			return err
		}
		_, err = tx.Subscriber.SetJoinStatus(ctx, ent.SubscriberID, s.joinSM.Sources(statemachine.JoinJoined), statemachine.JoinJoined, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyConsumed) || errors.Is(err, ErrInvalidOrExpiredToken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: admit: %w", ErrPersistenceError, err)
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = token.ChannelID
	}
	approvalPending := false
	if req.ChatID != "" {
		if err := s.platform.ApproveChatJoinRequest(ctx, req.ChatID, userID); err != nil {
			// the reconciler retries owed approvals until the entitlement ends
			approvalPending = true
			log.Warnw("approveChatJoinRequest failed, approval deferred",
				"userId", userID, "chatId", req.ChatID, "entitlementId", ent.EntitlementID, "error", err)
			if err := s.repos.Entitlement.SetApprovalChat(ctx, ent.EntitlementID, req.ChatID); err != nil {
				log.Errorw("failed to record deferred approval",
					"entitlementId", ent.EntitlementID, "chatId", req.ChatID, "error", err)
			}
		}
	}
	if err := s.platform.RevokeChatInviteLink(ctx, chatID, link); err != nil {
		log.Warnw("failed to revoke consumed invite link", "chatId", chatID, "error", err)
	}

	s.timer.Schedule(userID, ent.EntitlementID, ent.ExpiresAt)
	_ = s.checkExpiry.Invalidate(ctx, userID)

	log.Infow("join request approved",
		"userId", userID,
		"entitlementId", ent.EntitlementID,
		"subscriberId", ent.SubscriberID,
		"expiresAt", ent.ExpiresAt,
	)
	return &Decision{
		Approve:         true,
		ApprovalPending: approvalPending,
		EntitlementID:   ent.EntitlementID,
		SubscriberID:    ent.SubscriberID,
		ExpiresAt:       ent.ExpiresAt,
	}, nil
}

// unusableReason tells a spent link apart from an unknown or lapsed one.
func (s *JoinService) unusableReason(ctx context.Context, link string) error {
	token, err := s.repos.InviteToken.GetByLink(ctx, link)
	switch {
	case err == nil && token.Used:
		return ErrAlreadyConsumed
	case err == nil || errors.Is(err, gorm.ErrRecordNotFound):
		return ErrInvalidOrExpiredToken
	default:
		return fmt.Errorf("%w: load token: %w", ErrPersistenceError, err)
	}
}

// synthesize creates the active entitlement of an anonymous token, owned by
// the subscriber already bound to userID or by tg_<userID>.
func (s *JoinService) synthesize(ctx context.Context, tx *repo.Repositories, token *model.InviteToken, userID int64, now time.Time) (*model.Entitlement, error) {
	subscriberID := model.AnonymousSubscriberPrefix + userKey(userID)
	sub, err := tx.Subscriber.GetByPlatformUser(ctx, userID)
	switch {
	case err == nil:
		subscriberID = sub.SubscriberID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	ent := &model.Entitlement{
		EntitlementID:  id.GetULID(),
		SubscriberID:   subscriberID,
		PlatformUserID: &userID,
		ChannelID:      token.ChannelID,
		Status:         statemachine.EntitlementActive,
		ExpiresAt:      now.Add(time.Duration(token.Duration) * time.Second),
		Duration:       token.Duration,
		ConfirmedAt:    now,
	}
	if err := tx.Entitlement.Create(ctx, ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// activate binds the user to the token's entitlement. Ended or lapsed
// entitlements reject the token.
func (s *JoinService) activate(ctx context.Context, tx *repo.Repositories, entitlementID string, userID int64, now time.Time) (*model.Entitlement, error) {
	ent, err := tx.Entitlement.GetByEntitlementID(ctx, entitlementID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}
	if ent.Status.IsTerminal() || ent.IsExpiredAt(now) {
		return nil, ErrInvalidOrExpiredToken
	}
	ok, err := tx.Entitlement.Activate(ctx, entitlementID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOrExpiredToken
	}
	ent.PlatformUserID = &userID
	ent.Status = statemachine.EntitlementActive
	return ent, nil
}
