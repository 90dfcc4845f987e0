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
	"github.com/go-arcade/gatekeeper/pkg/retry"
	"gorm.io/gorm"
)

// IssueRequest asks for a single-use invite link. EntitlementID binds the
// link to that entitlement; SubscriberID binds it to the subscriber's newest
// live one. With neither the link is anonymous and synthesizes its
// entitlement on admission.
type IssueRequest struct {
	EntitlementID   string
	SubscriberID    *string
	DurationSeconds int64
	ChannelID       string
	Source          string
}

type IssueResult struct {
	Link          string
	LinkID        string
	ChannelID     string
	EntitlementID string
	ExpiresAt     time.Time
	Duration      time.Duration
}

// InviteService mints invite tokens backed by platform invite links.
type InviteService struct {
	repos    *repo.Repositories
	platform telegram.Platform
	registry *ChannelRegistry
	metrics  *metrics.AccessMetrics
	cfg      AccessConfig
	now      Clock
	backoff  retry.Backoff
}

func NewInviteService(
	repos *repo.Repositories,
	platform telegram.Platform,
	registry *ChannelRegistry,
	m *metrics.AccessMetrics,
	cfg AccessConfig,
	now Clock,
) *InviteService {
	return &InviteService{
		repos:    repos,
		platform: platform,
		registry: registry,
		metrics:  m,
		cfg:      cfg,
		now:      now,
		backoff:  retry.Exponential(200*time.Millisecond, 5*time.Second),
	}
}

// Issue creates the platform link and persists exactly one token for it.
func (s *InviteService) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	res, err := s.issue(ctx, req)
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.InvitesIssued.WithLabelValues(result).Inc()
	return res, err
}

func (s *InviteService) issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	now := s.now()
	duration := req.DurationSeconds
	channelID := req.ChannelID
	source := req.Source
	var ent *model.Entitlement

	if req.EntitlementID != "" || req.SubscriberID != nil {
		var err error
		if req.EntitlementID != "" {
			ent, err = s.repos.Entitlement.GetByEntitlementID(ctx, req.EntitlementID)
		} else {
			ent, err = s.repos.Entitlement.GetLatestLiveBySubscriber(ctx, *req.SubscriberID)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntitlementNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("%w: load entitlement: %w", ErrPersistenceError, err)
		}
		if !ent.Status.IsLive() || ent.IsExpiredAt(now) {
			return nil, ErrEntitlementNotFound
		}
		if duration <= 0 {
			duration = ent.Duration
		}
		if channelID == "" {
			channelID = ent.ChannelID
		}
		if source == "" {
			source = model.TokenSourcePayment
		}
	}
	if source == "" {
		source = model.TokenSourceAdmin
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	channelID, err := s.registry.Resolve(channelID)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(time.Duration(duration) * time.Second)
	if ent != nil && ent.ExpiresAt.Before(expiresAt) {
		expiresAt = ent.ExpiresAt
	}

	linkID := id.GetULID()
	var link *telegram.ChatInviteLink
	err = retry.Do(ctx, func(ctx context.Context) error {
		var err error
		link, err = s.platform.CreateChatInviteLink(ctx, channelID, telegram.InviteLinkOptions{
			Name:               linkName(ent),
			ExpireDate:         expiresAt.Unix(),
			CreatesJoinRequest: true,
		})
		return err
	},
		retry.WithMaxAttempts(s.cfg.InviteRetryAttempts),
		retry.WithBackoff(s.backoff),
		retry.WithJitter(retry.FullJitter),
		retry.WithRetryIf(telegram.IsRetryable),
		retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			log.Warnw("invite link creation failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	token := &model.InviteToken{
		Link:      link.InviteLink,
		LinkID:    linkID,
		ChannelID: channelID,
		ExpiresAt: expiresAt,
		Duration:  duration,
		Source:    source,
	}
	if ent != nil {
		token.EntitlementID = &ent.EntitlementID
	}
	if err := s.repos.InviteToken.Create(ctx, token); err != nil {
		log.Errorw("orphaned platform invite link: token not persisted",
			"link", link.InviteLink, "chatId", channelID, "expiresAt", expiresAt, "error", err)
		// an unrecorded link could never be consumed; withdraw it now, the
		// platform expire_date bounds it if this fails too
		if rerr := s.platform.RevokeChatInviteLink(context.WithoutCancel(ctx), channelID, link.InviteLink); rerr != nil {
			log.Warnw("failed to revoke orphaned invite link", "link", link.InviteLink, "error", rerr)
		}
		return nil, fmt.Errorf("%w: save invite token: %w", ErrPersistenceError, err)
	}

	res := &IssueResult{
		Link:      token.Link,
		LinkID:    token.LinkID,
		ChannelID: channelID,
		ExpiresAt: expiresAt,
		Duration:  time.Duration(duration) * time.Second,
	}
	if ent != nil {
		res.EntitlementID = ent.EntitlementID
	}
	log.Infow("invite link issued",
		"linkId", linkID, "entitlementId", res.EntitlementID, "chatId", channelID, "expiresAt", expiresAt)
	return res, nil
}

// linkName labels the link in the channel's invite list. The platform caps
// names at 32 characters.
func linkName(ent *model.Entitlement) string {
	name := "gk-" + id.GetShortID()
	if ent != nil {
		name = "gk-" + ent.SubscriberID
	}
	if len(name) > 32 {
		name = name[:32]
	}
	return name
}

// StoreExternal registers a link created outside the service as an
// anonymous token.
func (s *InviteService) StoreExternal(ctx context.Context, req model.StoreTestLinkReq) (*model.InviteToken, error) {
	link := strings.TrimSpace(req.Link)
	if link == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	now := s.now()
	if !req.ExpiresAt.After(now) {
		return nil, ErrInvalidDuration
	}
	duration := req.Duration
	if duration <= 0 {
		duration = int64(req.ExpiresAt.Sub(now) / time.Second)
	}
	// the entitlement window is counted in whole seconds
	if duration < 1 {
		return nil, ErrInvalidDuration
	}
	channelID, err := s.registry.Resolve(req.ChannelID)
	if err != nil {
		return nil, err
	}
	linkID := req.LinkID
	if linkID == "" {
		linkID = "test_" + id.GetULID()
	}

	token := &model.InviteToken{
		Link:      link,
		LinkID:    linkID,
		ChannelID: channelID,
		ExpiresAt: req.ExpiresAt,
		Duration:  duration,
		Source:    model.TokenSourceTest,
	}
	if err := s.repos.InviteToken.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("%w: save test link: %w", ErrPersistenceError, err)
	}
	log.Infow("external invite link stored", "linkId", linkID, "expiresAt", req.ExpiresAt, "duration", duration)
	return token, nil
}
