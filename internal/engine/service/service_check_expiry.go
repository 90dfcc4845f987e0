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
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"gorm.io/gorm"
)

const expiryKeyPrefix = "gatekeeper:expiry:"

// ExpiryVerdict answers whether a platform user should be removed.
type ExpiryVerdict struct {
	ShouldKick bool       `json:"shouldKick"`
	Reason     string     `json:"reason,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// membership is what gets cached. The verdict is derived from it at read
// time so a cached entry never outlives the expiry it describes.
type membership struct {
	Known     bool       `json:"known"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// CheckExpiryService evaluates check-expiry requests, caching lookups for a
// short TTL. Writers that change a user's standing call Invalidate.
type CheckExpiryService struct {
	repos *repo.Repositories
	cache cache.ICache
	ttl   time.Duration
	now   Clock
}

func NewCheckExpiryService(repos *repo.Repositories, c cache.ICache, ttl time.Duration, now Clock) *CheckExpiryService {
	return &CheckExpiryService{
		repos: repos,
		cache: c,
		ttl:   ttl,
		now:   now,
	}
}

func expiryKey(params ...any) string {
	return fmt.Sprintf("%s%v", expiryKeyPrefix, params[0])
}

// Check returns the verdict for userID.
func (s *CheckExpiryService) Check(ctx context.Context, userID int64) (ExpiryVerdict, error) {
	cq := cache.NewCachedQuery(
		s.cache,
		expiryKey,
		func(ctx context.Context, _ string) (membership, error) {
			return s.lookup(ctx, userID)
		},
		cache.WithTTL[membership](s.ttl),
		cache.WithLogPrefix[membership]("[CheckExpiry]"),
	)
	m, err := cq.Get(ctx, userKey(userID))
	if err != nil {
		return ExpiryVerdict{}, fmt.Errorf("%w: %w", ErrPersistenceError, err)
	}

	switch {
	case !m.Known:
		return ExpiryVerdict{ShouldKick: true, Reason: ReasonUserNotFound}, nil
	case m.ExpiresAt == nil:
		return ExpiryVerdict{ShouldKick: true, Reason: ReasonNoSubscription}, nil
	case !m.ExpiresAt.After(s.now()):
		return ExpiryVerdict{ShouldKick: true, Reason: ReasonSubscriptionEnd, ExpiresAt: m.ExpiresAt}, nil
	default:
		return ExpiryVerdict{ShouldKick: false, ExpiresAt: m.ExpiresAt}, nil
	}
}

func (s *CheckExpiryService) lookup(ctx context.Context, userID int64) (membership, error) {
	_, err := s.repos.Subscriber.GetByPlatformUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_, err = s.repos.Entitlement.GetLatestByPlatformUser(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return membership{}, nil
		}
	}
	if err != nil {
		return membership{}, err
	}

	ent, err := s.repos.Entitlement.GetActiveByPlatformUser(ctx, userID, s.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return membership{Known: true}, nil
	}
	if err != nil {
		return membership{}, err
	}
	expiresAt := ent.ExpiresAt
	return membership{Known: true, ExpiresAt: &expiresAt}, nil
}

// Invalidate drops the cached lookup for userID.
func (s *CheckExpiryService) Invalidate(ctx context.Context, userID int64) error {
	return cache.NewCachedQuery[membership](s.cache, expiryKey, nil).Invalidate(ctx, userKey(userID))
}
