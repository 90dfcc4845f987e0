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
	"strconv"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
	"github.com/go-arcade/gatekeeper/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Trigger names what asked for a revocation.
type Trigger string

const (
	TriggerTimer     Trigger = "timer"
	TriggerReconcile Trigger = "reconcile"
	TriggerManual    Trigger = "manual"
)

// event maps the trigger to the entitlement event it fires.
func (t Trigger) event() statemachine.Event {
	if t == TriggerManual {
		return statemachine.EventRevoke
	}
	return statemachine.EventExpire
}

// joinEvent maps the trigger to the subscriber join event.
func (t Trigger) joinEvent() statemachine.Event {
	if t == TriggerManual {
		return statemachine.EventKick
	}
	return statemachine.EventExpire
}

// Revoker removes subscribers from their channel and ends their entitlement.
// It is safe to call any number of times for the same entitlement.
type Revoker struct {
	repos       *repo.Repositories
	platform    telegram.Platform
	registry    *ChannelRegistry
	timer       *TimerScheduler
	checkExpiry *CheckExpiryService
	metrics     *metrics.AccessMetrics
	now         Clock

	group         singleflight.Group
	entitlementSM *statemachine.StateMachine[statemachine.EntitlementStatus]
	joinSM        *statemachine.StateMachine[statemachine.JoinStatus]
}

func NewRevoker(
	repos *repo.Repositories,
	platform telegram.Platform,
	registry *ChannelRegistry,
	timer *TimerScheduler,
	checkExpiry *CheckExpiryService,
	m *metrics.AccessMetrics,
	now Clock,
) *Revoker {
	return &Revoker{
		repos:         repos,
		platform:      platform,
		registry:      registry,
		timer:         timer,
		checkExpiry:   checkExpiry,
		metrics:       m,
		now:           now,
		entitlementSM: statemachine.NewEntitlementStateMachine(),
		joinSM:        statemachine.NewJoinStateMachine(),
	}
}

// HandleTimer is the TimerScheduler handler.
func (r *Revoker) HandleTimer(ctx context.Context, userID int64, entitlementID string) {
	if err := r.Revoke(ctx, entitlementID, TriggerTimer); err != nil {
		log.Warnw("timer revocation failed, reconciler will retry",
			"userId", userID, "entitlementId", entitlementID, "error", err)
	}
}

// Revoke ends the entitlement. An entitlement already ended is a success
// without a platform call. Concurrent calls for one entitlement share a
// single execution.
func (r *Revoker) Revoke(ctx context.Context, entitlementID string, trigger Trigger) error {
	ctx, span := trace.StartSpan(ctx, "revoke")
	span.SetAttributes(
		attribute.String("entitlement.id", entitlementID),
		attribute.String("revoke.trigger", string(trigger)),
	)
	_, err, _ := r.group.Do(entitlementID, func() (any, error) {
		return nil, r.revoke(ctx, entitlementID, trigger)
	})
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.metrics.Revocations.WithLabelValues(string(trigger), result).Inc()
	trace.End(span, err)
	return err
}

func (r *Revoker) revoke(ctx context.Context, entitlementID string, trigger Trigger) error {
	ent, err := r.repos.Entitlement.GetByEntitlementID(ctx, entitlementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntitlementNotFound
		}
		return fmt.Errorf("%w: load entitlement: %w", ErrPersistenceError, err)
	}
	if ent.Status.IsTerminal() {
		return nil
	}
	target, err := r.entitlementSM.Fire(ent.Status, trigger.event())
	if err != nil {
		// a pending entitlement has nobody to expire
		log.Debugw("nothing to revoke", "entitlementId", entitlementID, "status", ent.Status, "trigger", trigger)
		return nil
	}
	now := r.now()
	userID := ent.UserID()

	if userID != 0 && target == statemachine.EntitlementExpired {
		other, err := r.repos.Entitlement.GetActiveByPlatformUser(ctx, userID, now)
		if err == nil && other.EntitlementID != ent.EntitlementID {
			return r.finish(ctx, ent, target, trigger, "superseded", now, false)
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: load active entitlement: %w", ErrPersistenceError, err)
		}
	}

	if userID != 0 {
		chatID := ent.ChannelID
		if chatID == "" {
			chatID = r.registry.Default()
		}
		if err := r.removeMember(ctx, chatID, userID); err != nil {
			log.Warnw("platform removal failed",
				"entitlementId", entitlementID, "userId", userID, "chatId", chatID, "error", err)
			return err
		}
	} else {
		log.Warnw("active entitlement without platform user, ending without platform call", "entitlementId", entitlementID)
	}
	return r.finish(ctx, ent, target, trigger, string(trigger), now, true)
}

// removeMember bans then immediately unbans, which removes the member while
// leaving them free to rejoin on a new entitlement.
func (r *Revoker) removeMember(ctx context.Context, chatID string, userID int64) error {
	if err := r.platform.BanChatMember(ctx, chatID, userID); err != nil {
		return fmt.Errorf("%w: ban: %w", ErrRevocationFailed, err)
	}
	if err := r.platform.UnbanChatMember(ctx, chatID, userID, true); err != nil {
		return fmt.Errorf("%w: unban: %w", ErrRevocationFailed, err)
	}
	return nil
}

func (r *Revoker) finish(ctx context.Context, ent *model.Entitlement, target statemachine.EntitlementStatus, trigger Trigger, reason string, now time.Time, removed bool) error {
	ended, err := r.repos.Entitlement.End(ctx, ent.EntitlementID, r.entitlementSM.Sources(target), target, reason, now)
	if err != nil {
		// platform removal already happened; the next sweep converges the row
		log.Errorw("entitlement status update failed after platform removal",
			"entitlementId", ent.EntitlementID, "removed", removed, "error", err)
		return fmt.Errorf("%w: end entitlement: %w", ErrPersistenceError, err)
	}
	if !ended {
		log.Debugw("entitlement already ended elsewhere", "entitlementId", ent.EntitlementID)
	}

	userID := ent.UserID()
	if removed {
		joinTarget, _ := r.joinSM.Fire(statemachine.JoinJoined, trigger.joinEvent())
		if _, err := r.repos.Subscriber.SetJoinStatus(ctx, ent.SubscriberID, r.joinSM.Sources(joinTarget), joinTarget, now); err != nil {
			log.Warnw("join status update failed", "subscriberId", ent.SubscriberID, "error", err)
		}
	}
	if userID != 0 {
		r.timer.CancelFor(userID, ent.EntitlementID)
		_ = r.checkExpiry.Invalidate(ctx, userID)
	}

	log.Infow("entitlement ended",
		"entitlementId", ent.EntitlementID,
		"subscriberId", ent.SubscriberID,
		"userId", userID,
		"status", target,
		"reason", reason,
	)
	return nil
}

// Kick revokes every active entitlement of userID. A user without one is
// still removed from the default channel. It returns the number of
// entitlements revoked.
func (r *Revoker) Kick(ctx context.Context, userID int64, reason string) (int, error) {
	list, err := r.repos.Entitlement.ListActiveByPlatformUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: list entitlements: %w", ErrPersistenceError, err)
	}
	log.Infow("kick requested", "userId", userID, "reason", reason, "entitlements", len(list))

	if len(list) == 0 {
		chatID := r.registry.Default()
		if chatID == "" {
			return 0, ErrChannelNotManaged
		}
		if err := r.removeMember(ctx, chatID, userID); err != nil {
			r.metrics.Revocations.WithLabelValues(string(TriggerManual), "error").Inc()
			return 0, err
		}
		r.metrics.Revocations.WithLabelValues(string(TriggerManual), "ok").Inc()
		if sub, err := r.repos.Subscriber.GetByPlatformUser(ctx, userID); err == nil {
			_, _ = r.repos.Subscriber.SetJoinStatus(ctx, sub.SubscriberID, r.joinSM.Sources(statemachine.JoinKicked), statemachine.JoinKicked, r.now())
		}
		r.timer.Cancel(userID)
		_ = r.checkExpiry.Invalidate(ctx, userID)
		return 0, nil
	}

	var (
		revoked int
		errs    []error
	)
	for _, ent := range list {
		if err := r.Revoke(ctx, ent.EntitlementID, TriggerManual); err != nil {
			errs = append(errs, err)
			continue
		}
		revoked++
	}
	return revoked, errors.Join(errs...)
}

// userKey renders a platform user id for log and cache keys.
func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
