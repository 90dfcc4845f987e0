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
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/go-arcade/gatekeeper/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const reconcileLockKey = "gatekeeper:lock:reconcile"

// SweepResult summarizes one reconciliation pass. Approved counts deferred
// join approvals that went through, ApprovalsOwed those left for later.
type SweepResult struct {
	Due           int           `json:"due"`
	Revoked       int           `json:"revoked"`
	Failed        int           `json:"failed"`
	Approved      int           `json:"approved"`
	ApprovalsOwed int           `json:"approvalsOwed"`
	Skipped       bool          `json:"skipped"`
	Duration      time.Duration `json:"duration"`
}

// Reconciler is the durable expiry path: it finds active entitlements whose
// expiry has passed and hands each to the Revoker. It also retries join
// approvals the platform refused at admission time.
type Reconciler struct {
	repos    *repo.Repositories
	platform telegram.Platform
	revoker  *Revoker
	cache   cache.ICache
	limiter *rate.Limiter
	metrics *metrics.AccessMetrics
	cfg     AccessConfig
	now     Clock
}

func NewReconciler(repos *repo.Repositories, platform telegram.Platform, revoker *Revoker, c cache.ICache, m *metrics.AccessMetrics, cfg AccessConfig, now Clock) *Reconciler {
	return &Reconciler{
		repos:    repos,
		platform: platform,
		revoker:  revoker,
		cache:    c,
		limiter:  cfg.limiter(),
		metrics:  m,
		cfg:      cfg,
		now:      now,
	}
}

// Sweep revokes every due entitlement, one at a time and paced by the rate
// limiter. A failed revocation is counted and left for the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) (res SweepResult, err error) {
	ctx, span := trace.StartSpan(ctx, "reconcile.sweep")
	defer func() {
		span.SetAttributes(
			attribute.Int("reconcile.due", res.Due),
			attribute.Int("reconcile.revoked", res.Revoked),
			attribute.Int("reconcile.failed", res.Failed),
			attribute.Int("reconcile.approved", res.Approved),
			attribute.Bool("reconcile.skipped", res.Skipped),
		)
		trace.End(span, err)
	}()
	start := time.Now()

	if r.cfg.ReconcileLock && r.cache != nil {
		lock, err := cache.AcquireLock(ctx, r.cache, reconcileLockKey, r.cfg.lockTTL())
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			log.Debugw("reconcile sweep skipped, another instance holds the lock")
			res.Skipped = true
			return res, nil
		case err != nil:
			log.Warnw("reconcile lock unavailable, sweeping without it", "error", err)
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					log.Warnw("failed to release reconcile lock", "error", err)
				}
			}()
		}
	}

	due, err := r.repos.Entitlement.ListDue(ctx, r.now(), r.cfg.ReconcileBatch)
	if err != nil {
		log.Errorw("reconcile sweep query failed", "error", err)
		return res, err
	}
	res.Due = len(due)

	for _, ent := range due {
		if err := r.limiter.Wait(ctx); err != nil {
			log.Warnw("reconcile sweep interrupted", "remaining", len(due)-res.Revoked-res.Failed, "error", err)
			break
		}
		if err := r.revoker.Revoke(ctx, ent.EntitlementID, TriggerReconcile); err != nil {
			res.Failed++
			log.Warnw("reconcile revocation failed", "entitlementId", ent.EntitlementID, "error", err)
			continue
		}
		res.Revoked++
	}

	r.retryApprovals(ctx, &res)

	res.Duration = time.Since(start)
	r.metrics.ReconcileSweeps.Inc()
	r.metrics.ReconcileRevoked.Add(float64(res.Revoked))
	r.metrics.ReconcileFailed.Add(float64(res.Failed))
	if res.Due > 0 || res.Approved > 0 || res.ApprovalsOwed > 0 {
		log.Infow("reconcile sweep finished",
			"due", res.Due, "revoked", res.Revoked, "failed", res.Failed,
			"approved", res.Approved, "approvalsOwed", res.ApprovalsOwed, "duration", res.Duration)
	} else {
		log.Debugw("reconcile sweep finished, nothing due")
	}
	return res, nil
}

// retryApprovals re-sends join approvals owed to admitted users. A transient
// failure keeps the debt for the next sweep; a permanent one (the request is
// gone) drops it.
func (r *Reconciler) retryApprovals(ctx context.Context, res *SweepResult) {
	owed, err := r.repos.Entitlement.ListApprovalPending(ctx, r.now(), r.cfg.ReconcileBatch)
	if err != nil {
		log.Errorw("deferred approval query failed", "error", err)
		return
	}
	for _, ent := range owed {
		if err := r.limiter.Wait(ctx); err != nil {
			res.ApprovalsOwed += len(owed) - res.Approved - res.ApprovalsOwed
			return
		}
		err := r.platform.ApproveChatJoinRequest(ctx, ent.ApprovalChatID, ent.UserID())
		switch {
		case err == nil:
			res.Approved++
			r.metrics.JoinApprovals.WithLabelValues("approved").Inc()
			log.Infow("deferred join approval sent",
				"entitlementId", ent.EntitlementID, "userId", ent.UserID(), "chatId", ent.ApprovalChatID)
		case telegram.IsRetryable(err):
			res.ApprovalsOwed++
			r.metrics.JoinApprovals.WithLabelValues("retry").Inc()
			log.Warnw("deferred join approval failed, will retry",
				"entitlementId", ent.EntitlementID, "chatId", ent.ApprovalChatID, "error", err)
			continue
		default:
			r.metrics.JoinApprovals.WithLabelValues("dropped").Inc()
			log.Warnw("deferred join approval dropped",
				"entitlementId", ent.EntitlementID, "chatId", ent.ApprovalChatID, "error", err)
		}
		if err := r.repos.Entitlement.SetApprovalChat(ctx, ent.EntitlementID, ""); err != nil {
			log.Errorw("failed to clear deferred approval", "entitlementId", ent.EntitlementID, "error", err)
		}
	}
}

// Job adapts Sweep to the cron scheduler.
func (r *Reconciler) Job(ctx context.Context) error {
	_, err := r.Sweep(ctx)
	return err
}
