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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AccessMetrics covers invite issuance, admission, timers and revocation.
type AccessMetrics struct {
	InvitesIssued    *prometheus.CounterVec // result
	Admissions       *prometheus.CounterVec // result
	Revocations      *prometheus.CounterVec // trigger, result
	ReconcileSweeps  prometheus.Counter
	ReconcileRevoked prometheus.Counter
	ReconcileFailed  prometheus.Counter
	JoinApprovals    *prometheus.CounterVec // result
	ScheduledTimers  prometheus.Gauge
}

// NewAccessMetrics creates and registers the access collectors on reg.
func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	m := &AccessMetrics{
		InvitesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_invites_issued_total",
			Help: "Invite links issued, by result",
		}, []string{"result"}),
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_admissions_total",
			Help: "Join requests decided, by result",
		}, []string{"result"}),
		Revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_revocations_total",
			Help: "Revocation attempts, by trigger and result",
		}, []string{"trigger", "result"}),
		ReconcileSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "access_reconcile_sweeps_total",
			Help: "Completed reconciliation sweeps",
		}),
		ReconcileRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "access_reconcile_revoked_total",
			Help: "Entitlements revoked by the reconciler",
		}),
		ReconcileFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "access_reconcile_failed_total",
			Help: "Entitlements the reconciler failed to revoke",
		}),
		JoinApprovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_join_approvals_total",
			Help: "Deferred join approvals retried by the reconciler, by result",
		}, []string{"result"}),
		ScheduledTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "access_scheduled_timers",
			Help: "Pending in-process expiry timers",
		}),
	}
	reg.MustRegister(
		m.InvitesIssued,
		m.Admissions,
		m.Revocations,
		m.ReconcileSweeps,
		m.ReconcileRevoked,
		m.ReconcileFailed,
		m.JoinApprovals,
		m.ScheduledTimers,
	)
	return m
}

// NewNopAccessMetrics returns collectors bound to a throwaway registry.
func NewNopAccessMetrics() *AccessMetrics {
	return NewAccessMetrics(prometheus.NewRegistry())
}
