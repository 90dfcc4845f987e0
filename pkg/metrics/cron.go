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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronMetrics records scheduled job runs.
type CronMetrics struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  *prometheus.GaugeVec
	nextRun  *prometheus.GaugeVec
}

// NewCronMetrics creates and registers the cron collectors on reg.
func NewCronMetrics(reg prometheus.Registerer) *CronMetrics {
	m := &CronMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Total number of cron job runs",
		}, []string{"job_name"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_errors_total",
			Help: "Total number of cron job errors",
		}, []string{"job_name"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_run_duration_seconds",
			Help:    "Duration of cron job runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"job_name"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_run_time_seconds",
			Help: "Last run time of cron job in seconds since epoch",
		}, []string{"job_name"}),
		nextRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_next_run_time_seconds",
			Help: "Next scheduled run time of cron job in seconds since epoch",
		}, []string{"job_name"}),
	}
	reg.MustRegister(m.runs, m.errors, m.duration, m.lastRun, m.nextRun)
	return m
}

// RecordJobRun records one run of job name.
func (m *CronMetrics) RecordJobRun(name string, d time.Duration, err error) {
	if err != nil {
		m.errors.WithLabelValues(name).Inc()
	}
	m.runs.WithLabelValues(name).Inc()
	m.duration.WithLabelValues(name).Observe(d.Seconds())
	m.lastRun.WithLabelValues(name).Set(float64(time.Now().Unix()))
}

// UpdateNextRun records when job name fires next.
func (m *CronMetrics) UpdateNextRun(name string, next time.Time) {
	if !next.IsZero() {
		m.nextRun.WithLabelValues(name).Set(float64(next.Unix()))
	}
}
