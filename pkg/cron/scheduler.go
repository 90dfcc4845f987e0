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

// Package cron runs named background jobs on cron specs. Each job gets the
// scheduler context, is skipped while its previous run is still going, and
// has its panics recovered and its runs recorded.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/safe"
	"github.com/robfig/cron"
)

var (
	ErrDuplicateJob = errors.New("cron job already registered")
	ErrUnknownJob   = errors.New("cron job not registered")
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// MetricsRecorder receives job run observations.
type MetricsRecorder interface {
	RecordJobRun(name string, d time.Duration, err error)
	UpdateNextRun(name string, next time.Time)
}

// Entry describes a registered job.
type Entry struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type namedJob struct {
	name    string
	spec    string
	fn      JobFunc
	sched   *Scheduler
	running atomic.Bool
}

func (j *namedJob) Run() {
	j.sched.run(j)
}

// Scheduler wraps a robfig cron instance with named jobs.
type Scheduler struct {
	cron    *cron.Cron
	metrics MetricsRecorder

	mu      sync.Mutex
	jobs    map[string]*namedJob
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records job runs on m.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithLocation evaluates specs in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = cron.NewWithLocation(loc)
	}
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(),
		jobs:   make(map[string]*namedJob),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFunc registers fn under name. Specs accept six fields (with seconds) or
// descriptors such as "@every 1m" and "@hourly".
func (s *Scheduler) AddFunc(name, spec string, fn JobFunc) error {
	if _, err := cron.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q for job %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	job := &namedJob{name: name, spec: spec, fn: fn, sched: s}
	if err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("add cron job %s: %w", name, err)
	}
	s.jobs[name] = job
	log.Infow("cron job registered", "job", name, "spec", spec)
	return nil
}

// RunNow runs the named job once in the background, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	safe.GoNamed("cron:"+name, job.Run)
	return nil
}

func (s *Scheduler) run(j *namedJob) {
	if !j.running.CompareAndSwap(false, true) {
		log.Warnw("cron job still running, skipping this tick", "job", j.name)
		return
	}
	defer j.running.Store(false)

	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	var err error
	safe.DoNamed("cron:"+j.name, func() {
		err = j.fn(s.ctx)
	})
	elapsed := time.Since(start)

	if err != nil {
		log.Errorw("cron job failed", "job", j.name, "elapsed", elapsed, "error", err)
	} else {
		log.Debugw("cron job finished", "job", j.name, "elapsed", elapsed)
	}
	if s.metrics != nil {
		s.metrics.RecordJobRun(j.name, elapsed, err)
		s.recordNext()
	}
}

func (s *Scheduler) recordNext() {
	for _, e := range s.Entries() {
		s.metrics.UpdateNextRun(e.Name, e.Next)
	}
}

// Entries lists registered jobs with their next and previous fire times.
func (s *Scheduler) Entries() []Entry {
	var out []Entry
	for _, e := range s.cron.Entries() {
		j, ok := e.Job.(*namedJob)
		if !ok {
			continue
		}
		out = append(out, Entry{Name: j.name, Spec: j.spec, Next: e.Next, Prev: e.Prev})
	}
	return out
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	if s.metrics != nil {
		go s.recordNext()
	}
	log.Infow("cron scheduler started", "jobs", len(s.jobs))
}

// Stop halts scheduling, cancels the job context and waits for running jobs
// until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.cron.Stop()
		s.started = false
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
