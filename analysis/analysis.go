// Copyright 2026 The JazzPetri Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package analysis runs the safety check of a population protocol as a
// job:
//
//  1. parse and structurally check the description
//  2. compose agent and environment into global transitions
//  3. encode the counter system and its unsafe configurations
//  4. write the system to <WorkDir>/<job>.gal
//  5. ask the oracle about every unsafe configuration, in parallel
//  6. fold the answers into a verdict
//
// Every step reports progress to the job store and the logger.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/atomic"

	"github.com/jazzpetri/popsafe/abstraction"
	"github.com/jazzpetri/popsafe/clock"
	"github.com/jazzpetri/popsafe/compose"
	"github.com/jazzpetri/popsafe/event"
	"github.com/jazzpetri/popsafe/jobs"
	"github.com/jazzpetri/popsafe/logging"
	"github.com/jazzpetri/popsafe/oracle"
	"github.com/jazzpetri/popsafe/telemetry"
)

// Defaults for Options.
const (
	DefaultWorkers    = 4
	DefaultJobWorkers = 2
	DefaultTTL        = time.Hour
)

// CompletedManually is the update Complete appends.
const CompletedManually = "marked as completed manually"

// Options configures a Service. Zero values take defaults, except
// InstanceBound which is used as given.
type Options struct {
	// InstanceBound caps the active agents. 0 means no agent ever
	// spawns; negative bounds fail every job.
	InstanceBound int

	MaxConcurrency int

	// Deduplicate collapses symmetric global transitions, see
	// compose.Options.
	Deduplicate bool

	// WorkDir receives the generated GAL files. Empty is the current
	// directory.
	WorkDir string

	// Workers bounds concurrent oracle queries across all jobs.
	Workers int

	// JobWorkers bounds jobs running in the background.
	JobWorkers int

	// TTL is how long finished jobs are kept by Evict.
	TTL time.Duration

	// Events, when set, receives every update as it is recorded.
	Events *event.Bus

	Logger    *slog.Logger
	Telemetry *telemetry.Telemetry
	Clock     clock.Clock
}

func (o Options) withDefaults() Options {
	if o.WorkDir == "" {
		o.WorkDir = "."
	}
	if o.MaxConcurrency == 0 {
		o.MaxConcurrency = compose.DefaultMaxConcurrency
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.JobWorkers <= 0 {
		o.JobWorkers = DefaultJobWorkers
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Telemetry == nil {
		o.Telemetry = telemetry.Nop()
	}
	if o.Clock == nil {
		o.Clock = clock.NewReal()
	}
	return o
}

// Service runs analyses and answers questions about their jobs. It is
// safe for concurrent use. Close stops its worker pools.
type Service struct {
	store  jobs.Store
	oracle oracle.Oracle
	opts   Options
	logger *slog.Logger
	tel    *telemetry.Telemetry

	queries pond.Pool
	runs    pond.Pool

	running   atomic.Int64
	closeOnce sync.Once
}

// New returns a Service that records jobs in store and decides
// reachability with orc.
func New(store jobs.Store, orc oracle.Oracle, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		store:   store,
		oracle:  orc,
		opts:    opts,
		logger:  opts.Logger.With("oracle", orc.Name()),
		tel:     opts.Telemetry,
		queries: pond.NewPool(opts.Workers),
		runs:    pond.NewPool(opts.JobWorkers),
	}
}

// Run analyses text and returns the finished job. Analysis failures end
// the job as failed and are not returned as errors; the error is only
// non-nil when the store fails.
func (s *Service) Run(ctx context.Context, text string) (jobs.Job, error) {
	job, err := s.store.Create(ctx)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", err)
	}
	s.analyze(ctx, job.ID, text)
	return s.store.Get(context.WithoutCancel(ctx), job.ID)
}

// Submit queues an analysis of text and returns the pending job at once.
// The analysis runs on the service's job pool, detached from ctx's
// cancellation.
func (s *Service) Submit(ctx context.Context, text string) (jobs.Job, error) {
	job, err := s.store.Create(ctx)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", err)
	}
	bg := context.WithoutCancel(ctx)
	if err := s.runs.Go(func() { s.analyze(bg, job.ID, text) }); err != nil {
		if ferr := s.store.Finish(bg, job.ID, jobs.StatusFailed, nil); ferr != nil {
			s.logger.Error("job could not be finished", "job_id", job.ID, "error", ferr)
		}
		return jobs.Job{}, fmt.Errorf("submit job %s: %w", job.ID, err)
	}
	s.logger.Info("job submitted", "job_id", job.ID)
	return job, nil
}

// Complete ends a job by hand with a success update.
func (s *Service) Complete(ctx context.Context, id string) error {
	if err := s.report(ctx, id, jobs.KindSuccess, CompletedManually); err != nil {
		return err
	}
	return s.store.Finish(ctx, id, jobs.StatusCompleted, nil)
}

// Get returns the status of a job.
func (s *Service) Get(ctx context.Context, id string) (jobs.Job, error) {
	return s.store.Get(ctx, id)
}

// Updates returns the updates of a job after sequence number since.
func (s *Service) Updates(ctx context.Context, id string, since int64) ([]jobs.Update, error) {
	return s.store.Updates(ctx, id, since)
}

// Running returns the number of analyses in progress.
func (s *Service) Running() int64 {
	return s.running.Load()
}

// Evict deletes jobs that finished more than the TTL ago.
func (s *Service) Evict(ctx context.Context) (int, error) {
	n, err := s.store.Evict(ctx, s.opts.Clock.Now().Add(-s.opts.TTL))
	if err != nil {
		return 0, fmt.Errorf("evict jobs: %w", err)
	}
	if n > 0 {
		s.logger.Debug("evicted finished jobs", "count", n)
	}
	return n, nil
}

// Janitor evicts expired jobs every interval until ctx is done.
func (s *Service) Janitor(ctx context.Context, every time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.opts.Clock.After(every):
			if _, err := s.Evict(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("job eviction failed", "error", err)
			}
		}
	}
}

// Close waits for queued and running analyses, then stops the pools.
// Later calls do nothing.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.runs.StopAndWait()
		s.queries.StopAndWait()
	})
}

// report appends an update, logs it and publishes it on the event bus.
func (s *Service) report(ctx context.Context, id string, kind jobs.Kind, msg string) error {
	u, err := s.store.Append(ctx, id, kind, msg)
	if err != nil {
		return fmt.Errorf("report to job %s: %w", id, err)
	}
	s.logger.Log(ctx, level(kind), msg, "job_id", id, "kind", string(kind))
	if s.opts.Events != nil {
		if err := s.opts.Events.Publish(event.Event{JobID: id, Update: u}); err != nil {
			s.logger.Debug("update not published", "job_id", id, "error", err)
		}
	}
	return nil
}

func level(k jobs.Kind) slog.Level {
	switch k {
	case jobs.KindWarning:
		return slog.LevelWarn
	case jobs.KindError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// encodeOptions returns the options for abstraction.Encode.
func (s *Service) encodeOptions(id string) abstraction.Options {
	return abstraction.Options{InstanceBound: s.opts.InstanceBound, Name: "job_" + sanitize(id)}
}

// sanitize maps an ID to a GAL identifier fragment.
func sanitize(id string) string {
	b := []byte(id)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			b[i] = '_'
		}
	}
	return string(b)
}
