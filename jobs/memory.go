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

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/jazzpetri/popsafe/clock"
)

// MemoryStore is an in-memory Store.
//
// When maxUpdates is positive each job keeps only its most recent
// maxUpdates updates; older ones are dropped first. Sequence numbers are
// drawn from one counter for the whole store, so they increase within a
// job but are not contiguous.
//
// The job map is guarded by a RWMutex; each job has its own mutex so
// appends to different jobs do not contend.
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[string]*memoryJob
	clock      clock.Clock
	maxUpdates int
	seq        atomic.Int64
}

type memoryJob struct {
	mu      sync.Mutex
	job     Job
	updates []Update
}

// NewMemoryStore returns an empty store. A nil clock uses the wall clock;
// maxUpdates of 0 keeps every update.
func NewMemoryStore(c clock.Clock, maxUpdates int) *MemoryStore {
	if c == nil {
		c = clock.NewReal()
	}
	return &MemoryStore{
		jobs:       make(map[string]*memoryJob),
		clock:      c,
		maxUpdates: maxUpdates,
	}
}

func (m *MemoryStore) lookup(id string) (*memoryJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return j, nil
}

// Create registers a new pending job.
func (m *MemoryStore) Create(ctx context.Context) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	now := m.clock.Now()
	job := Job{ID: uuid.NewString(), Status: StatusPending, Created: now, Updated: now}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &memoryJob{job: job}
	return job, nil
}

// Start marks a pending job running.
func (m *MemoryStore) Start(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j, err := m.lookup(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.job.Status.Terminal() {
		return fmt.Errorf("job %s: %w", id, ErrFinished)
	}
	j.job.Status = StatusRunning
	j.job.Updated = m.clock.Now()
	return nil
}

// Append adds an update to a job that has not ended.
func (m *MemoryStore) Append(ctx context.Context, id string, kind Kind, message string) (Update, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, err
	}
	j, err := m.lookup(id)
	if err != nil {
		return Update{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.job.Status.Terminal() {
		return Update{}, fmt.Errorf("job %s: %w", id, ErrFinished)
	}

	u := Update{Seq: m.seq.Inc(), Kind: kind, Message: message, Time: m.clock.Now()}
	if m.maxUpdates > 0 && len(j.updates) >= m.maxUpdates {
		j.updates = j.updates[1:]
	}
	j.updates = append(j.updates, u)
	j.job.Updated = u.Time
	return u, nil
}

// Finish ends the job.
func (m *MemoryStore) Finish(ctx context.Context, id string, status Status, result *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.Terminal() {
		return fmt.Errorf("finish job %s as %q: %w", id, status, ErrInvalidStatus)
	}
	j, err := m.lookup(id)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.job.Status.Terminal() {
		return fmt.Errorf("job %s: %w", id, ErrFinished)
	}
	now := m.clock.Now()
	j.job.Status = status
	j.job.Updated = now
	j.job.Finished = now
	if result != nil {
		j.job.Result = result
	}
	return nil
}

// Get returns the job.
func (m *MemoryStore) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	j, err := m.lookup(id)
	if err != nil {
		return Job{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.job, nil
}

// Updates returns a copy of the job's updates after since.
func (m *MemoryStore) Updates(ctx context.Context, id string, since int64) ([]Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	result := make([]Update, 0, len(j.updates))
	for _, u := range j.updates {
		if u.Seq > since {
			result = append(result, u)
		}
	}
	return result, nil
}

// Evict deletes ended jobs that finished before cutoff.
func (m *MemoryStore) Evict(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, j := range m.jobs {
		j.mu.Lock()
		expired := j.job.Status.Terminal() && j.job.Finished.Before(cutoff)
		j.mu.Unlock()
		if expired {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored jobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
