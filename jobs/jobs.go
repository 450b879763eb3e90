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

// Package jobs records analysis jobs: their lifecycle, an append-only
// stream of progress updates, and the terminal result.
//
// A job is created pending, moves to running, and ends completed or
// failed. Once a job has ended its update stream is closed: Append and
// Finish return ErrFinished. Ended jobs may be evicted after a retention
// period.
//
// MemoryStore keeps everything in process. SQLiteStore persists to a
// SQLite database file.
package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown or evicted job IDs.
	ErrNotFound = errors.New("job not found")

	// ErrFinished is returned when changing a job that has already ended.
	ErrFinished = errors.New("job already finished")
)

// Status is the lifecycle stage of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the job has ended.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind classifies an update.
type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Update is one progress message. Seq increases strictly within a job.
type Update struct {
	Seq     int64     `json:"seq"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Job is the stored state of a job, without its updates.
type Job struct {
	ID       string    `json:"id"`
	Status   Status    `json:"status"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	Finished time.Time `json:"finished,omitzero"`
	Result   *Result   `json:"result,omitempty"`
}

// Result is the outcome of an analysis.
type Result struct {
	// Verdict is "safe", "unsafe" or "inconclusive".
	Verdict string `json:"verdict"`

	Findings []Finding `json:"findings,omitempty"`

	GlobalTransitions  int `json:"global_transitions"`
	GuardedTransitions int `json:"guarded_transitions"`
	Unmatched          int `json:"unmatched"`

	// Artifact is the path of the generated GAL file.
	Artifact string `json:"artifact,omitempty"`

	Protocol *Summary `json:"protocol,omitempty"`
}

// Finding is the oracle's answer for one unsafe configuration.
type Finding struct {
	Configuration string   `json:"configuration"`
	Transitions   []string `json:"transitions"`

	// Status is "reachable", "unreachable" or "unavailable".
	Status  string   `json:"status"`
	Witness []string `json:"witness,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Summary restates the analysed protocol.
type Summary struct {
	AgentStates         []StateFlag         `json:"agent_states"`
	AgentActions        []string            `json:"agent_actions"`
	AgentProtocol       map[string][]string `json:"agent_protocol,omitempty"`
	EnvironmentStates   []string            `json:"environment_states"`
	EnvironmentActions  []string            `json:"environment_actions"`
	EnvironmentProtocol map[string][]string `json:"environment_protocol,omitempty"`
}

// StateFlag is an agent state and whether agents may occupy it.
type StateFlag struct {
	Name string `json:"name"`
	Safe bool   `json:"safe"`
}

// Store persists jobs. Implementations must be safe for concurrent use.
// Updates of one job are returned in append order; updates of different
// jobs are independent.
type Store interface {
	// Create registers a new pending job with a fresh ID.
	Create(ctx context.Context) (Job, error)

	// Start marks a pending job running.
	Start(ctx context.Context, id string) error

	// Append adds an update to a job that has not ended.
	Append(ctx context.Context, id string, kind Kind, message string) (Update, error)

	// Finish ends the job with a terminal status. A nil result keeps the
	// stored one.
	Finish(ctx context.Context, id string, status Status, result *Result) error

	// Get returns the job without its updates.
	Get(ctx context.Context, id string) (Job, error)

	// Updates returns the job's updates with Seq greater than since.
	Updates(ctx context.Context, id string, since int64) ([]Update, error)

	// Evict deletes ended jobs that finished before cutoff and returns
	// how many were removed.
	Evict(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// ErrInvalidStatus is returned by Finish for a non-terminal status.
var ErrInvalidStatus = errors.New("status is not terminal")
