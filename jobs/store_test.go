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
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jazzpetri/popsafe/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T, c clock.Clock) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, c clock.Clock) Store {
			return NewMemoryStore(c, 0)
		},
		"sqlite": func(t *testing.T, c clock.Clock) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"), c)
			if err != nil {
				t.Fatalf("OpenSQLite() error = %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// eachStore runs fn against every Store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, s Store, c *clock.Virtual)) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			c := clock.NewVirtual(epoch)
			fn(t, open(t, c), c)
		})
	}
}

func TestStore_Lifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, c *clock.Virtual) {
		ctx := context.Background()

		job, err := s.Create(ctx)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if job.ID == "" {
			t.Fatal("Create() returned an empty ID")
		}
		if job.Status != StatusPending {
			t.Errorf("Status = %q, expected %q", job.Status, StatusPending)
		}

		if err := s.Start(ctx, job.ID); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		c.Advance(time.Second)
		first, err := s.Append(ctx, job.ID, KindInfo, "parsed protocol")
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		c.Advance(time.Second)
		second, err := s.Append(ctx, job.ID, KindWarning, "unmatched synchronization")
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if second.Seq <= first.Seq {
			t.Errorf("sequence did not increase: %d then %d", first.Seq, second.Seq)
		}
		if !second.Time.Equal(epoch.Add(2 * time.Second)) {
			t.Errorf("update time = %v, expected %v", second.Time, epoch.Add(2*time.Second))
		}

		got, err := s.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != StatusRunning {
			t.Errorf("Status = %q, expected %q", got.Status, StatusRunning)
		}

		all, err := s.Updates(ctx, job.ID, 0)
		if err != nil {
			t.Fatalf("Updates() error = %v", err)
		}
		if len(all) != 2 || all[0].Message != "parsed protocol" || all[1].Kind != KindWarning {
			t.Errorf("Updates(0) = %+v", all)
		}

		tail, err := s.Updates(ctx, job.ID, first.Seq)
		if err != nil {
			t.Fatalf("Updates() error = %v", err)
		}
		if len(tail) != 1 || tail[0].Seq != second.Seq {
			t.Errorf("Updates(%d) = %+v, expected only seq %d", first.Seq, tail, second.Seq)
		}

		result := &Result{
			Verdict:           "unsafe",
			GlobalTransitions: 4,
			Findings: []Finding{{
				Configuration: "{approach:2, light_green:1}",
				Transitions:   []string{"t3"},
				Status:        "reachable",
				Witness:       []string{"spawn", "spawn", "t1", "t1"},
			}},
			Protocol: &Summary{
				AgentStates:   []StateFlag{{Name: "outside", Safe: true}, {Name: "collision"}},
				AgentProtocol: map[string][]string{"outside": {"enter"}},
			},
		}
		c.Advance(time.Second)
		if err := s.Finish(ctx, job.ID, StatusCompleted, result); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}

		got, err = s.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != StatusCompleted {
			t.Errorf("Status = %q, expected %q", got.Status, StatusCompleted)
		}
		if !got.Finished.Equal(epoch.Add(3 * time.Second)) {
			t.Errorf("Finished = %v, expected %v", got.Finished, epoch.Add(3*time.Second))
		}
		if got.Result == nil {
			t.Fatal("Result = nil")
		}
		if got.Result.Verdict != "unsafe" || len(got.Result.Findings) != 1 ||
			got.Result.Findings[0].Witness[3] != "t1" || got.Result.Protocol.AgentStates[1].Safe {
			t.Errorf("Result = %+v", got.Result)
		}
	})
}

func TestStore_FinishedJobIsClosed(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, _ *clock.Virtual) {
		ctx := context.Background()
		job, _ := s.Create(ctx)
		if err := s.Finish(ctx, job.ID, StatusFailed, nil); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}

		if _, err := s.Append(ctx, job.ID, KindInfo, "late"); !errors.Is(err, ErrFinished) {
			t.Errorf("Append() error = %v, expected ErrFinished", err)
		}
		if err := s.Finish(ctx, job.ID, StatusCompleted, nil); !errors.Is(err, ErrFinished) {
			t.Errorf("second Finish() error = %v, expected ErrFinished", err)
		}
		if err := s.Start(ctx, job.ID); !errors.Is(err, ErrFinished) {
			t.Errorf("Start() error = %v, expected ErrFinished", err)
		}

		got, _ := s.Get(ctx, job.ID)
		if got.Status != StatusFailed {
			t.Errorf("Status = %q, expected %q", got.Status, StatusFailed)
		}
		if got.Result != nil {
			t.Errorf("Result = %+v, expected nil", got.Result)
		}
	})
}

func TestStore_InvalidStatus(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, _ *clock.Virtual) {
		ctx := context.Background()
		job, _ := s.Create(ctx)
		if err := s.Finish(ctx, job.ID, StatusRunning, nil); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("Finish(running) error = %v, expected ErrInvalidStatus", err)
		}
	})
}

func TestStore_NotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, _ *clock.Virtual) {
		ctx := context.Background()
		const id = "00000000-0000-0000-0000-000000000000"

		if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v", err)
		}
		if err := s.Start(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Start() error = %v", err)
		}
		if _, err := s.Append(ctx, id, KindInfo, "x"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Append() error = %v", err)
		}
		if err := s.Finish(ctx, id, StatusCompleted, nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("Finish() error = %v", err)
		}
		if _, err := s.Updates(ctx, id, 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("Updates() error = %v", err)
		}
	})
}

func TestStore_Evict(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, c *clock.Virtual) {
		ctx := context.Background()

		old, _ := s.Create(ctx)
		_, _ = s.Append(ctx, old.ID, KindInfo, "started")
		_ = s.Finish(ctx, old.ID, StatusCompleted, nil)

		c.Advance(2 * time.Hour)
		recent, _ := s.Create(ctx)
		_ = s.Finish(ctx, recent.ID, StatusCompleted, nil)
		running, _ := s.Create(ctx)
		_ = s.Start(ctx, running.ID)

		c.Advance(time.Hour)
		n, err := s.Evict(ctx, c.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("Evict() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Evict() = %d, expected 1", n)
		}

		if _, err := s.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("evicted job: Get() error = %v", err)
		}
		if _, err := s.Updates(ctx, old.ID, 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("evicted job: Updates() error = %v", err)
		}
		for _, id := range []string{recent.ID, running.ID} {
			if _, err := s.Get(ctx, id); err != nil {
				t.Errorf("Get(%s) error = %v", id, err)
			}
		}
	})
}

func TestStore_ConcurrentAppend(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, _ *clock.Virtual) {
		ctx := context.Background()
		job, _ := s.Create(ctx)

		const writers, each = 8, 10
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < each; i++ {
					if _, err := s.Append(ctx, job.ID, KindInfo, fmt.Sprintf("w%d-%d", w, i)); err != nil {
						t.Errorf("Append() error = %v", err)
						return
					}
				}
			}(w)
		}
		wg.Wait()

		updates, err := s.Updates(ctx, job.ID, 0)
		if err != nil {
			t.Fatalf("Updates() error = %v", err)
		}
		if len(updates) != writers*each {
			t.Fatalf("len(Updates) = %d, expected %d", len(updates), writers*each)
		}
		for i := 1; i < len(updates); i++ {
			if updates[i].Seq <= updates[i-1].Seq {
				t.Fatalf("updates out of order at %d: %d then %d", i, updates[i-1].Seq, updates[i].Seq)
			}
		}
	})
}

func TestStore_CancelledContext(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, _ *clock.Virtual) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := s.Create(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Create() error = %v, expected context.Canceled", err)
		}
	})
}

func TestMemoryStore_MaxUpdates(t *testing.T) {
	s := NewMemoryStore(nil, 3)
	ctx := context.Background()
	job, _ := s.Create(ctx)
	for i := 0; i < 5; i++ {
		_, _ = s.Append(ctx, job.ID, KindInfo, fmt.Sprintf("update %d", i))
	}

	updates, _ := s.Updates(ctx, job.ID, 0)
	if len(updates) != 3 {
		t.Fatalf("len(Updates) = %d, expected 3", len(updates))
	}
	if updates[0].Message != "update 2" {
		t.Errorf("oldest kept update = %q, expected %q", updates[0].Message, "update 2")
	}
}

func TestMemoryStore_Len(t *testing.T) {
	s := NewMemoryStore(nil, 0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = s.Create(ctx)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, expected 3", s.Len())
	}
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	if _, err := OpenSQLite("  ", nil); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	job, _ := s.Create(ctx)
	_, _ = s.Append(ctx, job.ID, KindSuccess, "done")
	_ = s.Finish(ctx, job.ID, StatusCompleted, &Result{Verdict: "safe"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Result == nil || got.Result.Verdict != "safe" {
		t.Errorf("Result = %+v, expected verdict safe", got.Result)
	}
	updates, _ := s.Updates(ctx, job.ID, 0)
	if len(updates) != 1 || updates[0].Kind != KindSuccess {
		t.Errorf("Updates() = %+v", updates)
	}
}

func TestUpSection(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "CREATE TABLE a (x INT);", "CREATE TABLE a (x INT);"},
		{"up only", "-- +migrate Up\nCREATE TABLE a (x INT);", "\nCREATE TABLE a (x INT);"},
		{"up and down", "-- +migrate Up\nA;\n-- +migrate Down\nB;", "\nA;\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := upSection(tt.in); got != tt.want {
				t.Errorf("upSection() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	for st, want := range map[Status]bool{
		StatusPending: false, StatusRunning: false, StatusCompleted: true, StatusFailed: true,
	} {
		if st.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, expected %v", st, st.Terminal(), want)
		}
	}
}
