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

package clock

import (
	"sort"
	"sync"
	"time"
)

// Virtual is a manually advanced clock. Timers created by After fire, in
// deadline order, when Advance or Set moves the clock past their deadline.
type Virtual struct {
	mu      sync.Mutex
	current time.Time
	timers  []*timer
}

type timer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewVirtual returns a clock reading start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{current: start}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// After returns a channel that receives the virtual time once the clock
// reaches now+d. A non-positive d fires immediately.
func (v *Virtual) After(d time.Duration) <-chan time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	t := &timer{deadline: v.current.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.ch <- v.current
		return t.ch
	}
	v.timers = append(v.timers, t)
	return t.ch
}

// Advance moves the clock forward by d. Non-positive durations are
// ignored.
func (v *Virtual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = v.current.Add(d)
	v.fire()
}

// Set moves the clock to t. The clock never moves backward.
func (v *Virtual) Set(t time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !t.After(v.current) {
		return
	}
	v.current = t
	v.fire()
}

// Pending returns the number of timers that have not fired.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// fire must be called with mu held.
func (v *Virtual) fire() {
	sort.SliceStable(v.timers, func(i, j int) bool {
		return v.timers[i].deadline.Before(v.timers[j].deadline)
	})
	n := 0
	for _, t := range v.timers {
		if t.deadline.After(v.current) {
			break
		}
		t.ch <- v.current
		n++
	}
	v.timers = v.timers[n:]
}
