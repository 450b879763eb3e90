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

// Package verification explores the reachable markings of a counter system
// and checks properties over them.
//
// The verifier builds the reachability graph of a gal.System breadth-first
// from its declared initial values. A successor exists wherever a
// transition is fireable: its guard holds and no counter goes negative.
// Generated systems are finite because the spawn transition is bounded by
// the instance bound, but the graph grows quickly with the bound, so
// exploration always runs under a state limit.
//
// # Usage
//
//	v := verification.NewVerifier(sys, 100000)
//	res, err := v.Reach(ctx, verification.Exactly(target, "count"))
//	if errors.Is(err, verification.ErrStateLimit) {
//	    // neither found nor excluded
//	}
//
// # Properties
//
// Over a fully built state space the verifier can check:
//   - Boundedness: the largest counter value seen
//   - Deadlock freedom: every non-terminal marking has a fireable transition
//   - Reachability: a partial marking is matched by some reachable marking
//   - Invariants: a linear inequality over counters holds everywhere
//   - Mutual exclusion: two counters are never positive together
package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/jazzpetri/popsafe/gal"
)

// DefaultMaxStates is used when NewVerifier is given a non-positive limit.
const DefaultMaxStates = 10000

// ErrStateLimit is returned when exploration stops at the state limit. Any
// result returned with it covers only the explored part.
var ErrStateLimit = errors.New("state space limit reached")

// State is a node of the reachability graph.
type State struct {
	// ID is assigned in discovery order; the initial state is 0.
	ID int

	Marking gal.Marking
}

// StateSpace is the reachability graph of a counter system.
type StateSpace struct {
	// States is indexed by State.ID.
	States []*State

	// Edges maps a state ID to its outgoing edges in transition
	// declaration order.
	Edges map[int][]Edge

	// Initial is the ID of the initial state (always 0).
	Initial int

	// Complete is false when exploration stopped early.
	Complete bool

	// stateIndex maps marking keys to state IDs.
	stateIndex map[string]int
}

// EdgeCount returns the total number of edges.
func (ss *StateSpace) EdgeCount() int {
	n := 0
	for _, edges := range ss.Edges {
		n += len(edges)
	}
	return n
}

// Lookup returns the state holding m, if it was discovered.
func (ss *StateSpace) Lookup(m gal.Marking) (*State, bool) {
	id, ok := ss.stateIndex[m.Key()]
	if !ok {
		return nil, false
	}
	return ss.States[id], true
}

// Edge is one firing in the reachability graph.
type Edge struct {
	From       int
	To         int
	Transition string
}

// Verifier explores one counter system.
//
// The verifier never modifies the system. It is safe to share between
// goroutines as long as nobody adds transitions to the system meanwhile.
type Verifier struct {
	sys *gal.System

	// maxStates bounds exploration.
	maxStates int

	// terminal marks markings that are expected to have no successor.
	terminal func(gal.Marking) bool
}

// NewVerifier creates a verifier for sys. A non-positive maxStates means
// DefaultMaxStates.
func NewVerifier(sys *gal.System, maxStates int) *Verifier {
	if maxStates <= 0 {
		maxStates = DefaultMaxStates
	}
	return &Verifier{
		sys:       sys,
		maxStates: maxStates,
		terminal:  func(gal.Marking) bool { return false },
	}
}

// WithTerminal sets the predicate for markings where a lack of fireable
// transitions is intended. By default every such marking is a deadlock.
func (v *Verifier) WithTerminal(terminal func(gal.Marking) bool) *Verifier {
	v.terminal = terminal
	return v
}

// MaxStates returns the exploration limit.
func (v *Verifier) MaxStates() int {
	return v.maxStates
}

// BuildStateSpace explores every marking reachable from the declared
// initial values.
//
// The returned StateSpace is always non-nil. When the limit is reached the
// error wraps ErrStateLimit and the graph is partial; properties can still
// be checked on it but only describe the explored part. The context is
// checked before each state is expanded.
func (v *Verifier) BuildStateSpace(ctx context.Context) (*StateSpace, error) {
	initial := v.sys.Initial()

	ss := &StateSpace{
		States:     []*State{{ID: 0, Marking: initial}},
		Edges:      make(map[int][]Edge),
		stateIndex: map[string]int{initial.Key(): 0},
	}

	queue := []int{0}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return ss, err
		}
		if len(ss.States) >= v.maxStates {
			return ss, fmt.Errorf("%w (%d states)", ErrStateLimit, v.maxStates)
		}

		currentID := queue[0]
		queue = queue[1:]

		for _, step := range v.sys.Fireable(ss.States[currentID].Marking) {
			key := step.Marking.Key()
			nextID, seen := ss.stateIndex[key]
			if !seen {
				nextID = len(ss.States)
				ss.States = append(ss.States, &State{ID: nextID, Marking: step.Marking})
				ss.stateIndex[key] = nextID
				queue = append(queue, nextID)
			}
			ss.Edges[currentID] = append(ss.Edges[currentID], Edge{
				From:       currentID,
				To:         nextID,
				Transition: step.Transition,
			})
		}
	}

	ss.Complete = true
	return ss, nil
}

// Reach searches breadth-first for a marking satisfying match and stops
// at the first one, so the witness is a shortest firing sequence.
//
// The result is Satisfied with a witness when a match is found. When the
// whole space was explored without a match it is unsatisfied and the
// error is nil. When the limit is reached first the error wraps
// ErrStateLimit, and a cancelled context returns the context error.
func (v *Verifier) Reach(ctx context.Context, match func(gal.Marking) bool) (VerificationResult, error) {
	initial := v.sys.Initial()

	type node struct {
		marking    gal.Marking
		parent     int
		transition string
	}
	nodes := []node{{marking: initial, parent: -1}}
	index := map[string]int{initial.Key(): 0}

	found := func(id int) VerificationResult {
		var witness []string
		for n := nodes[id]; n.parent >= 0; n = nodes[n.parent] {
			witness = append(witness, n.transition)
		}
		for i, j := 0, len(witness)-1; i < j; i, j = i+1, j-1 {
			witness[i], witness[j] = witness[j], witness[i]
		}
		return VerificationResult{
			Property:      "reachability",
			Satisfied:     true,
			Message:       fmt.Sprintf("target reachable in %d steps: %s", len(witness), nodes[id].marking),
			Witness:       witness,
			StatesChecked: len(nodes),
		}
	}

	if match(initial) {
		return found(0), nil
	}

	for head := 0; head < len(nodes); head++ {
		if err := ctx.Err(); err != nil {
			return VerificationResult{Property: "reachability", StatesChecked: len(nodes)}, err
		}
		for _, step := range v.sys.Fireable(nodes[head].marking) {
			key := step.Marking.Key()
			if _, seen := index[key]; seen {
				continue
			}
			if len(nodes) >= v.maxStates {
				return VerificationResult{
					Property:      "reachability",
					Message:       fmt.Sprintf("search stopped after %d states", len(nodes)),
					StatesChecked: len(nodes),
				}, fmt.Errorf("%w (%d states)", ErrStateLimit, v.maxStates)
			}
			index[key] = len(nodes)
			nodes = append(nodes, node{marking: step.Marking, parent: head, transition: step.Transition})
			if match(step.Marking) {
				return found(len(nodes) - 1), nil
			}
		}
	}

	return VerificationResult{
		Property:      "reachability",
		Satisfied:     false,
		Message:       "target not reachable from the initial marking",
		StatesChecked: len(nodes),
	}, nil
}

// Exactly matches markings equal to target on every counter except those
// in ignore. Counters absent from target must be zero.
func Exactly(target gal.Marking, ignore ...string) func(gal.Marking) bool {
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}
	return func(m gal.Marking) bool {
		for name, n := range m {
			if !skip[name] && n != target.Get(name) {
				return false
			}
		}
		for name, n := range target {
			if !skip[name] && m.Get(name) != n {
				return false
			}
		}
		return true
	}
}

// Covers matches markings that agree with target on the counters it
// names. Other counters may hold anything.
func Covers(target gal.Marking) func(gal.Marking) bool {
	return func(m gal.Marking) bool {
		for name, n := range target {
			if m.Get(name) != n {
				return false
			}
		}
		return true
	}
}

// AtLeast matches markings holding at least target on every counter it
// names.
func AtLeast(target gal.Marking) func(gal.Marking) bool {
	return func(m gal.Marking) bool {
		for name, n := range target {
			if m.Get(name) < n {
				return false
			}
		}
		return true
	}
}

// hasSuccessor reports whether any transition is fireable at m.
func (v *Verifier) hasSuccessor(m gal.Marking) bool {
	for _, t := range v.sys.Transitions {
		if _, ok := t.Fire(m); ok {
			return true
		}
	}
	return false
}
