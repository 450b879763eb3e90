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

package verification

import (
	"context"
	"fmt"

	"github.com/jazzpetri/popsafe/gal"
)

// VerificationResult is the outcome of checking one property.
type VerificationResult struct {
	// Property names the check.
	Property string

	// Satisfied is true if the property holds over the explored states, or
	// for reachability, if the target was found.
	Satisfied bool

	// Message explains the result.
	Message string

	// Witness is the firing sequence from the initial marking to the
	// violating (or, for reachability, the matching) marking.
	Witness []string

	// StatesChecked is the number of states examined.
	StatesChecked int
}

// ProofCertificate aggregates property results for one system along with
// statistics about its state space.
type ProofCertificate struct {
	// System is the name of the verified counter system.
	System string

	Properties []VerificationResult

	StateCount int
	EdgeCount  int

	// Bounded is true if exploration finished under the state limit.
	Bounded bool

	// MaxValue is the largest counter value in any explored marking, and
	// MaxCounter the counter holding it.
	MaxValue   int
	MaxCounter string

	// DeadlockFree is true if no explored non-terminal marking is stuck.
	DeadlockFree bool
}

// AllSatisfied reports whether every property is satisfied. A certificate
// without properties is vacuously satisfied.
func (pc *ProofCertificate) AllSatisfied() bool {
	for _, r := range pc.Properties {
		if !r.Satisfied {
			return false
		}
	}
	return true
}

// CheckBoundedness reports the largest counter value over the explored
// states. It is satisfied only when the state space is complete.
func (v *Verifier) CheckBoundedness(ss *StateSpace) VerificationResult {
	maxValue, maxCounter := maxCounterValue(ss)

	message := fmt.Sprintf("system is %d-bounded", maxValue)
	if maxCounter != "" {
		message = fmt.Sprintf("system is %d-bounded (largest value in %s)", maxValue, maxCounter)
	}
	if !ss.Complete {
		message = fmt.Sprintf("exploration incomplete; largest value seen is %d", maxValue)
	}

	return VerificationResult{
		Property:      "boundedness",
		Satisfied:     ss.Complete,
		Message:       message,
		StatesChecked: len(ss.States),
	}
}

func maxCounterValue(ss *StateSpace) (int, string) {
	maxValue, maxCounter := 0, ""
	for _, state := range ss.States {
		// Names gives a stable order, so ties go to the first name.
		for _, name := range state.Marking.Names() {
			if n := state.Marking[name]; n > maxValue {
				maxValue, maxCounter = n, name
			}
		}
	}
	return maxValue, maxCounter
}

// CheckDeadlockFreedom looks for an explored marking with no fireable
// transition that the terminal predicate does not accept. The first one
// found, in discovery order, is reported with a witness.
func (v *Verifier) CheckDeadlockFreedom(ss *StateSpace) VerificationResult {
	for _, state := range ss.States {
		if len(ss.Edges[state.ID]) > 0 || v.terminal(state.Marking) {
			continue
		}
		// A state without edges may simply not have been expanded.
		if !ss.Complete && v.hasSuccessor(state.Marking) {
			continue
		}
		return VerificationResult{
			Property:      "deadlock_freedom",
			Satisfied:     false,
			Message:       fmt.Sprintf("deadlock at state %d: %s", state.ID, state.Marking),
			Witness:       v.findPath(ss, ss.Initial, state.ID),
			StatesChecked: len(ss.States),
		}
	}

	return VerificationResult{
		Property:      "deadlock_freedom",
		Satisfied:     true,
		Message:       "no deadlocks in the explored state space",
		StatesChecked: len(ss.States),
	}
}

// CheckReachability looks for an explored marking matching target on the
// counters it names.
//
//	result := v.CheckReachability(ss, gal.Marking{"collision": 2})
func (v *Verifier) CheckReachability(ss *StateSpace, target gal.Marking) VerificationResult {
	match := Covers(target)
	for _, state := range ss.States {
		if match(state.Marking) {
			return VerificationResult{
				Property:      "reachability",
				Satisfied:     true,
				Message:       fmt.Sprintf("target reachable at state %d", state.ID),
				Witness:       v.findPath(ss, ss.Initial, state.ID),
				StatesChecked: len(ss.States),
			}
		}
	}

	return VerificationResult{
		Property:      "reachability",
		Satisfied:     false,
		Message:       "target not reachable from the initial marking",
		StatesChecked: len(ss.States),
	}
}

// CheckInvariant checks sum(coefficients[c] * m[c]) <= bound in every
// explored marking. For example {"count": 1} <= 50 restates the instance
// bound, and {"s0": 1, "s1": 1} <= 1 says the environment holds a single
// token.
func (v *Verifier) CheckInvariant(ss *StateSpace, coefficients map[string]int, bound int) VerificationResult {
	for _, state := range ss.States {
		sum := 0
		for name, coeff := range coefficients {
			sum += coeff * state.Marking.Get(name)
		}
		if sum > bound {
			return VerificationResult{
				Property:      "invariant",
				Satisfied:     false,
				Message:       fmt.Sprintf("invariant violated at state %d: sum=%d > bound=%d", state.ID, sum, bound),
				Witness:       v.findPath(ss, ss.Initial, state.ID),
				StatesChecked: len(ss.States),
			}
		}
	}

	return VerificationResult{
		Property:      "invariant",
		Satisfied:     true,
		Message:       fmt.Sprintf("invariant holds across all %d states", len(ss.States)),
		StatesChecked: len(ss.States),
	}
}

// CheckMutualExclusion verifies that counters a and b are never positive
// in the same marking.
func (v *Verifier) CheckMutualExclusion(ss *StateSpace, a, b string) VerificationResult {
	for _, state := range ss.States {
		if state.Marking.Get(a) > 0 && state.Marking.Get(b) > 0 {
			return VerificationResult{
				Property:      "mutual_exclusion",
				Satisfied:     false,
				Message:       fmt.Sprintf("%s and %s are both occupied at state %d", a, b, state.ID),
				Witness:       v.findPath(ss, ss.Initial, state.ID),
				StatesChecked: len(ss.States),
			}
		}
	}

	return VerificationResult{
		Property:      "mutual_exclusion",
		Satisfied:     true,
		Message:       fmt.Sprintf("mutual exclusion holds between %s and %s", a, b),
		StatesChecked: len(ss.States),
	}
}

// findPath returns the firing sequence from state from to state to, found
// breadth-first over the graph, or nil if there is none.
func (v *Verifier) findPath(ss *StateSpace, from, to int) []string {
	if from == to {
		return nil
	}

	type pathNode struct {
		stateID int
		path    []string
	}

	visited := map[int]bool{from: true}
	queue := []pathNode{{stateID: from}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range ss.Edges[current.stateID] {
			if visited[edge.To] {
				continue
			}

			path := make([]string, len(current.path)+1)
			copy(path, current.path)
			path[len(current.path)] = edge.Transition

			if edge.To == to {
				return path
			}

			visited[edge.To] = true
			queue = append(queue, pathNode{stateID: edge.To, path: path})
		}
	}

	return nil
}

// GenerateCertificate builds the state space and checks boundedness and
// deadlock freedom. A state limit error is returned with a partial
// certificate.
func (v *Verifier) GenerateCertificate(ctx context.Context) (*ProofCertificate, error) {
	ss, err := v.BuildStateSpace(ctx)

	cert := &ProofCertificate{
		System:     v.sys.Name,
		StateCount: len(ss.States),
		EdgeCount:  ss.EdgeCount(),
		Bounded:    ss.Complete,
	}
	cert.MaxValue, cert.MaxCounter = maxCounterValue(ss)

	cert.Properties = append(cert.Properties, v.CheckBoundedness(ss))

	deadlock := v.CheckDeadlockFreedom(ss)
	cert.Properties = append(cert.Properties, deadlock)
	cert.DeadlockFree = deadlock.Satisfied

	return cert, err
}
