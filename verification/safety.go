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

// SafetyProperty is a named check over a state space. Properties are
// combined into suites with VerifyProperties.
type SafetyProperty struct {
	Name        string
	Description string
	Check       func(v *Verifier, ss *StateSpace) VerificationResult

	deadlock bool
}

// NewBoundednessProperty checks that counter never exceeds maxValue.
//
// With maxValue 0 it states that an agent state is never occupied, which
// is how unsafe states are checked exhaustively:
//
//	prop := NewBoundednessProperty("no_collision", "collision", 0)
func NewBoundednessProperty(name, counter string, maxValue int) SafetyProperty {
	return SafetyProperty{
		Name:        name,
		Description: fmt.Sprintf("%s never exceeds %d", counter, maxValue),
		Check: func(v *Verifier, ss *StateSpace) VerificationResult {
			for _, state := range ss.States {
				if n := state.Marking.Get(counter); n > maxValue {
					return VerificationResult{
						Property:      name,
						Satisfied:     false,
						Message:       fmt.Sprintf("%s holds %d (max allowed: %d) at state %d", counter, n, maxValue, state.ID),
						Witness:       v.findPath(ss, ss.Initial, state.ID),
						StatesChecked: len(ss.States),
					}
				}
			}
			return VerificationResult{
				Property:      name,
				Satisfied:     true,
				Message:       fmt.Sprintf("%s stays within %d across all states", counter, maxValue),
				StatesChecked: len(ss.States),
			}
		},
	}
}

// NewReachabilityProperty checks that counter becomes positive in some
// reachable marking.
func NewReachabilityProperty(name, counter string) SafetyProperty {
	return SafetyProperty{
		Name:        name,
		Description: fmt.Sprintf("%s is reachable", counter),
		Check: func(v *Verifier, ss *StateSpace) VerificationResult {
			match := AtLeast(gal.Marking{counter: 1})
			for _, state := range ss.States {
				if match(state.Marking) {
					return VerificationResult{
						Property:      name,
						Satisfied:     true,
						Message:       fmt.Sprintf("%s reachable at state %d", counter, state.ID),
						Witness:       v.findPath(ss, ss.Initial, state.ID),
						StatesChecked: len(ss.States),
					}
				}
			}
			return VerificationResult{
				Property:      name,
				Satisfied:     false,
				Message:       fmt.Sprintf("%s is never occupied", counter),
				StatesChecked: len(ss.States),
			}
		},
	}
}

// NewMutualExclusionProperty checks that a and b are never both occupied.
func NewMutualExclusionProperty(name, a, b string) SafetyProperty {
	return SafetyProperty{
		Name:        name,
		Description: fmt.Sprintf("%s and %s are mutually exclusive", a, b),
		Check: func(v *Verifier, ss *StateSpace) VerificationResult {
			result := v.CheckMutualExclusion(ss, a, b)
			result.Property = name
			return result
		},
	}
}

// NewDeadlockFreedomProperty checks that no non-terminal marking is
// stuck.
func NewDeadlockFreedomProperty(name string) SafetyProperty {
	return SafetyProperty{
		Name:        name,
		Description: "no reachable marking is stuck",
		deadlock:    true,
		Check: func(v *Verifier, ss *StateSpace) VerificationResult {
			result := v.CheckDeadlockFreedom(ss)
			result.Property = name
			return result
		},
	}
}

// NewInvariantProperty checks sum(coefficients[c] * m[c]) <= bound
// everywhere.
//
//	prop := NewInvariantProperty("one_environment_token",
//	    map[string]int{"s0": 1, "s1": 1}, 1)
func NewInvariantProperty(name string, coefficients map[string]int, bound int) SafetyProperty {
	return SafetyProperty{
		Name:        name,
		Description: fmt.Sprintf("linear invariant holds (sum <= %d)", bound),
		Check: func(v *Verifier, ss *StateSpace) VerificationResult {
			result := v.CheckInvariant(ss, coefficients, bound)
			result.Property = name
			return result
		},
	}
}

// VerifyProperties builds the state space once and evaluates every
// property against it. DeadlockFree is false only when a property built
// by NewDeadlockFreedomProperty fails. A state limit error does not stop
// the properties from being checked on the explored part.
func (v *Verifier) VerifyProperties(ctx context.Context, properties []SafetyProperty) (*ProofCertificate, error) {
	ss, err := v.BuildStateSpace(ctx)

	cert := &ProofCertificate{
		System:       v.sys.Name,
		StateCount:   len(ss.States),
		EdgeCount:    ss.EdgeCount(),
		Bounded:      ss.Complete,
		DeadlockFree: true,
	}
	cert.MaxValue, cert.MaxCounter = maxCounterValue(ss)

	for _, prop := range properties {
		result := prop.Check(v, ss)
		cert.Properties = append(cert.Properties, result)
		if !result.Satisfied && prop.deadlock {
			cert.DeadlockFree = false
		}
	}

	return cert, err
}
