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

package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jazzpetri/popsafe/protocol"
	"github.com/jazzpetri/popsafe/verification"
)

// Explicit decides queries by breadth-first search of the state space.
// It needs no external tool but is only practical for small instance
// bounds; past maxStates it reports ErrUnavailable.
type Explicit struct {
	maxStates int
}

// NewExplicit returns an in-process oracle. A non-positive maxStates uses
// verification.DefaultMaxStates.
func NewExplicit(maxStates int) *Explicit {
	return &Explicit{maxStates: maxStates}
}

// Name returns KindExplicit.
func (o *Explicit) Name() string { return KindExplicit }

// Reachable searches q.System for a marking equal to q.Target on every
// counter except the instance counter.
func (o *Explicit) Reachable(ctx context.Context, q Query) (*Answer, error) {
	if q.System == nil {
		return nil, fmt.Errorf("explicit: %w: no system", ErrUnavailable)
	}

	start := time.Now()
	answer := &Answer{Formula: Formula(q.System, q.Target)}

	v := verification.NewVerifier(q.System, o.maxStates)
	result, err := v.Reach(ctx, verification.Exactly(q.Target, protocol.ReservedName))
	answer.Duration = time.Since(start)
	answer.Output = []string{
		fmt.Sprintf("%d reachable states explored", result.StatesChecked),
	}
	if result.Message != "" {
		answer.Output = append(answer.Output, result.Message)
	}

	switch {
	case errors.Is(err, verification.ErrStateLimit):
		return answer, fmt.Errorf("explicit: %w: %v", ErrUnavailable, err)
	case err != nil:
		return answer, err
	}

	answer.Reachable = result.Satisfied
	answer.Witness = result.Witness
	return answer, nil
}
