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

// Package simulation steps through a counter system.
//
// From the current marking the simulator computes the fireable set, halts
// if it is empty, otherwise lets a Picker choose one step and records it.
// The simulator works on any gal.System, generated or hand-written, and
// never consults a reachability oracle.
package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jazzpetri/popsafe/gal"
	"github.com/jazzpetri/popsafe/telemetry"
)

// InitialEntry names the first trace entry.
const InitialEntry = "initial"

// DefaultSteps is the default step bound.
const DefaultSteps = 25

// Picker chooses one of a non-empty set of fireable steps and returns its
// index.
type Picker interface {
	Pick(steps []gal.Step) int
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(steps []gal.Step) int

// Pick calls f.
func (f PickerFunc) Pick(steps []gal.Step) int { return f(steps) }

// RandomPicker picks uniformly at random. It is not safe for concurrent
// use.
type RandomPicker struct {
	rng *rand.Rand
}

// NewRandomPicker returns a picker seeded with seed. A zero seed is
// replaced by the current time.
func NewRandomPicker(seed uint64) *RandomPicker {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomPicker{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Pick returns a uniformly random index.
func (p *RandomPicker) Pick(steps []gal.Step) int {
	return p.rng.IntN(len(steps))
}

// FirstPicker always takes the first fireable transition in declaration
// order.
type FirstPicker struct{}

// Pick returns 0.
func (FirstPicker) Pick([]gal.Step) int { return 0 }

// Entry is one trace element: the transition fired and the marking after
// it.
type Entry struct {
	Transition string
	Marking    gal.Marking
}

// Trace is the ordered list of entries, starting with InitialEntry.
type Trace []Entry

// String renders one entry per line.
func (t Trace) String() string {
	var b strings.Builder
	for i, e := range t {
		fmt.Fprintf(&b, "%3d %-12s %s\n", i, e.Transition, e.Marking)
	}
	return b.String()
}

// Last returns the final marking.
func (t Trace) Last() gal.Marking {
	if len(t) == 0 {
		return nil
	}
	return t[len(t)-1].Marking
}

// Result is a finished run.
type Result struct {
	Trace Trace

	// Terminal is true when the run stopped because nothing was fireable.
	Terminal bool
}

// Steps returns the number of transitions fired.
func (r *Result) Steps() int {
	return len(r.Trace) - 1
}

// Simulator runs step-bounded simulations.
type Simulator struct {
	picker Picker
	steps  int
	tel    *telemetry.Telemetry
}

// New returns a simulator. A nil picker picks at random with a time seed.
// A negative step bound is treated as zero.
func New(picker Picker, steps int) *Simulator {
	if picker == nil {
		picker = NewRandomPicker(0)
	}
	return &Simulator{picker: picker, steps: max(steps, 0), tel: telemetry.Nop()}
}

// WithTelemetry sets the tracer and metrics used by Run.
func (s *Simulator) WithTelemetry(tel *telemetry.Telemetry) *Simulator {
	s.tel = tel
	return s
}

// Run simulates sys from its declared initial values.
func (s *Simulator) Run(ctx context.Context, sys *gal.System) (*Result, error) {
	return s.RunFrom(ctx, sys, sys.Initial())
}

// RunFrom simulates sys from m. The context is checked between steps; on
// cancellation the partial result is returned together with the context
// error.
func (s *Simulator) RunFrom(ctx context.Context, sys *gal.System, m gal.Marking) (result *Result, err error) {
	ctx, span := s.tel.Start(ctx, "simulation.run",
		attribute.String("system", sys.Name),
		attribute.Int("step_bound", s.steps))
	defer func() {
		span.SetAttributes(attribute.Int("steps", result.Steps()), attribute.Bool("terminal", result.Terminal))
		telemetry.End(span, err)
	}()

	current := m.Copy()
	result = &Result{Trace: Trace{{Transition: InitialEntry, Marking: current}}}

	for range s.steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		fireable := sys.Fireable(current)
		if len(fireable) == 0 {
			result.Terminal = true
			return result, nil
		}
		i := s.picker.Pick(fireable)
		if i < 0 || i >= len(fireable) {
			return result, fmt.Errorf("simulate %s: picker returned %d of %d steps", sys.Name, i, len(fireable))
		}
		step := fireable[i]
		current = step.Marking
		result.Trace = append(result.Trace, Entry{Transition: step.Transition, Marking: current})
		s.tel.Metrics.SimulationSteps.Inc()
	}

	if len(sys.Fireable(current)) == 0 {
		result.Terminal = true
	}
	return result, nil
}
