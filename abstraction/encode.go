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

// Package abstraction compiles global transitions into a counter system.
//
// Agents are anonymous, so a configuration only records how many agents
// occupy each agent state, how many tokens each environment state holds,
// and the number of active agents in the reserved counter "count". Agents
// join through the spawn transition while count is below the instance
// bound and depart through the leave transition from the leave state.
//
// A global transition whose agents end in an unsafe state yields an
// unsafe configuration: the partial marking its guard requires. Reaching
// such a marking means one more step populates an unsafe state.
package abstraction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jazzpetri/popsafe/compose"
	"github.com/jazzpetri/popsafe/gal"
	"github.com/jazzpetri/popsafe/protocol"
)

// Names of the synthesized transitions and the instance counter.
const (
	SpawnTransition = "spawn"
	LeaveTransition = "leave"
	CountVariable   = protocol.ReservedName
)

// DefaultInstanceBound caps the number of simultaneously active agents.
const DefaultInstanceBound = 50

// DefaultSystemName names generated systems.
const DefaultSystemName = "generated"

// ErrNegativeBound is returned for an instance bound below zero.
var ErrNegativeBound = errors.New("instance bound must not be negative")

// Options controls encoding.
type Options struct {
	InstanceBound int
	Name          string
}

// DefaultOptions returns the default bound and system name.
func DefaultOptions() Options {
	return Options{InstanceBound: DefaultInstanceBound, Name: DefaultSystemName}
}

// Weight is the amount one state contributes to a guard or an update.
type Weight struct {
	State string
	Value int
}

// Weights is an ordered weight map. The first state to be added keeps its
// position; later additions accumulate.
type Weights []Weight

func (w Weights) add(state string, n int) Weights {
	for i := range w {
		if w[i].State == state {
			w[i].Value += n
			return w
		}
	}
	return append(w, Weight{State: state, Value: n})
}

// Total returns the sum of all weights.
func (w Weights) Total() int {
	total := 0
	for _, x := range w {
		total += x.Value
	}
	return total
}

// Marking returns the weights as a partial marking.
func (w Weights) Marking() gal.Marking {
	m := make(gal.Marking, len(w))
	for _, x := range w {
		m[x.State] = x.Value
	}
	return m
}

// String renders the weights in order, e.g. {s0:1, idle:1}.
func (w Weights) String() string {
	parts := make([]string, len(w))
	for i, x := range w {
		parts[i] = fmt.Sprintf("%s:%d", x.State, x.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// InitialWeights returns the before-side weights of g: the environment
// state first, then every participating agent's state.
func InitialWeights(g compose.GlobalTransition) Weights {
	w := Weights{{State: g.EnvBefore, Value: 1}}
	for _, s := range g.AgentBefore {
		w = w.add(s, 1)
	}
	return w
}

// FinalWeights returns the after-side weights of g.
func FinalWeights(g compose.GlobalTransition) Weights {
	w := Weights{{State: g.EnvAfter, Value: 1}}
	for _, s := range g.AgentAfter {
		w = w.add(s, 1)
	}
	return w
}

// UnsafeConfiguration is a partial marking from which a global transition
// populates an unsafe agent state. Distinct transitions sharing the same
// before-side weights share one configuration.
type UnsafeConfiguration struct {
	Weights Weights

	// Transitions names the guarded transitions that lead out of it.
	Transitions []string
}

// Marking returns the configuration as a partial marking. States it does
// not name are zero in the reachability query.
func (u UnsafeConfiguration) Marking() gal.Marking {
	return u.Weights.Marking()
}

func (u UnsafeConfiguration) String() string {
	return u.Weights.String()
}

// Encoding is the counter system for one description plus its unsafe
// configurations.
type Encoding struct {
	System *gal.System
	Unsafe []UnsafeConfiguration

	// Globals maps each generated transition name t1..tn to its source.
	Globals map[string]compose.GlobalTransition
}

// GuardedTransitions returns the number of transitions in the system,
// spawn and leave included.
func (e *Encoding) GuardedTransitions() int {
	return len(e.System.Transitions)
}

// Encode builds the counter system for d and its global transitions.
//
// Variables are the agent states, then the environment states, then
// count, all zero except the environment's initial state. Each global
// transition ti is guarded by state >= weight over its initial weights
// and updates by subtracting every initial weight before adding every
// final weight.
func Encode(d *protocol.Description, globals []compose.GlobalTransition, opts Options) (*Encoding, error) {
	if opts.InstanceBound < 0 {
		return nil, fmt.Errorf("encode: %w: %d", ErrNegativeBound, opts.InstanceBound)
	}
	name := opts.Name
	if name == "" {
		name = DefaultSystemName
	}

	sys := gal.NewSystem(name)
	for _, s := range d.Agent.States {
		if err := sys.Declare(s.Name, 0); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
	}
	for _, s := range d.Environment.States {
		initial := 0
		if s == d.Environment.Initial {
			initial = 1
		}
		if err := sys.Declare(s, initial); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
	}
	if err := sys.Declare(CountVariable, 0); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	population := []gal.Transition{
		{
			Name:  SpawnTransition,
			Guard: gal.Guard{{Name: CountVariable, Op: gal.OpLT, Value: opts.InstanceBound}},
			Actions: gal.Actions{
				{Name: d.Agent.Initial, Delta: 1},
				{Name: CountVariable, Delta: 1},
			},
		},
		{
			Name:  LeaveTransition,
			Guard: gal.Guard{{Name: d.Agent.Leave, Op: gal.OpGT, Value: 0}},
			Actions: gal.Actions{
				{Name: d.Agent.Leave, Delta: -1},
				{Name: CountVariable, Delta: -1},
			},
		},
	}
	for _, t := range population {
		if err := sys.AddTransition(t); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
	}

	enc := &Encoding{System: sys, Globals: make(map[string]compose.GlobalTransition, len(globals))}
	unsafeIndex := make(map[string]int)

	for i, g := range globals {
		tname := fmt.Sprintf("t%d", i+1)
		before, after := InitialWeights(g), FinalWeights(g)

		t := gal.Transition{Name: tname}
		for _, w := range before {
			t.Guard = append(t.Guard, gal.Comparison{Name: w.State, Op: gal.OpGE, Value: w.Value})
			t.Actions = append(t.Actions, gal.Action{Name: w.State, Delta: -w.Value})
		}
		for _, w := range after {
			t.Actions = append(t.Actions, gal.Action{Name: w.State, Delta: w.Value})
		}
		if err := sys.AddTransition(t); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
		enc.Globals[tname] = g

		if !reachesUnsafe(d, g) {
			continue
		}
		key := before.Marking().Key()
		if j, ok := unsafeIndex[key]; ok {
			enc.Unsafe[j].Transitions = append(enc.Unsafe[j].Transitions, tname)
			continue
		}
		unsafeIndex[key] = len(enc.Unsafe)
		enc.Unsafe = append(enc.Unsafe, UnsafeConfiguration{Weights: before, Transitions: []string{tname}})
	}
	return enc, nil
}

// reachesUnsafe reports whether any agent of g ends in an unsafe state.
func reachesUnsafe(d *protocol.Description, g compose.GlobalTransition) bool {
	for _, s := range g.AgentAfter {
		if st, ok := d.Agent.State(s); ok && !st.Safe() {
			return true
		}
	}
	return false
}
