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

package abstraction

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzpetri/popsafe/compose"
	"github.com/jazzpetri/popsafe/gal"
	"github.com/jazzpetri/popsafe/protocol"
)

const single = `idle: 1, active: 0
go
idle: go
idle,sync,go,go,active
idle
idle
s0, s1
sync
s0: sync
s0
s0,sync,go,s1
`

const tunnel = `outside: 1, approach: 1, tunnel: 1, collision: 0
enter, pass, exit
outside,green,enter,enter,approach
approach,go,pass,pass,tunnel
approach,go,pass pass,pass,collision
tunnel,out,exit,exit,outside
outside
outside
light_green, light_red
green, go, out
light_green
light_green,green,enter,light_green
light_green,go,pass,light_red
light_red,out,exit,light_green
`

func encode(t *testing.T, src string, opts Options) (*protocol.Description, []compose.GlobalTransition, *Encoding) {
	t.Helper()
	d, err := protocol.Parse(src)
	require.NoError(t, err)
	globals := compose.Compose(d, compose.DefaultOptions()).Transitions
	enc, err := Encode(d, globals, opts)
	require.NoError(t, err)
	return d, globals, enc
}

func TestEncode_SingleAgent(t *testing.T) {
	t.Parallel()

	_, _, enc := encode(t, single, DefaultOptions())
	sys := enc.System

	assert.Equal(t, "generated", sys.Name)
	assert.Equal(t, []string{"idle", "active", "s0", "s1", "count"}, sys.VariableNames())
	assert.Equal(t, gal.Marking{"idle": 0, "active": 0, "s0": 1, "s1": 0, "count": 0}, sys.Initial())
	assert.Equal(t, 3, enc.GuardedTransitions())

	spawn, ok := sys.Transition(SpawnTransition)
	require.True(t, ok)
	assert.Equal(t, "count < 50", spawn.Guard.String())
	assert.Equal(t, "idle += 1; count += 1;", spawn.Actions.String())

	leave, ok := sys.Transition(LeaveTransition)
	require.True(t, ok)
	assert.Equal(t, "idle > 0", leave.Guard.String())
	assert.Equal(t, "idle -= 1; count -= 1;", leave.Actions.String())

	t1, ok := sys.Transition("t1")
	require.True(t, ok)
	assert.Equal(t, "s0 >= 1 && idle >= 1", t1.Guard.String())
	assert.Equal(t, "s0 -= 1; idle -= 1; s1 += 1; active += 1;", t1.Actions.String())

	require.Len(t, enc.Unsafe, 1)
	assert.Equal(t, "{s0:1, idle:1}", enc.Unsafe[0].String())
	assert.Equal(t, gal.Marking{"s0": 1, "idle": 1}, enc.Unsafe[0].Marking())
	assert.Equal(t, []string{"t1"}, enc.Unsafe[0].Transitions)
	assert.Equal(t, "s0", enc.Globals["t1"].EnvBefore)
}

func TestEncode_AccumulatesWeights(t *testing.T) {
	t.Parallel()

	_, _, enc := encode(t, tunnel, DefaultOptions())

	t3, ok := enc.System.Transition("t3")
	require.True(t, ok)
	assert.Equal(t, "light_green >= 1 && approach >= 2", t3.Guard.String())
	assert.Equal(t, "light_green -= 1; approach -= 2; light_red += 1; collision += 2;", t3.Actions.String())

	require.Len(t, enc.Unsafe, 1)
	assert.Equal(t, "{light_green:1, approach:2}", enc.Unsafe[0].String())
	assert.Equal(t, []string{"t3"}, enc.Unsafe[0].Transitions)
}

func TestEncode_WeightConservation(t *testing.T) {
	t.Parallel()

	for _, src := range []string{single, tunnel} {
		_, globals, enc := encode(t, src, DefaultOptions())
		require.Len(t, enc.Globals, len(globals))

		for name, g := range enc.Globals {
			before, after := InitialWeights(g), FinalWeights(g)
			assert.Equal(t, 1+len(g.AgentBefore), before.Total(), name)
			assert.Equal(t, 1+len(g.AgentAfter), after.Total(), name)

			tr, ok := enc.System.Transition(name)
			require.True(t, ok)
			sum := 0
			for _, a := range tr.Actions {
				sum += a.Delta
			}
			assert.Equal(t, after.Total()-before.Total(), sum, name)
		}
	}
}

func TestEncode_UnsafeIffUnsafeTarget(t *testing.T) {
	t.Parallel()

	d, _, enc := encode(t, tunnel, DefaultOptions())

	flagged := make(map[string]bool)
	for _, u := range enc.Unsafe {
		for _, name := range u.Transitions {
			flagged[name] = true
		}
	}
	for name, g := range enc.Globals {
		unsafe := slices.ContainsFunc(g.AgentAfter, func(s string) bool {
			st, _ := d.Agent.State(s)
			return !st.Safe()
		})
		assert.Equal(t, unsafe, flagged[name], name)
	}
}

func TestEncode_SharedUnsafeConfiguration(t *testing.T) {
	t.Parallel()

	src := `idle: 1, bad: 0, worse: 0
go, stop
idle,sync,go,go,bad
idle,sync,stop,stop,worse
idle
idle
s0
sync
s0
s0,sync,go,s0
s0,sync,stop,s0
`
	_, _, enc := encode(t, src, DefaultOptions())

	require.Len(t, enc.Unsafe, 1)
	assert.Equal(t, []string{"t1", "t2"}, enc.Unsafe[0].Transitions)
}

func TestEncode_ZeroBound(t *testing.T) {
	t.Parallel()

	_, _, enc := encode(t, single, Options{InstanceBound: 0, Name: "sealed"})

	assert.Equal(t, "sealed", enc.System.Name)
	assert.Empty(t, enc.System.Fireable(enc.System.Initial()))
}

func TestEncode_NegativeBound(t *testing.T) {
	t.Parallel()

	d, err := protocol.Parse(single)
	require.NoError(t, err)

	_, err = Encode(d, nil, Options{InstanceBound: -1})
	require.ErrorIs(t, err, ErrNegativeBound)
}

func TestEncode_TextRoundTrip(t *testing.T) {
	t.Parallel()

	_, _, enc := encode(t, tunnel, DefaultOptions())

	text := enc.System.String()
	assert.Contains(t, text, "transition spawn [count < 50] {")

	back, err := gal.Parse(text)
	require.NoError(t, err)
	assert.Equal(t, text, back.String())
}

func TestWeights_Add(t *testing.T) {
	t.Parallel()

	g := compose.GlobalTransition{
		AgentBefore: []string{"a", "b", "a"},
		EnvBefore:   "a",
		AgentAfter:  []string{"c", "c", "c"},
		EnvAfter:    "e",
	}
	assert.Equal(t, Weights{{State: "a", Value: 3}, {State: "b", Value: 1}}, InitialWeights(g))
	assert.Equal(t, Weights{{State: "e", Value: 1}, {State: "c", Value: 3}}, FinalWeights(g))
}
