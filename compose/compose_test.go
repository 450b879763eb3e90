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

package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func mustParse(t *testing.T, src string) *protocol.Description {
	t.Helper()
	d, err := protocol.Parse(src)
	require.NoError(t, err)
	return d
}

func TestCompose_SingleAgent(t *testing.T) {
	t.Parallel()

	r := Compose(mustParse(t, single), DefaultOptions())

	require.Len(t, r.Transitions, 1)
	g := r.Transitions[0]
	assert.Equal(t, "([idle],[go],s0,sync,[go],[active],s1)", g.String())
	assert.Equal(t, 1, g.Participants())
	assert.Equal(t, 11, g.Line)

	// [go go] finds no local transition keyed (go, sync, [go])
	require.Len(t, r.Unmatched, 1)
	assert.Equal(t, []string{"go", "go"}, r.Unmatched[0].Expansion)
	assert.Equal(t, protocol.NewTransitionKey("go", "sync", []string{"go"}), r.Unmatched[0].Key)
	assert.Contains(t, r.Unmatched[0].String(), "line 11")
	assert.Equal(t, 2, r.Expansions)
}

func TestCompose_PairExpansion(t *testing.T) {
	t.Parallel()

	r := Compose(mustParse(t, tunnel), DefaultOptions())

	var got []string
	for _, g := range r.Transitions {
		got = append(got, g.String())
	}
	assert.Equal(t, []string{
		"([outside],[enter],light_green,green,[enter],[approach],light_green)",
		"([approach],[pass],light_green,go,[pass],[tunnel],light_red)",
		"([approach,approach],[pass,pass],light_green,go,[pass,pass],[collision,collision],light_red)",
		"([tunnel],[exit],light_red,out,[exit],[outside],light_green)",
	}, got)

	assert.Len(t, r.Unmatched, 2)
	assert.Equal(t, 6, r.Expansions)

	for _, g := range r.Transitions {
		assert.Len(t, g.AgentAfter, len(g.Multiset))
		assert.Len(t, g.AgentBefore, len(g.Multiset))
	}
}

func TestCompose_Deterministic(t *testing.T) {
	t.Parallel()

	d := mustParse(t, tunnel)
	first := Compose(d, DefaultOptions())
	for range 5 {
		assert.Equal(t, first, Compose(d, DefaultOptions()))
	}
}

func TestCompose_EnumeratesEveryChoice(t *testing.T) {
	t.Parallel()

	src := `a: 1, b: 1, c: 1, d: 0
go
a,sync,go go,go,b
c,sync,go go,go,d
a
a
s0
sync
s0
s0,sync,go,s0
`
	d := mustParse(t, src)

	// two candidates per occurrence, product of 2 x 2
	r := Compose(d, DefaultOptions())
	require.Len(t, r.Transitions, 4)
	assert.Equal(t, []string{"a", "a"}, r.Transitions[0].AgentBefore)
	assert.Equal(t, []string{"a", "c"}, r.Transitions[1].AgentBefore)
	assert.Equal(t, []string{"c", "a"}, r.Transitions[2].AgentBefore)
	assert.Equal(t, []string{"c", "c"}, r.Transitions[3].AgentBefore)

	// {c->d, a->b} repeats {a->b, c->d} up to participant order
	opts := DefaultOptions()
	opts.Deduplicate = true
	r = Compose(d, opts)
	require.Len(t, r.Transitions, 3)
	assert.Equal(t, []string{"a", "a"}, r.Transitions[0].AgentBefore)
	assert.Equal(t, []string{"a", "c"}, r.Transitions[1].AgentBefore)
	assert.Equal(t, []string{"c", "c"}, r.Transitions[2].AgentBefore)
}

func TestCompose_RepeatedSlotExpansions(t *testing.T) {
	t.Parallel()

	src := `a: 1, b: 1
go
a,sync,go go,go,b
a
a
s0
sync
s0
s0,sync,go go,s0
`
	d := mustParse(t, src)

	// [go go], [go go go] twice, [go go go go]; only the first matches
	r := Compose(d, DefaultOptions())
	assert.Equal(t, 4, r.Expansions)
	assert.Len(t, r.Transitions, 1)
	assert.Len(t, r.Unmatched, 3)

	r = Compose(d, Options{MaxConcurrency: 2, Deduplicate: true})
	assert.Equal(t, 3, r.Expansions)
	assert.Len(t, r.Unmatched, 2)
}

func TestCompose_EnvironmentOnlyStep(t *testing.T) {
	t.Parallel()

	src := `idle: 1
go
idle
idle
s0, s1
tick
s0
s0,tick,,s1
`
	r := Compose(mustParse(t, src), DefaultOptions())

	require.Len(t, r.Transitions, 1)
	assert.Zero(t, r.Transitions[0].Participants())
	assert.Equal(t, "s1", r.Transitions[0].EnvAfter)
	assert.Empty(t, r.Unmatched)
}

func TestCompose_MaxConcurrency(t *testing.T) {
	t.Parallel()

	src := `idle: 1, active: 1, crowd: 0
go
idle,sync,go,go,active
idle,sync,go go go,go,crowd
idle
idle
s0
sync
s0
s0,sync,go,s0
`
	d := mustParse(t, src)

	r := Compose(d, DefaultOptions())
	require.Len(t, r.Transitions, 1)
	assert.Len(t, r.Unmatched, 1)

	r = Compose(d, Options{MaxConcurrency: 3})
	require.Len(t, r.Transitions, 2)
	assert.Equal(t, []string{"crowd", "crowd", "crowd"}, r.Transitions[1].AgentAfter)
	assert.Len(t, r.Unmatched, 1)

	r = Compose(d, Options{MaxConcurrency: 0})
	assert.Equal(t, 1, r.Expansions)
}

func TestExpand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		slots []string
		limit int
		want  [][]string
	}{
		{"empty", nil, 2, [][]string{nil}},
		{"one slot", []string{"go"}, 2, [][]string{{"go"}, {"go", "go"}}},
		{
			"two slots sorted",
			[]string{"b", "a"},
			2,
			[][]string{{"a", "b"}, {"a", "b", "b"}, {"a", "a", "b"}, {"a", "a", "b", "b"}},
		},
		{
			"repeated slot",
			[]string{"go", "go"},
			2,
			[][]string{{"go", "go"}, {"go", "go", "go"}, {"go", "go", "go"}, {"go", "go", "go", "go"}},
		},
		{"limit one", []string{"a", "b"}, 1, [][]string{{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Expand(tt.slots, tt.limit))
		})
	}
}

func TestCoOccurring(t *testing.T) {
	t.Parallel()

	exp := []string{"a", "b", "b", "c"}
	assert.Equal(t, []string{"b", "b", "c"}, CoOccurring(exp, 0))
	assert.Equal(t, []string{"a", "b", "c"}, CoOccurring(exp, 2))
	assert.Equal(t, []string{"a", "b", "b", "c"}, exp)
}
