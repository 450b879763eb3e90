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

package gal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handWritten = `
// two-place toy
gal toy {
    int idle = 0;
    int s0 = 1;
    int count = 0;

    transition spawn [count < 2] {
        idle += 1; count += 1;
    }

    transition t1 [s0 >= 1 && idle >= 1] {
        s0 -= 1; idle -= 1;
        s0 += 1; idle += 1;
    }
}
`

func TestParse_HandWritten(t *testing.T) {
	t.Parallel()

	sys, err := Parse(handWritten)
	require.NoError(t, err)

	assert.Equal(t, "toy", sys.Name)
	assert.Equal(t, []string{"idle", "s0", "count"}, sys.VariableNames())
	assert.Equal(t, Marking{"idle": 0, "s0": 1, "count": 0}, sys.Initial())
	require.Len(t, sys.Transitions, 2)

	spawn, ok := sys.Transition("spawn")
	require.True(t, ok)
	assert.Equal(t, "count < 2", spawn.Guard.String())
	assert.Equal(t, "idle += 1; count += 1;", spawn.Actions.String())

	t1, ok := sys.Transition("t1")
	require.True(t, ok)
	assert.Len(t, t1.Actions, 4)
}

func TestWriteTo_RoundTrip(t *testing.T) {
	t.Parallel()

	sys := NewSystem("generated")
	require.NoError(t, sys.Declare("a", 1))
	require.NoError(t, sys.Declare("b", 0))
	require.NoError(t, sys.AddTransition(Transition{
		Name:    "move",
		Guard:   Guard{{Name: "a", Op: OpGE, Value: 1}},
		Actions: Actions{{Name: "a", Delta: -1}, {Name: "b", Delta: 1}},
	}))
	require.NoError(t, sys.AddTransition(Transition{Name: "noop"}))

	text := sys.String()
	assert.Contains(t, text, "gal generated {\n")
	assert.Contains(t, text, "    int a = 1;\n")
	assert.Contains(t, text, "    transition move [a >= 1] {\n        a -= 1; b += 1;\n    }\n")
	assert.Contains(t, text, "    transition noop [true] {\n    }\n")

	back, err := Read(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, sys.VariableNames(), back.VariableNames())
	assert.Equal(t, sys.Initial(), back.Initial())
	assert.Equal(t, text, back.String())
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"missing header", "int a = 0;"},
		{"unclosed block", "gal g { int a = 0;"},
		{"bad value", "gal g { int a = x; }"},
		{"duplicate variable", "gal g { int a = 0; int a = 1; }"},
		{"bad guard", "gal g { transition t [a >] { } }"},
		{"bad action", "gal g { transition t [true] { a = 1; } }"},
		{"unknown keyword", "gal g { array a; }"},
		{"trailing", "gal g { } extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tt.src)
			require.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestParse_ReportsLine(t *testing.T) {
	t.Parallel()

	_, err := Parse("gal g {\n  int a = 0;\n  int b = ?;\n}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestSystem_Fireable(t *testing.T) {
	t.Parallel()

	sys, err := Parse(handWritten)
	require.NoError(t, err)

	steps := sys.Fireable(sys.Initial())
	require.Len(t, steps, 1)
	assert.Equal(t, "spawn", steps[0].Transition)
	assert.Equal(t, 1, steps[0].Marking.Get("idle"))

	steps = sys.Fireable(steps[0].Marking)
	names := []string{steps[0].Transition, steps[1].Transition}
	assert.Equal(t, []string{"spawn", "t1"}, names)
}
