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
	"strings"
	"testing"

	"github.com/jazzpetri/popsafe/gal"
)

func forkJoinSpace(t *testing.T) *StateSpace {
	t.Helper()
	ss, err := NewVerifier(mustSystem(t, forkJoin), 0).BuildStateSpace(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return ss
}

func TestStateSpace_WriteDOT(t *testing.T) {
	ss := forkJoinSpace(t)

	var sb strings.Builder
	if err := ss.WriteDOT(&sb, "forkjoin", AtLeast(gal.Marking{"p4": 1})); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	dot := sb.String()

	for _, want := range []string{
		`digraph "forkjoin" {`,
		`s0 [label="p1=1" peripheries=2];`,
		`s1 [label="p2=1\np3=1"];`,
		`s2 [label="p4=1" style=filled fillcolor="#f4a6a6"];`,
		`s0 -> s1 [label="fork"];`,
		`s1 -> s2 [label="join"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("DOT output is not closed")
	}
}

func TestStateSpace_WriteDOT_EscapesName(t *testing.T) {
	ss := forkJoinSpace(t)

	var sb strings.Builder
	if err := ss.WriteDOT(&sb, `say "hi"`, nil); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	if !strings.Contains(sb.String(), `digraph "say \"hi\"" {`) {
		t.Errorf("name not escaped:\n%s", sb.String())
	}
	if strings.Contains(sb.String(), "fillcolor") {
		t.Error("nil highlight filled a state")
	}
}

func TestStateSpace_WriteMermaid(t *testing.T) {
	ss := forkJoinSpace(t)

	var sb strings.Builder
	if err := ss.WriteMermaid(&sb, AtLeast(gal.Marking{"p4": 1})); err != nil {
		t.Fatalf("WriteMermaid: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"graph LR\n",
		`s1["p2=1<br/>p3=1"]`,
		"class s2 unsafe",
		"s0 -->|fork| s1",
		"s1 -->|join| s2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Mermaid output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "class s0 unsafe") {
		t.Error("initial state highlighted")
	}
}

func TestLabel_AllZero(t *testing.T) {
	if got := label(gal.Marking{"a": 0, "b": 0}); got != "0" {
		t.Errorf("label = %q, want 0", got)
	}
}
