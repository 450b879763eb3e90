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
	"fmt"
	"io"
	"strings"

	"github.com/jazzpetri/popsafe/gal"
)

// WriteDOT renders the state space as a Graphviz digraph. States are
// labelled with their non-zero counters and edges with the transition
// name. The initial state is drawn double; states matching highlight, if
// not nil, are filled red.
func (ss *StateSpace) WriteDOT(w io.Writer, name string, highlight func(gal.Marking) bool) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph \"%s\" {\n", escapeLabel(name))
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [fontname=\"Helvetica\" shape=box];\n")
	sb.WriteString("  edge [fontname=\"Helvetica\"];\n\n")

	for _, s := range ss.States {
		attrs := fmt.Sprintf("label=\"%s\"", escapeLabel(label(s.Marking)))
		if s.ID == ss.Initial {
			attrs += " peripheries=2"
		}
		if highlight != nil && highlight(s.Marking) {
			attrs += " style=filled fillcolor=\"#f4a6a6\""
		}
		fmt.Fprintf(&sb, "  s%d [%s];\n", s.ID, attrs)
	}
	sb.WriteString("\n")

	for _, s := range ss.States {
		for _, e := range ss.Edges[s.ID] {
			fmt.Fprintf(&sb, "  s%d -> s%d [label=\"%s\"];\n", e.From, e.To, escapeLabel(e.Transition))
		}
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteMermaid renders the state space as a Mermaid flowchart. Matching
// states get the unsafe class.
func (ss *StateSpace) WriteMermaid(w io.Writer, highlight func(gal.Marking) bool) error {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	sb.WriteString("  classDef unsafe fill:#f4a6a6\n")

	for _, s := range ss.States {
		fmt.Fprintf(&sb, "  s%d[\"%s\"]\n", s.ID, escapeMermaidLabel(label(s.Marking)))
		if highlight != nil && highlight(s.Marking) {
			fmt.Fprintf(&sb, "  class s%d unsafe\n", s.ID)
		}
	}
	for _, s := range ss.States {
		for _, e := range ss.Edges[s.ID] {
			fmt.Fprintf(&sb, "  s%d -->|%s| s%d\n", e.From, escapeMermaidLabel(e.Transition), e.To)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// label lists the non-zero counters of m; an all-zero marking is "0".
func label(m gal.Marking) string {
	var parts []string
	for _, name := range m.Names() {
		if n := m[name]; n != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", name, n))
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "\n")
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// Mermaid labels are HTML.
func escapeMermaidLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "|", "&#124;")
	s = strings.ReplaceAll(s, "\n", "<br/>")
	return s
}
