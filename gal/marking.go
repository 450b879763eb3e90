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
	"fmt"
	"sort"
	"strings"

	"facette.io/natsort"
)

// Marking is a configuration of a counter system: a count per variable.
// Variables absent from the map read as 0.
//
// Markings are values. Every operation that produces a successor returns a
// fresh map, so the before and after configurations of a step never alias.
type Marking map[string]int

// Get returns the count of name, or 0 when name is not present.
func (m Marking) Get(name string) int {
	return m[name]
}

// Copy returns an independent copy of the marking.
func (m Marking) Copy() Marking {
	c := make(Marking, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// NonNegative reports whether every counter is >= 0.
func (m Marking) NonNegative() bool {
	for _, v := range m {
		if v < 0 {
			return false
		}
	}
	return true
}

// Equal reports whether two markings agree on every variable, treating
// absent variables as 0.
func (m Marking) Equal(other Marking) bool {
	for k, v := range m {
		if other[k] != v {
			return false
		}
	}
	for k, v := range other {
		if m[k] != v {
			return false
		}
	}
	return true
}

// Key returns a canonical string for the marking, stable across map
// iteration order. Zero-valued entries are omitted so that markings that
// are Equal share a key.
func (m Marking) Key() string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%d", k, m[k])
	}
	return strings.Join(parts, ",")
}

// Names returns the variable names in natural order (l2 before l10).
func (m Marking) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	natsort.Sort(names)
	return names
}

// String renders the marking as {a:1, b:0} in natural name order.
func (m Marking) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range m.Names() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%d", name, m[name])
	}
	b.WriteByte('}')
	return b.String()
}
