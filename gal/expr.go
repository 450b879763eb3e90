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
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrSyntax is returned for guard, action or system text that does not
// follow the grammar.
var ErrSyntax = errors.New("gal: syntax error")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether s can be used as a variable or transition name.
func ValidName(s string) bool {
	return identPattern.MatchString(s)
}

// Op is a comparison operator of the guard language.
type Op string

const (
	OpGE Op = ">="
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
	OpGT Op = ">"
	OpLT Op = "<"
)

// operators is ordered so that two-character operators are matched before
// their one-character prefixes.
var operators = []Op{OpGE, OpLE, OpEQ, OpNE, OpGT, OpLT}

// Comparison is an atomic guard: Name Op Value.
type Comparison struct {
	Name  string
	Op    Op
	Value int
}

// Holds evaluates the comparison against m. Unknown names read as 0.
func (c Comparison) Holds(m Marking) bool {
	v := m.Get(c.Name)
	switch c.Op {
	case OpGE:
		return v >= c.Value
	case OpLE:
		return v <= c.Value
	case OpEQ:
		return v == c.Value
	case OpNE:
		return v != c.Value
	case OpGT:
		return v > c.Value
	case OpLT:
		return v < c.Value
	}
	return false
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %d", c.Name, c.Op, c.Value)
}

// Guard is a conjunction of comparisons. The empty guard is "true".
type Guard []Comparison

// Holds reports whether every comparison holds under m. It never mutates m.
func (g Guard) Holds(m Marking) bool {
	for _, c := range g {
		if !c.Holds(m) {
			return false
		}
	}
	return true
}

func (g Guard) String() string {
	if len(g) == 0 {
		return "true"
	}
	parts := make([]string, len(g))
	for i, c := range g {
		parts[i] = c.String()
	}
	return strings.Join(parts, " && ")
}

// ParseGuard parses "a >= 1 && b < 3". The literal true (in any case) is
// accepted alone or as a conjunct and contributes nothing.
func ParseGuard(s string) (Guard, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty guard", ErrSyntax)
	}

	var g Guard
	for _, atom := range strings.Split(s, "&&") {
		atom = strings.TrimSpace(atom)
		if strings.EqualFold(atom, "true") {
			continue
		}
		c, err := parseComparison(atom)
		if err != nil {
			return nil, err
		}
		g = append(g, c)
	}
	return g, nil
}

func parseComparison(atom string) (Comparison, error) {
	for _, op := range operators {
		idx := strings.Index(atom, string(op))
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(atom[:idx])
		lit := strings.TrimSpace(atom[idx+len(op):])
		if !ValidName(name) {
			return Comparison{}, fmt.Errorf("%w: bad counter name %q in %q", ErrSyntax, name, atom)
		}
		v, err := strconv.Atoi(lit)
		if err != nil {
			return Comparison{}, fmt.Errorf("%w: bad literal %q in %q", ErrSyntax, lit, atom)
		}
		return Comparison{Name: name, Op: op, Value: v}, nil
	}
	return Comparison{}, fmt.Errorf("%w: no comparison operator in %q", ErrSyntax, atom)
}

// Action adds Delta to the named counter. "x += 2;" has Delta 2 and
// "x -= 2;" has Delta -2.
type Action struct {
	Name  string
	Delta int
}

func (a Action) String() string {
	if a.Delta < 0 {
		return fmt.Sprintf("%s -= %d;", a.Name, -a.Delta)
	}
	return fmt.Sprintf("%s += %d;", a.Name, a.Delta)
}

// Actions is a statement sequence, applied in order.
type Actions []Action

// Apply returns a new marking with every action applied. The input is not
// modified. Unknown counters start at 0 and are created on first write.
// The result may hold negative counters; callers decide what that means.
func (as Actions) Apply(m Marking) Marking {
	result := m.Copy()
	for _, a := range as {
		result[a.Name] += a.Delta
	}
	return result
}

func (as Actions) String() string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// ParseActions parses "a -= 1; b += 1;". Empty statements are skipped.
func ParseActions(s string) (Actions, error) {
	var as Actions
	for _, stmt := range strings.Split(s, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		a, err := parseAction(stmt)
		if err != nil {
			return nil, err
		}
		as = append(as, a)
	}
	return as, nil
}

func parseAction(stmt string) (Action, error) {
	sign := 1
	idx := strings.Index(stmt, "+=")
	if idx < 0 {
		idx = strings.Index(stmt, "-=")
		sign = -1
	}
	if idx < 0 {
		return Action{}, fmt.Errorf("%w: expected += or -= in %q", ErrSyntax, stmt)
	}
	name := strings.TrimSpace(stmt[:idx])
	lit := strings.TrimSpace(stmt[idx+2:])
	if !ValidName(name) {
		return Action{}, fmt.Errorf("%w: bad counter name %q in %q", ErrSyntax, name, stmt)
	}
	v, err := strconv.Atoi(lit)
	if err != nil {
		return Action{}, fmt.Errorf("%w: bad literal %q in %q", ErrSyntax, lit, stmt)
	}
	return Action{Name: name, Delta: sign * v}, nil
}
