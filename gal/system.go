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

// Package gal models guarded integer-vector transition systems in the
// Guarded Action Language accepted by ITS tools.
//
// A System declares integer variables with initial values and a list of
// guarded transitions. A transition is fireable from a Marking when its
// guard holds and applying its actions leaves every counter >= 0:
//
//	sys := gal.NewSystem("demo")
//	_ = sys.Declare("idle", 1)
//	_ = sys.Declare("busy", 0)
//	_ = sys.AddTransition(gal.Transition{
//	    Name:    "start",
//	    Guard:   gal.Guard{{Name: "idle", Op: gal.OpGE, Value: 1}},
//	    Actions: gal.Actions{{Name: "idle", Delta: -1}, {Name: "busy", Delta: 1}},
//	})
//	next, ok := sys.Transitions[0].Fire(sys.Initial())
//
// Systems round-trip through text with WriteTo and Parse.
package gal

import "fmt"

// Variable is a declared counter and its initial value.
type Variable struct {
	Name    string
	Initial int
}

// Transition is a named guarded action sequence.
type Transition struct {
	Name    string
	Guard   Guard
	Actions Actions
}

// Fire returns the successor of m and whether the transition is fireable:
// the guard holds and no counter of the result is negative. A negative
// result is not an error, it only excludes the transition. m is never
// modified.
func (t Transition) Fire(m Marking) (Marking, bool) {
	if !t.Guard.Holds(m) {
		return nil, false
	}
	next := t.Actions.Apply(m)
	if !next.NonNegative() {
		return nil, false
	}
	return next, true
}

// System is a counter system: declared variables and guarded transitions,
// both kept in declaration order.
type System struct {
	Name        string
	Variables   []Variable
	Transitions []Transition

	varIndex   map[string]int
	transIndex map[string]int
}

// NewSystem creates an empty system.
func NewSystem(name string) *System {
	return &System{
		Name:       name,
		varIndex:   make(map[string]int),
		transIndex: make(map[string]int),
	}
}

// Declare adds a variable. Declaring the same name twice is an error.
func (s *System) Declare(name string, initial int) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: invalid variable name %q", ErrSyntax, name)
	}
	s.ensureIndex()
	if _, exists := s.varIndex[name]; exists {
		return fmt.Errorf("variable %s already declared", name)
	}
	s.varIndex[name] = len(s.Variables)
	s.Variables = append(s.Variables, Variable{Name: name, Initial: initial})
	return nil
}

// AddTransition appends a transition. Names must be unique.
func (s *System) AddTransition(t Transition) error {
	if !ValidName(t.Name) {
		return fmt.Errorf("%w: invalid transition name %q", ErrSyntax, t.Name)
	}
	s.ensureIndex()
	if _, exists := s.transIndex[t.Name]; exists {
		return fmt.Errorf("transition %s already defined", t.Name)
	}
	s.transIndex[t.Name] = len(s.Transitions)
	s.Transitions = append(s.Transitions, t)
	return nil
}

// Variable returns the declared variable called name.
func (s *System) Variable(name string) (Variable, bool) {
	if i, ok := s.varIndex[name]; ok && i < len(s.Variables) && s.Variables[i].Name == name {
		return s.Variables[i], true
	}
	for _, v := range s.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Transition returns the transition called name.
func (s *System) Transition(name string) (Transition, bool) {
	if i, ok := s.transIndex[name]; ok && i < len(s.Transitions) && s.Transitions[i].Name == name {
		return s.Transitions[i], true
	}
	for _, t := range s.Transitions {
		if t.Name == name {
			return t, true
		}
	}
	return Transition{}, false
}

// VariableNames returns declared names in declaration order.
func (s *System) VariableNames() []string {
	names := make([]string, len(s.Variables))
	for i, v := range s.Variables {
		names[i] = v.Name
	}
	return names
}

// Initial returns a fresh marking holding every declared initial value.
func (s *System) Initial() Marking {
	m := make(Marking, len(s.Variables))
	for _, v := range s.Variables {
		m[v.Name] = v.Initial
	}
	return m
}

// Fireable returns, in declaration order, every transition fireable from m
// together with its successor marking.
func (s *System) Fireable(m Marking) []Step {
	var steps []Step
	for _, t := range s.Transitions {
		if next, ok := t.Fire(m); ok {
			steps = append(steps, Step{Transition: t.Name, Marking: next})
		}
	}
	return steps
}

// Step is one possible firing: the transition and the marking it produces.
type Step struct {
	Transition string
	Marking    Marking
}

// ensureIndex rebuilds lookup maps for systems built as struct literals.
// Only mutating methods call it; lookups fall back to a scan.
func (s *System) ensureIndex() {
	if s.varIndex != nil && len(s.varIndex) == len(s.Variables) &&
		s.transIndex != nil && len(s.transIndex) == len(s.Transitions) {
		return
	}
	s.varIndex = make(map[string]int, len(s.Variables))
	for i, v := range s.Variables {
		s.varIndex[v.Name] = i
	}
	s.transIndex = make(map[string]int, len(s.Transitions))
	for i, t := range s.Transitions {
		s.transIndex[t.Name] = i
	}
}
