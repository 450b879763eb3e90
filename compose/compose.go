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

// Package compose synchronizes an agent protocol with its environment.
//
// Every environment transition names a multiset of agent actions. Each
// action slot may be performed by one agent or by several agents acting
// together, up to Options.MaxConcurrency. For every such expansion, each
// action occurrence must be realized by a local transition whose key is
// (occurrence, sync action, the other occurrences). The Cartesian product
// of the candidates yields the global transitions.
//
// Composition is a pure function of its input. Identical descriptions
// always yield identical, identically ordered results.
package compose

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jazzpetri/popsafe/protocol"
)

// DefaultMaxConcurrency is the number of agents that may perform the same
// action slot together.
const DefaultMaxConcurrency = 2

// Options controls expansion.
type Options struct {
	// MaxConcurrency bounds how many agents may realize one action slot.
	// Values below 1 are treated as 1.
	MaxConcurrency int

	// Deduplicate drops expansions that flatten to a multiset already
	// seen, and global transitions equal to an earlier one up to the order
	// of their participants. Off by default: every product is enumerated.
	Deduplicate bool
}

// DefaultOptions returns Options with DefaultMaxConcurrency.
func DefaultOptions() Options {
	return Options{MaxConcurrency: DefaultMaxConcurrency}
}

// GlobalTransition is one synchronized step of the environment and a group
// of agents. AgentBefore, AgentActions and AgentAfter are aligned per
// participating agent; Multiset is the expansion that was matched.
type GlobalTransition struct {
	AgentBefore  []string
	AgentActions []string
	EnvBefore    string
	Sync         string
	Multiset     []string
	AgentAfter   []string
	EnvAfter     string

	// Line is the source line of the environment transition.
	Line int
}

// Participants returns the number of agents taking part.
func (g GlobalTransition) Participants() int {
	return len(g.AgentBefore)
}

// String renders the transition as a tuple, e.g.
// ([idle],[go],s0,sync,[go],[active],s1).
func (g GlobalTransition) String() string {
	list := func(s []string) string { return "[" + strings.Join(s, ",") + "]" }
	return fmt.Sprintf("(%s,%s,%s,%s,%s,%s,%s)",
		list(g.AgentBefore), list(g.AgentActions), g.EnvBefore, g.Sync,
		list(g.Multiset), list(g.AgentAfter), g.EnvAfter)
}

// canonical identifies a global transition up to the order of its
// participants.
func (g GlobalTransition) canonical() string {
	agents := make([]string, len(g.AgentBefore))
	for i := range g.AgentBefore {
		agents[i] = strconv.Quote(g.AgentBefore[i]) + " " + strconv.Quote(g.AgentActions[i]) + " " + strconv.Quote(g.AgentAfter[i])
	}
	slices.Sort(agents)
	return strconv.Quote(g.EnvBefore) + " " + strconv.Quote(g.Sync) + " " + strconv.Quote(g.EnvAfter) + " " + strings.Join(agents, ";")
}

// Unmatched records an expansion discarded because one of its occurrences
// has no local transition. It is a diagnostic, not an error.
type Unmatched struct {
	Environment protocol.EnvironmentTransition
	Expansion   []string
	Key         protocol.TransitionKey
}

func (u Unmatched) String() string {
	return fmt.Sprintf("environment transition %s -%s-> %s (line %d): expansion [%s] has no local transition for %s",
		u.Environment.Before, u.Environment.Sync, u.Environment.After, u.Environment.Line,
		strings.Join(u.Expansion, " "), u.Key)
}

// Result is the output of Compose.
type Result struct {
	Transitions []GlobalTransition
	Unmatched   []Unmatched

	// Expansions counts the expansions considered.
	Expansions int
}

// Compose computes every global transition of d. Environment transitions
// are visited in declaration order, expansions in slot order with the last
// slot varying fastest, and candidates in declaration order. With
// opts.Deduplicate a repeated expansion or global transition is kept at
// its first position only.
func Compose(d *protocol.Description, opts Options) *Result {
	limit := max(opts.MaxConcurrency, 1)
	ix := protocol.NewIndex(d.Agent.Transitions)

	result := &Result{}
	seen := make(map[string]bool)
	seenExp := make(map[string]bool)

	for _, et := range d.Environment.Transitions {
		clear(seenExp)
		for _, exp := range Expand(et.Agents, limit) {
			if opts.Deduplicate {
				key := strings.Join(quoteAll(exp), " ")
				if seenExp[key] {
					continue
				}
				seenExp[key] = true
			}
			result.Expansions++

			candidates, missing, ok := match(ix, et.Sync, exp)
			if !ok {
				result.Unmatched = append(result.Unmatched, Unmatched{
					Environment: et,
					Expansion:   exp,
					Key:         missing,
				})
				continue
			}

			product(candidates, func(choice []protocol.LocalTransition) {
				g := build(et, exp, choice)
				if opts.Deduplicate {
					key := g.canonical()
					if seen[key] {
						return
					}
					seen[key] = true
				}
				result.Transitions = append(result.Transitions, g)
			})
		}
	}
	return result
}

// Expand lists every expansion of the action slots. Each slot a becomes
// [a], [a a], ... up to limit copies, and the expansions are the
// Cartesian product across slots. Slots are sorted first, so each
// flattened expansion is itself sorted. Repeated slots yield repeated
// expansions.
func Expand(slots []string, limit int) [][]string {
	limit = max(limit, 1)
	sorted := slices.Clone(slots)
	slices.Sort(sorted)

	var out [][]string
	counts := make([]int, len(sorted))
	for i := range counts {
		counts[i] = 1
	}

	for {
		var exp []string
		for i, a := range sorted {
			for range counts[i] {
				exp = append(exp, a)
			}
		}
		out = append(out, exp)

		// advance the odometer, last slot fastest
		i := len(counts) - 1
		for i >= 0 && counts[i] == limit {
			counts[i] = 1
			i--
		}
		if i < 0 {
			return out
		}
		counts[i]++
	}
}

func quoteAll(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = strconv.Quote(v)
	}
	return out
}

// CoOccurring returns the expansion without the occurrence at i.
func CoOccurring(exp []string, i int) []string {
	co := make([]string, 0, len(exp)-1)
	co = append(co, exp[:i]...)
	co = append(co, exp[i+1:]...)
	slices.Sort(co)
	return co
}

// match finds the candidates for each occurrence. It stops at the first
// occurrence with none and returns its key.
func match(ix *protocol.Index, sync string, exp []string) ([][]protocol.LocalTransition, protocol.TransitionKey, bool) {
	candidates := make([][]protocol.LocalTransition, len(exp))
	for i, occ := range exp {
		key := protocol.NewTransitionKey(occ, sync, CoOccurring(exp, i))
		c := ix.Lookup(key)
		if len(c) == 0 {
			return nil, key, false
		}
		candidates[i] = c
	}
	return candidates, protocol.TransitionKey{}, true
}

// product calls fn with every choice of one candidate per occurrence, the
// last occurrence varying fastest. fn must not retain choice.
func product(candidates [][]protocol.LocalTransition, fn func([]protocol.LocalTransition)) {
	choice := make([]protocol.LocalTransition, len(candidates))
	var rec func(int)
	rec = func(i int) {
		if i == len(candidates) {
			fn(choice)
			return
		}
		for _, c := range candidates[i] {
			choice[i] = c
			rec(i + 1)
		}
	}
	rec(0)
}

func build(et protocol.EnvironmentTransition, exp []string, choice []protocol.LocalTransition) GlobalTransition {
	g := GlobalTransition{
		AgentBefore:  make([]string, len(choice)),
		AgentActions: make([]string, len(choice)),
		EnvBefore:    et.Before,
		Sync:         et.Sync,
		Multiset:     slices.Clone(exp),
		AgentAfter:   make([]string, len(choice)),
		EnvAfter:     et.After,
		Line:         et.Line,
	}
	for i, lt := range choice {
		g.AgentBefore[i] = lt.Before
		g.AgentActions[i] = lt.Action
		g.AgentAfter[i] = lt.After
	}
	return g
}
