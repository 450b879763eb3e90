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

// Package protocol describes the two local state machines of a population
// protocol: the agent protocol executed by every anonymous agent instance,
// and the environment protocol that synchronizes with groups of agents.
//
// Descriptions are read from a sectioned text format with Parse:
//
//	# agent
//	idle: 1, active: 0
//	go
//	idle: go
//	idle,sync,go,go,active
//	idle
//	active
//	# environment
//	s0, s1
//	sync
//	s0: sync
//	s0
//	s0,sync,go,s1
//
// Agent states carry a weight; weight 0 marks a state that no agent may
// ever occupy. Parsed descriptions are immutable values: the composition
// pipeline only reads them.
package protocol

import "slices"

// ReservedName is the counter the abstraction uses for the number of
// active agent instances. No state may use it.
const ReservedName = "count"

// AgentState is an agent state and its safety weight.
type AgentState struct {
	Name string

	// Weight is the declared capacity. Zero marks an unsafe state.
	Weight int
}

// Safe reports whether agents may occupy the state.
func (s AgentState) Safe() bool {
	return s.Weight != 0
}

// ProtocolEntry lists the actions a state may attempt. The protocol
// function is informational: synchronization only follows declared
// transitions.
type ProtocolEntry struct {
	State   string
	Actions []string
	Line    int
}

// LocalTransition is one agent step: from Before, performing Action while
// the environment performs Sync and other agents concurrently perform
// Concurrent, the agent moves to After.
type LocalTransition struct {
	Before string
	Action string
	Sync   string

	// Concurrent is the sorted multiset of actions performed by the other
	// agents of the same synchronization.
	Concurrent []string

	After string

	// Line is the source line, 0 for transitions built in code.
	Line int
}

// Key returns the lookup key (Action, Sync, Concurrent).
func (t LocalTransition) Key() TransitionKey {
	return NewTransitionKey(t.Action, t.Sync, t.Concurrent)
}

// EnvironmentTransition is one environment step: from Before, performing
// Sync together with agents jointly performing the Agents multiset, the
// environment moves to After.
type EnvironmentTransition struct {
	Before string
	Sync   string

	// Agents names, with repetition, the actions participating agents
	// perform. It is kept sorted.
	Agents []string

	After string
	Line  int
}

// Agent is the agent protocol.
type Agent struct {
	States      []AgentState
	Actions     []string
	Protocol    []ProtocolEntry
	Transitions []LocalTransition
	Initial     string
	Leave       string
}

// State returns the named agent state.
func (a *Agent) State(name string) (AgentState, bool) {
	for _, s := range a.States {
		if s.Name == name {
			return s, true
		}
	}
	return AgentState{}, false
}

// StateNames returns agent state names in declaration order.
func (a *Agent) StateNames() []string {
	names := make([]string, len(a.States))
	for i, s := range a.States {
		names[i] = s.Name
	}
	return names
}

// UnsafeStates returns the names of states with weight 0.
func (a *Agent) UnsafeStates() []string {
	var names []string
	for _, s := range a.States {
		if !s.Safe() {
			names = append(names, s.Name)
		}
	}
	return names
}

// Enabled returns the actions the protocol function allows from state.
func (a *Agent) Enabled(state string) []string {
	return enabled(a.Protocol, state)
}

// Environment is the environment protocol.
type Environment struct {
	States      []string
	Actions     []string
	Protocol    []ProtocolEntry
	Initial     string
	Transitions []EnvironmentTransition
}

// HasState reports whether name is an environment state.
func (e *Environment) HasState(name string) bool {
	return slices.Contains(e.States, name)
}

// Enabled returns the actions the protocol function allows from state.
func (e *Environment) Enabled(state string) []string {
	return enabled(e.Protocol, state)
}

// Description is a parsed population protocol.
type Description struct {
	Agent       Agent
	Environment Environment
}

func enabled(entries []ProtocolEntry, state string) []string {
	for _, e := range entries {
		if e.State == state {
			return slices.Clone(e.Actions)
		}
	}
	return nil
}
