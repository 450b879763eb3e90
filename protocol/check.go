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

package protocol

import (
	"fmt"
	"slices"
)

// CheckResult holds structural findings about a parsed description.
// Findings never block composition; Parse has already rejected anything
// that would.
type CheckResult struct {
	Warnings []Issue

	// Analysis carries structural metrics (state, action and transition
	// counts per protocol).
	Analysis map[string]int
}

// Issue is a single structural finding.
type Issue struct {
	Type        string
	Component   string
	ComponentID string
	Message     string
}

// Check inspects a description for structure that is legal but probably
// unintended:
//   - agent or environment actions never used by a transition
//   - transitions using an action that was not declared
//   - agent states with no transition in or out
//   - protocol map entries naming undeclared actions
//   - no unsafe agent state, which makes the safety question vacuous
//
// Structural errors such as undeclared states are reported by Parse.
// Analysis counts the states, actions and transitions of each component.
func Check(d *Description) *CheckResult {
	result := &CheckResult{
		Analysis: map[string]int{
			"agent_states":            len(d.Agent.States),
			"agent_actions":           len(d.Agent.Actions),
			"agent_transitions":       len(d.Agent.Transitions),
			"environment_states":      len(d.Environment.States),
			"environment_actions":     len(d.Environment.Actions),
			"environment_transitions": len(d.Environment.Transitions),
			"unsafe_states":           len(d.Agent.UnsafeStates()),
		},
	}

	checkActions(d, result)
	checkIsolatedStates(d, result)
	checkProtocolMaps(d, result)

	if len(d.Agent.UnsafeStates()) == 0 {
		result.warn("no_unsafe_state", "agent", "", "no agent state has weight 0; every configuration is safe")
	}
	return result
}

func (r *CheckResult) warn(typ, component, id, msg string) {
	r.Warnings = append(r.Warnings, Issue{Type: typ, Component: component, ComponentID: id, Message: msg})
}

func checkActions(d *Description, result *CheckResult) {
	usedAgent := make(map[string]bool)
	usedEnv := make(map[string]bool)

	for _, t := range d.Agent.Transitions {
		usedAgent[t.Action] = true
		if !slices.Contains(d.Agent.Actions, t.Action) {
			result.warn("undeclared_action", "agent_transition", fmt.Sprintf("line %d", t.Line),
				fmt.Sprintf("agent action %s is not declared", t.Action))
		}
		usedEnv[t.Sync] = true
		if !slices.Contains(d.Environment.Actions, t.Sync) {
			result.warn("undeclared_action", "agent_transition", fmt.Sprintf("line %d", t.Line),
				fmt.Sprintf("sync action %s is not an environment action", t.Sync))
		}
	}
	for _, t := range d.Environment.Transitions {
		usedEnv[t.Sync] = true
		if !slices.Contains(d.Environment.Actions, t.Sync) {
			result.warn("undeclared_action", "environment_transition", fmt.Sprintf("line %d", t.Line),
				fmt.Sprintf("environment action %s is not declared", t.Sync))
		}
		for _, a := range t.Agents {
			usedAgent[a] = true
			if !slices.Contains(d.Agent.Actions, a) {
				result.warn("undeclared_action", "environment_transition", fmt.Sprintf("line %d", t.Line),
					fmt.Sprintf("agent action %s is not declared", a))
			}
		}
	}

	for _, a := range d.Agent.Actions {
		if !usedAgent[a] {
			result.warn("unused_action", "agent", a, fmt.Sprintf("agent action %s is never used", a))
		}
	}
	for _, a := range d.Environment.Actions {
		if !usedEnv[a] {
			result.warn("unused_action", "environment", a, fmt.Sprintf("environment action %s is never used", a))
		}
	}
}

func checkIsolatedStates(d *Description, result *CheckResult) {
	touched := map[string]bool{d.Agent.Initial: true}
	for _, t := range d.Agent.Transitions {
		touched[t.Before] = true
		touched[t.After] = true
	}
	for _, s := range d.Agent.States {
		if !touched[s.Name] {
			result.warn("isolated_state", "agent", s.Name,
				fmt.Sprintf("agent state %s has no transition in or out", s.Name))
		}
	}
}

func checkProtocolMaps(d *Description, result *CheckResult) {
	for _, e := range d.Agent.Protocol {
		for _, a := range e.Actions {
			if !slices.Contains(d.Agent.Actions, a) {
				result.warn("undeclared_action", "agent_protocol", e.State,
					fmt.Sprintf("protocol of %s names undeclared action %s", e.State, a))
			}
		}
	}
	for _, e := range d.Environment.Protocol {
		for _, a := range e.Actions {
			if !slices.Contains(d.Environment.Actions, a) {
				result.warn("undeclared_action", "environment_protocol", e.State,
					fmt.Sprintf("protocol of %s names undeclared action %s", e.State, a))
			}
		}
	}
}
