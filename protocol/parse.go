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
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/jazzpetri/popsafe/gal"
)

// ErrMalformedInput is the sentinel for every parse failure. Use
// errors.As with *SyntaxError to get the offending line.
var ErrMalformedInput = errors.New("malformed input")

// Section names, in the order they must appear.
const (
	SectionAgentStates          = "agent states"
	SectionAgentActions         = "agent actions"
	SectionAgentProtocol        = "agent protocol"
	SectionAgentTransitions     = "agent transitions"
	SectionAgentInitial         = "agent initial state"
	SectionAgentLeave           = "agent leave state"
	SectionEnvStates            = "environment states"
	SectionEnvActions           = "environment actions"
	SectionEnvProtocol          = "environment protocol"
	SectionEnvInitial           = "environment initial state"
	SectionEnvTransitions       = "environment transitions"
	localTransitionFields       = 5
	environmentTransitionFields = 4
)

// SyntaxError reports where parsing stopped. Line is 0 when the input
// ended before the section was found.
type SyntaxError struct {
	Line    int
	Section string
	Text    string
	Reason  string
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	b.WriteString(ErrMalformedInput.Error())
	if e.Line > 0 {
		fmt.Fprintf(&b, ": line %d", e.Line)
	}
	fmt.Fprintf(&b, " (%s): %s", e.Section, e.Reason)
	if e.Text != "" {
		fmt.Fprintf(&b, ": %q", e.Text)
	}
	return b.String()
}

func (e *SyntaxError) Unwrap() error {
	return ErrMalformedInput
}

type line struct {
	num  int
	text string
}

// cursor walks significant lines. Productions only advance it after a
// line has been recognized.
type cursor struct {
	lines []line
	pos   int
}

func (c *cursor) peek() (line, bool) {
	if c.pos >= len(c.lines) {
		return line{}, false
	}
	return c.lines[c.pos], true
}

func (c *cursor) advance() { c.pos++ }

// num is the source line of the next significant line, 0 at the end.
func (c *cursor) num() int {
	l, _ := c.peek()
	return l.num
}

func (c *cursor) require(section string) (line, error) {
	l, ok := c.peek()
	if !ok {
		return line{}, &SyntaxError{Section: section, Reason: "unexpected end of input"}
	}
	return l, nil
}

// ParseReader reads a description from r. See Parse.
func ParseReader(r io.Reader) (*Description, error) {
	var lines []line
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	num := 0
	for sc.Scan() {
		num++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, line{num: num, text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read protocol description: %w", err)
	}
	return parseLines(lines)
}

// Parse reads a description. Sections appear in fixed order:
//
//  1. agent states with weights:        idle: 1, active: 0
//  2. agent actions:                    go, stop
//  3. agent protocol, zero or more:     idle: go, stop
//  4. agent transitions, zero or more:  before,sync,concurrent,action,after
//  5. agent initial state:              idle
//  6. agent leave state:                idle
//  7. environment states:               s0, s1
//  8. environment actions:              sync
//  9. environment protocol, zero+:      s0: sync
//  10. environment initial state:       s0
//  11. environment transitions, zero+:  before,sync,agent actions,after
//
// Blank lines and lines starting with # may appear anywhere. Lists are
// separated by commas or whitespace, except inside transition lines where
// commas separate fields and whitespace separates multiset members.
//
// The concurrent field of an agent transition lists the actions of the
// whole synchronizing group, including the agent's own action. It may be
// empty when the agent acts alone.
//
// Any line that does not match the production expected at that point
// fails with a *SyntaxError.
func Parse(text string) (*Description, error) {
	return ParseReader(strings.NewReader(text))
}

func parseLines(lines []line) (*Description, error) {
	c := &cursor{lines: lines}
	d := &Description{}
	at := make(map[string]int)
	var err error

	at[SectionAgentStates] = c.num()
	if d.Agent.States, err = parseAgentStates(c); err != nil {
		return nil, err
	}
	if d.Agent.Actions, err = parseNameList(c, SectionAgentActions); err != nil {
		return nil, err
	}
	if d.Agent.Protocol, err = parseProtocolMap(c, SectionAgentProtocol); err != nil {
		return nil, err
	}
	if d.Agent.Transitions, err = parseLocalTransitions(c); err != nil {
		return nil, err
	}
	at[SectionAgentInitial] = c.num()
	if d.Agent.Initial, err = parseSingleName(c, SectionAgentInitial); err != nil {
		return nil, err
	}
	at[SectionAgentLeave] = c.num()
	if d.Agent.Leave, err = parseSingleName(c, SectionAgentLeave); err != nil {
		return nil, err
	}
	at[SectionEnvStates] = c.num()
	if d.Environment.States, err = parseNameList(c, SectionEnvStates); err != nil {
		return nil, err
	}
	if d.Environment.Actions, err = parseNameList(c, SectionEnvActions); err != nil {
		return nil, err
	}
	if d.Environment.Protocol, err = parseProtocolMap(c, SectionEnvProtocol); err != nil {
		return nil, err
	}
	at[SectionEnvInitial] = c.num()
	if d.Environment.Initial, err = parseSingleName(c, SectionEnvInitial); err != nil {
		return nil, err
	}
	if d.Environment.Transitions, err = parseEnvironmentTransitions(c); err != nil {
		return nil, err
	}

	if err := validate(d, at); err != nil {
		return nil, err
	}
	return d, nil
}

var colonSpacing = regexp.MustCompile(`\s*:\s*`)

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

func checkNames(l line, section string, names []string) error {
	for _, n := range names {
		if !gal.ValidName(n) {
			return &SyntaxError{Line: l.num, Section: section, Text: l.text, Reason: fmt.Sprintf("invalid name %q", n)}
		}
	}
	return nil
}

func parseAgentStates(c *cursor) ([]AgentState, error) {
	l, err := c.require(SectionAgentStates)
	if err != nil {
		return nil, err
	}
	fail := func(reason string) error {
		return &SyntaxError{Line: l.num, Section: SectionAgentStates, Text: l.text, Reason: reason}
	}

	entries := splitList(colonSpacing.ReplaceAllString(l.text, ":"))
	if len(entries) == 0 {
		return nil, fail("expected name: weight entries")
	}
	states := make([]AgentState, 0, len(entries))
	for _, entry := range entries {
		name, weight, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fail(fmt.Sprintf("state %q has no weight", entry))
		}
		if !gal.ValidName(name) {
			return nil, fail(fmt.Sprintf("invalid name %q", name))
		}
		w, err := strconv.Atoi(weight)
		if err != nil || w < 0 {
			return nil, fail(fmt.Sprintf("weight of %s must be a non-negative integer", name))
		}
		states = append(states, AgentState{Name: name, Weight: w})
	}
	c.advance()
	return states, nil
}

func parseNameList(c *cursor, section string) ([]string, error) {
	l, err := c.require(section)
	if err != nil {
		return nil, err
	}
	if strings.Contains(l.text, ":") {
		return nil, &SyntaxError{Line: l.num, Section: section, Text: l.text, Reason: "expected a list of names"}
	}
	names := splitList(l.text)
	if err := checkNames(l, section, names); err != nil {
		return nil, err
	}
	c.advance()
	return names, nil
}

func parseSingleName(c *cursor, section string) (string, error) {
	l, err := c.require(section)
	if err != nil {
		return "", err
	}
	if !gal.ValidName(l.text) {
		return "", &SyntaxError{Line: l.num, Section: section, Text: l.text, Reason: "expected a single state name"}
	}
	c.advance()
	return l.text, nil
}

func parseProtocolMap(c *cursor, section string) ([]ProtocolEntry, error) {
	var entries []ProtocolEntry
	for {
		l, ok := c.peek()
		if !ok || !strings.Contains(l.text, ":") {
			return entries, nil
		}
		state, rest, _ := strings.Cut(l.text, ":")
		state = strings.TrimSpace(state)
		if !gal.ValidName(state) {
			return nil, &SyntaxError{Line: l.num, Section: section, Text: l.text, Reason: fmt.Sprintf("invalid state %q", state)}
		}
		if strings.Contains(rest, ":") {
			return nil, &SyntaxError{Line: l.num, Section: section, Text: l.text, Reason: "more than one ':'"}
		}
		actions := splitList(rest)
		if err := checkNames(l, section, actions); err != nil {
			return nil, err
		}
		entries = append(entries, ProtocolEntry{State: state, Actions: actions, Line: l.num})
		c.advance()
	}
}

// fields splits a transition line on commas. It returns nil when the line
// has no comma, which ends the transition section.
func fields(l line, section string, want int) ([]string, error) {
	if !strings.Contains(l.text, ",") {
		return nil, nil
	}
	if strings.Contains(l.text, ":") {
		return nil, &SyntaxError{Line: l.num, Section: section, Text: l.text, Reason: "unexpected ':' in transition"}
	}
	parts := strings.Split(l.text, ",")
	if len(parts) != want {
		return nil, &SyntaxError{
			Line:    l.num,
			Section: section,
			Text:    l.text,
			Reason:  fmt.Sprintf("expected %d comma-separated fields, got %d", want, len(parts)),
		}
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

func parseLocalTransitions(c *cursor) ([]LocalTransition, error) {
	var out []LocalTransition
	for {
		l, ok := c.peek()
		if !ok {
			return out, nil
		}
		parts, err := fields(l, SectionAgentTransitions, localTransitionFields)
		if err != nil {
			return nil, err
		}
		if parts == nil {
			return out, nil
		}

		before, sync, group, action, after := parts[0], parts[1], strings.Fields(parts[2]), parts[3], parts[4]
		if err := checkNames(l, SectionAgentTransitions, append([]string{before, sync, action, after}, group...)); err != nil {
			return nil, err
		}

		concurrent := group
		if len(group) > 0 {
			i := slices.Index(group, action)
			if i < 0 {
				return nil, &SyntaxError{
					Line:    l.num,
					Section: SectionAgentTransitions,
					Text:    l.text,
					Reason:  fmt.Sprintf("concurrent actions %v do not include the agent's own action %s", group, action),
				}
			}
			concurrent = slices.Delete(slices.Clone(group), i, i+1)
		}
		slices.Sort(concurrent)

		out = append(out, LocalTransition{
			Before:     before,
			Action:     action,
			Sync:       sync,
			Concurrent: concurrent,
			After:      after,
			Line:       l.num,
		})
		c.advance()
	}
}

func parseEnvironmentTransitions(c *cursor) ([]EnvironmentTransition, error) {
	var out []EnvironmentTransition
	for {
		l, ok := c.peek()
		if !ok {
			return out, nil
		}
		parts, err := fields(l, SectionEnvTransitions, environmentTransitionFields)
		if err != nil {
			return nil, err
		}
		if parts == nil {
			return nil, &SyntaxError{
				Line:    l.num,
				Section: SectionEnvTransitions,
				Text:    l.text,
				Reason:  fmt.Sprintf("expected %d comma-separated fields", environmentTransitionFields),
			}
		}

		agents := strings.Fields(parts[2])
		if err := checkNames(l, SectionEnvTransitions, append([]string{parts[0], parts[1], parts[3]}, agents...)); err != nil {
			return nil, err
		}
		slices.Sort(agents)

		out = append(out, EnvironmentTransition{
			Before: parts[0],
			Sync:   parts[1],
			Agents: agents,
			After:  parts[3],
			Line:   l.num,
		})
		c.advance()
	}
}

// validate checks cross-references once every section is read. at maps
// the single-line sections to their source lines.
func validate(d *Description, at map[string]int) error {
	agentStates := make(map[string]bool, len(d.Agent.States))
	for _, s := range d.Agent.States {
		if agentStates[s.Name] {
			return &SyntaxError{Line: at[SectionAgentStates], Section: SectionAgentStates, Reason: fmt.Sprintf("duplicate state %s", s.Name)}
		}
		agentStates[s.Name] = true
	}
	envStates := make(map[string]bool, len(d.Environment.States))
	for _, s := range d.Environment.States {
		if envStates[s] {
			return &SyntaxError{Line: at[SectionEnvStates], Section: SectionEnvStates, Reason: fmt.Sprintf("duplicate state %s", s)}
		}
		if agentStates[s] {
			return &SyntaxError{Line: at[SectionEnvStates], Section: SectionEnvStates, Reason: fmt.Sprintf("state %s is declared by both agent and environment", s)}
		}
		envStates[s] = true
	}
	if agentStates[ReservedName] {
		return &SyntaxError{Line: at[SectionAgentStates], Section: SectionAgentStates, Reason: fmt.Sprintf("%q is reserved", ReservedName)}
	}
	if envStates[ReservedName] {
		return &SyntaxError{Line: at[SectionEnvStates], Section: SectionEnvStates, Reason: fmt.Sprintf("%q is reserved", ReservedName)}
	}

	if !agentStates[d.Agent.Initial] {
		return &SyntaxError{Line: at[SectionAgentInitial], Section: SectionAgentInitial, Reason: fmt.Sprintf("undeclared agent state %s", d.Agent.Initial)}
	}
	if !agentStates[d.Agent.Leave] {
		return &SyntaxError{Line: at[SectionAgentLeave], Section: SectionAgentLeave, Reason: fmt.Sprintf("undeclared agent state %s", d.Agent.Leave)}
	}
	if !envStates[d.Environment.Initial] {
		return &SyntaxError{Line: at[SectionEnvInitial], Section: SectionEnvInitial, Reason: fmt.Sprintf("undeclared environment state %s", d.Environment.Initial)}
	}

	for _, e := range d.Agent.Protocol {
		if !agentStates[e.State] {
			return &SyntaxError{Line: e.Line, Section: SectionAgentProtocol, Reason: fmt.Sprintf("undeclared agent state %s", e.State)}
		}
	}
	for _, e := range d.Environment.Protocol {
		if !envStates[e.State] {
			return &SyntaxError{Line: e.Line, Section: SectionEnvProtocol, Reason: fmt.Sprintf("undeclared environment state %s", e.State)}
		}
	}

	for _, t := range d.Agent.Transitions {
		for _, s := range []string{t.Before, t.After} {
			if !agentStates[s] {
				return &SyntaxError{Line: t.Line, Section: SectionAgentTransitions, Reason: fmt.Sprintf("undeclared agent state %s", s)}
			}
		}
	}
	for _, t := range d.Environment.Transitions {
		for _, s := range []string{t.Before, t.After} {
			if !envStates[s] {
				return &SyntaxError{Line: t.Line, Section: SectionEnvTransitions, Reason: fmt.Sprintf("undeclared environment state %s", s)}
			}
		}
	}
	return nil
}
