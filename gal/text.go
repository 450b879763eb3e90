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
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// WriteTo renders the system in GAL syntax:
//
//	gal name {
//	    int x = 0;
//
//	    transition t1 [x >= 1] {
//	        x -= 1;
//	    }
//	}
func (s *System) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "gal %s {\n", s.Name)
	for _, v := range s.Variables {
		fmt.Fprintf(&buf, "    int %s = %d;\n", v.Name, v.Initial)
	}
	for _, t := range s.Transitions {
		fmt.Fprintf(&buf, "\n    transition %s [%s] {\n", t.Name, t.Guard)
		if len(t.Actions) > 0 {
			fmt.Fprintf(&buf, "        %s\n", t.Actions)
		}
		buf.WriteString("    }\n")
	}
	buf.WriteString("}\n")
	return buf.WriteTo(w)
}

// String returns the GAL text of the system.
func (s *System) String() string {
	var b strings.Builder
	_, _ = s.WriteTo(&b)
	return b.String()
}

// Read parses GAL text from r. See Parse.
func Read(r io.Reader) (*System, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gal: %w", err)
	}
	return Parse(string(data))
}

// Parse reads a single gal block with int declarations and transitions.
// Line comments starting with // are ignored. Anything else fails with
// ErrSyntax and the offending line number.
func Parse(src string) (*System, error) {
	sc := &scanner{src: src, line: 1}

	if err := sc.keyword("gal"); err != nil {
		return nil, err
	}
	name, err := sc.ident()
	if err != nil {
		return nil, err
	}
	if err := sc.expect('{'); err != nil {
		return nil, err
	}

	sys := NewSystem(name)
	for {
		sc.skip()
		if sc.eof() {
			return nil, sc.errorf("unexpected end of input, missing '}'")
		}
		if sc.peek() == '}' {
			sc.pos++
			break
		}
		word, err := sc.ident()
		if err != nil {
			return nil, err
		}
		switch word {
		case "int":
			if err := sc.declaration(sys); err != nil {
				return nil, err
			}
		case "transition":
			if err := sc.transition(sys); err != nil {
				return nil, err
			}
		default:
			return nil, sc.errorf("unexpected %q", word)
		}
	}

	sc.skip()
	if !sc.eof() {
		return nil, sc.errorf("trailing content after gal block")
	}
	return sys, nil
}

type scanner struct {
	src  string
	pos  int
	line int
}

func (sc *scanner) eof() bool { return sc.pos >= len(sc.src) }

func (sc *scanner) peek() byte { return sc.src[sc.pos] }

func (sc *scanner) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, sc.line, fmt.Sprintf(format, args...))
}

// skip consumes whitespace and // comments.
func (sc *scanner) skip() {
	for !sc.eof() {
		c := sc.peek()
		switch {
		case c == '\n':
			sc.line++
			sc.pos++
		case unicode.IsSpace(rune(c)):
			sc.pos++
		case strings.HasPrefix(sc.src[sc.pos:], "//"):
			for !sc.eof() && sc.peek() != '\n' {
				sc.pos++
			}
		default:
			return
		}
	}
}

func (sc *scanner) ident() (string, error) {
	sc.skip()
	start := sc.pos
	for !sc.eof() {
		c := sc.peek()
		if c == '_' || unicode.IsLetter(rune(c)) || (sc.pos > start && unicode.IsDigit(rune(c))) {
			sc.pos++
			continue
		}
		break
	}
	if start == sc.pos {
		return "", sc.errorf("expected identifier")
	}
	return sc.src[start:sc.pos], nil
}

func (sc *scanner) keyword(kw string) error {
	word, err := sc.ident()
	if err != nil {
		return err
	}
	if word != kw {
		return sc.errorf("expected %q, got %q", kw, word)
	}
	return nil
}

func (sc *scanner) expect(c byte) error {
	sc.skip()
	if sc.eof() || sc.peek() != c {
		return sc.errorf("expected %q", c)
	}
	sc.pos++
	return nil
}

// until returns the raw text up to the closing delimiter and consumes it.
func (sc *scanner) until(c byte) (string, error) {
	start := sc.pos
	for !sc.eof() && sc.peek() != c {
		if sc.peek() == '\n' {
			sc.line++
		}
		sc.pos++
	}
	if sc.eof() {
		return "", sc.errorf("missing %q", c)
	}
	text := sc.src[start:sc.pos]
	sc.pos++
	return text, nil
}

func (sc *scanner) declaration(sys *System) error {
	name, err := sc.ident()
	if err != nil {
		return err
	}
	if err := sc.expect('='); err != nil {
		return err
	}
	sc.skip()
	lit, err := sc.until(';')
	if err != nil {
		return err
	}
	v, err := strconv.Atoi(strings.TrimSpace(lit))
	if err != nil {
		return sc.errorf("bad initial value %q for %s", strings.TrimSpace(lit), name)
	}
	if err := sys.Declare(name, v); err != nil {
		return sc.errorf("%v", err)
	}
	return nil
}

func (sc *scanner) transition(sys *System) error {
	name, err := sc.ident()
	if err != nil {
		return err
	}
	if err := sc.expect('['); err != nil {
		return err
	}
	guardText, err := sc.until(']')
	if err != nil {
		return err
	}
	guard, err := ParseGuard(guardText)
	if err != nil {
		return sc.errorf("transition %s: %v", name, err)
	}
	if err := sc.expect('{'); err != nil {
		return err
	}
	body, err := sc.until('}')
	if err != nil {
		return err
	}
	actions, err := ParseActions(body)
	if err != nil {
		return sc.errorf("transition %s: %v", name, err)
	}
	if err := sys.AddTransition(Transition{Name: name, Guard: guard, Actions: actions}); err != nil {
		return sc.errorf("%v", err)
	}
	return nil
}
