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

package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Defaults for the its-reach adapter.
const (
	DefaultITSPath    = "./its-reach"
	DefaultITSTimeout = 60 * time.Second
)

// Verdict markers in its-reach output.
const (
	markerTrue  = "is true"
	markerFalse = "is false"
)

// reportTerms select the output lines worth forwarding.
var reportTerms = []string{"property", "true", "false", "reachable states"}

// ITS queries the its-reach command line tool:
//
//	its-reach -i <file.gal> -t GAL -reachable <formula>
//
// Output containing "is true" means reachable and "is false" means
// unreachable. Anything else, a non-zero exit status, or a timeout is
// ErrUnavailable.
type ITS struct {
	path    string
	timeout time.Duration
}

// NewITS returns an adapter for the binary at path. Empty or zero
// arguments take the defaults.
func NewITS(path string, timeout time.Duration) *ITS {
	if path == "" {
		path = DefaultITSPath
	}
	if timeout <= 0 {
		timeout = DefaultITSTimeout
	}
	return &ITS{path: path, timeout: timeout}
}

// Name returns KindITS.
func (o *ITS) Name() string { return KindITS }

// Args returns the command line arguments for formula on the GAL file at
// path.
func Args(path, formula string) []string {
	return []string{"-i", path, "-t", "GAL", "-reachable", formula}
}

// Reachable runs its-reach for q. q.Path must name a GAL file holding
// q.System.
func (o *ITS) Reachable(ctx context.Context, q Query) (*Answer, error) {
	if q.Path == "" {
		return nil, fmt.Errorf("its-reach: %w: no GAL file", ErrUnavailable)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	answer := &Answer{Formula: Formula(q.System, q.Target)}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, o.path, Args(q.Path, answer.Formula)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	answer.Duration = time.Since(start)
	answer.Output = ReportLines(stdout.String())

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return answer, fmt.Errorf("its-reach: %w: timed out after %s", ErrUnavailable, o.timeout)
	case ctx.Err() != nil:
		return answer, ctx.Err()
	case err != nil:
		return answer, fmt.Errorf("its-reach: %w: %v: %s", ErrUnavailable, err, strings.TrimSpace(stderr.String()))
	}

	reachable, err := ParseVerdict(stdout.String())
	if err != nil {
		return answer, err
	}
	answer.Reachable = reachable
	return answer, nil
}

// ParseVerdict reads the verdict from its-reach output.
func ParseVerdict(output string) (bool, error) {
	switch {
	case strings.Contains(output, markerTrue):
		return true, nil
	case strings.Contains(output, markerFalse):
		return false, nil
	default:
		return false, fmt.Errorf("its-reach: %w: no verdict in output", ErrUnavailable)
	}
}

// ReportLines returns the trimmed lines of output that mention the
// property, a truth value or the number of reachable states.
func ReportLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, term := range reportTerms {
			if strings.Contains(line, term) {
				lines = append(lines, line)
				break
			}
		}
	}
	return lines
}
