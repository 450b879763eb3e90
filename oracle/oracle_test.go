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
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzpetri/popsafe/abstraction"
	"github.com/jazzpetri/popsafe/compose"
	"github.com/jazzpetri/popsafe/gal"
	"github.com/jazzpetri/popsafe/protocol"
)

const tunnel = `outside: 1, approach: 1, tunnel: 1, collision: 0
enter, pass, exit
outside,green,enter,enter,approach
approach,go,pass,pass,tunnel
approach,go,pass pass,pass,collision
tunnel,out,exit,exit,outside
outside
outside
light_green, light_red
green, go, out
light_green
light_green,green,enter,light_green
light_green,go,pass,light_red
light_red,out,exit,light_green
`

func encoded(t *testing.T, bound int) *abstraction.Encoding {
	t.Helper()
	d, err := protocol.Parse(tunnel)
	require.NoError(t, err)
	enc, err := abstraction.Encode(d, compose.Compose(d, compose.DefaultOptions()).Transitions,
		abstraction.Options{InstanceBound: bound})
	require.NoError(t, err)
	return enc
}

// fakeITS writes an executable shell script standing in for its-reach.
// The script records its arguments next to itself.
func fakeITS(t *testing.T, body string) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	dir := t.TempDir()
	bin = filepath.Join(dir, "its-reach")
	argsFile = filepath.Join(dir, "args.txt")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > \"" + argsFile + "\"\n" + body + "\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, argsFile
}

func TestFormula(t *testing.T) {
	t.Parallel()

	enc := encoded(t, 2)
	got := Formula(enc.System, enc.Unsafe[0].Marking())
	assert.Equal(t,
		"outside==0 && approach==2 && tunnel==0 && collision==0 && light_green==1 && light_red==0",
		got)
	assert.NotContains(t, got, "count")

	assert.Equal(t, "true", Formula(gal.NewSystem("empty"), nil))
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	reachable, err := ParseVerdict("Reachability property p0 is true.\n")
	require.NoError(t, err)
	assert.True(t, reachable)

	reachable, err = ParseVerdict("Reachability property p0 is false.\n")
	require.NoError(t, err)
	assert.False(t, reachable)

	_, err = ParseVerdict("Segmentation fault\n")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestReportLines(t *testing.T) {
	t.Parallel()

	out := "Parsing model\n  Model has 42 reachable states  \nbuilding DD\nReachability property p0 is true.\n"
	assert.Equal(t, []string{"Model has 42 reachable states", "Reachability property p0 is true."}, ReportLines(out))
}

func TestITS_Reachable(t *testing.T) {
	t.Parallel()

	bin, argsFile := fakeITS(t, `echo "Model has 12 reachable states"
echo "Reachability property p0 is true."`)

	enc := encoded(t, 2)
	q := Query{System: enc.System, Path: "/tmp/job.gal", Target: enc.Unsafe[0].Marking()}

	answer, err := NewITS(bin, 5*time.Second).Reachable(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, answer.Reachable)
	assert.Equal(t, []string{"Model has 12 reachable states", "Reachability property p0 is true."}, answer.Output)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, Args("/tmp/job.gal", answer.Formula), strings.Split(strings.TrimSuffix(string(args), "\n"), "\n"))
}

func TestITS_Unreachable(t *testing.T) {
	t.Parallel()

	bin, _ := fakeITS(t, `echo "Reachability property p0 is false."`)
	enc := encoded(t, 1)

	answer, err := NewITS(bin, 5*time.Second).Reachable(context.Background(),
		Query{System: enc.System, Path: "job.gal", Target: enc.Unsafe[0].Marking()})
	require.NoError(t, err)
	assert.False(t, answer.Reachable)
}

func TestITS_Unavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		timeout time.Duration
	}{
		{"non-zero exit", "echo 'Reachability property p0 is true.'\nexit 3", 5 * time.Second},
		{"no verdict", "echo 'parse error at line 1'", 5 * time.Second},
		{"timeout", "exec sleep 5", 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bin, _ := fakeITS(t, tt.body)
			enc := encoded(t, 1)
			_, err := NewITS(bin, tt.timeout).Reachable(context.Background(),
				Query{System: enc.System, Path: "job.gal", Target: enc.Unsafe[0].Marking()})
			require.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestITS_MissingBinary(t *testing.T) {
	t.Parallel()

	enc := encoded(t, 1)
	_, err := NewITS(filepath.Join(t.TempDir(), "absent"), time.Second).Reachable(context.Background(),
		Query{System: enc.System, Path: "job.gal", Target: enc.Unsafe[0].Marking()})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestITS_NoPath(t *testing.T) {
	t.Parallel()

	enc := encoded(t, 1)
	_, err := NewITS("", 0).Reachable(context.Background(), Query{System: enc.System})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestExplicit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bound     int
		reachable bool
	}{
		{bound: 1, reachable: false},
		{bound: 2, reachable: true},
		{bound: 3, reachable: true},
	}

	for _, tt := range tests {
		enc := encoded(t, tt.bound)
		answer, err := NewExplicit(0).Reachable(context.Background(),
			Query{System: enc.System, Target: enc.Unsafe[0].Marking()})
		require.NoError(t, err)
		assert.Equal(t, tt.reachable, answer.Reachable, "bound %d", tt.bound)
		if tt.reachable {
			assert.NotEmpty(t, answer.Witness)
		}
		assert.NotEmpty(t, answer.Output)
	}
}

func TestExplicit_StateLimit(t *testing.T) {
	t.Parallel()

	enc := encoded(t, 1)
	// an impossible target forces a full search that the limit cuts short
	_, err := NewExplicit(2).Reachable(context.Background(),
		Query{System: enc.System, Target: gal.Marking{"collision": 7}})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOracle_Interface(t *testing.T) {
	t.Parallel()

	for _, o := range []Oracle{NewITS("", 0), NewExplicit(0)} {
		assert.Contains(t, []string{KindITS, KindExplicit}, o.Name())
	}
}
