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

// Package oracle answers whether a configuration of a counter system is
// reachable from its initial values.
//
// ITS runs the external its-reach tool on a GAL file. Explicit searches the
// state space in process. Both report failure to decide as an error
// wrapping ErrUnavailable, never as "unreachable".
package oracle

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jazzpetri/popsafe/gal"
	"github.com/jazzpetri/popsafe/protocol"
)

// ErrUnavailable means the oracle could not decide the query: the process
// failed, timed out, printed no verdict, or exploration hit its limit.
var ErrUnavailable = errors.New("reachability oracle unavailable")

// Oracle kinds, as used in configuration and metric labels.
const (
	KindITS      = "its"
	KindExplicit = "explicit"
)

// Query asks whether Target is reachable in System.
type Query struct {
	// System is the counter system. Explicit reads it directly.
	System *gal.System

	// Path is the GAL file holding System. ITS reads it from disk.
	Path string

	// Target is a partial marking. Declared counters it does not name are
	// required to be zero; the instance counter is unconstrained.
	Target gal.Marking
}

// Answer is a decided query.
type Answer struct {
	Reachable bool
	Formula   string

	// Output holds the oracle's lines worth reporting.
	Output []string

	// Witness is a firing sequence reaching the target, when the oracle
	// provides one.
	Witness []string

	Duration time.Duration
}

// Oracle decides reachability queries. Implementations must be safe for
// concurrent use.
type Oracle interface {
	Name() string
	Reachable(ctx context.Context, q Query) (*Answer, error)
}

// Formula restates target as a conjunction name==value over every counter
// declared by sys except the instance counter, in declaration order.
// Counters missing from target are 0.
//
//	idle==1 && active==0 && s0==1 && s1==0
func Formula(sys *gal.System, target gal.Marking) string {
	var parts []string
	for _, v := range sys.Variables {
		if v.Name == protocol.ReservedName {
			continue
		}
		parts = append(parts, v.Name+"=="+strconv.Itoa(target.Get(v.Name)))
	}
	if len(parts) == 0 {
		return "true"
	}
	return strings.Join(parts, " && ")
}
