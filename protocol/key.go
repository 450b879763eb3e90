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
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// TransitionKey identifies the local transitions that can realize one
// action occurrence: the acting agent's action, the environment's sync
// action, and the sorted multiset of co-occurring agent actions.
//
// Keys are compared structurally, never by concatenating names, so no
// choice of action names can make two different keys collide.
type TransitionKey struct {
	Action     string
	Sync       string
	Concurrent []string
}

// NewTransitionKey builds a key, sorting a copy of concurrent.
func NewTransitionKey(action, sync string, concurrent []string) TransitionKey {
	c := slices.Clone(concurrent)
	slices.Sort(c)
	return TransitionKey{Action: action, Sync: sync, Concurrent: c}
}

// Compare orders keys by Action, then Sync, then Concurrent
// lexicographically.
func (k TransitionKey) Compare(other TransitionKey) int {
	if c := cmp.Compare(k.Action, other.Action); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Sync, other.Sync); c != 0 {
		return c
	}
	return slices.Compare(k.Concurrent, other.Concurrent)
}

// Equal reports structural equality.
func (k TransitionKey) Equal(other TransitionKey) bool {
	return k.Compare(other) == 0
}

func (k TransitionKey) String() string {
	return fmt.Sprintf("(%s, %s, [%s])", k.Action, k.Sync, strings.Join(k.Concurrent, " "))
}

// Index groups local transitions by key. Transitions sharing a key are
// all retained, in declaration order, since different agents may realize
// the same synchronization differently.
type Index struct {
	entries []indexEntry
}

type indexEntry struct {
	key         TransitionKey
	transitions []LocalTransition
}

// NewIndex builds an index over transitions.
func NewIndex(transitions []LocalTransition) *Index {
	ix := &Index{}
	for _, t := range transitions {
		key := t.Key()
		i, found := slices.BinarySearchFunc(ix.entries, key, func(e indexEntry, k TransitionKey) int {
			return e.key.Compare(k)
		})
		if found {
			ix.entries[i].transitions = append(ix.entries[i].transitions, t)
			continue
		}
		ix.entries = slices.Insert(ix.entries, i, indexEntry{key: key, transitions: []LocalTransition{t}})
	}
	return ix
}

// Lookup returns the transitions for key in declaration order, or nil.
func (ix *Index) Lookup(key TransitionKey) []LocalTransition {
	i, found := slices.BinarySearchFunc(ix.entries, key, func(e indexEntry, k TransitionKey) int {
		return e.key.Compare(k)
	})
	if !found {
		return nil
	}
	return ix.entries[i].transitions
}
