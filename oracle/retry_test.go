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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/jazzpetri/popsafe/clock"
)

// flaky fails with ErrUnavailable until it has been asked failures times.
type flaky struct {
	failures int64
	calls    atomic.Int64
	err      error
}

func (f *flaky) Name() string { return "flaky" }

func (f *flaky) Reachable(ctx context.Context, q Query) (*Answer, error) {
	n := f.calls.Inc()
	if f.err != nil {
		return nil, f.err
	}
	if n <= f.failures {
		return &Answer{}, fmt.Errorf("attempt %d: %w", n, ErrUnavailable)
	}
	return &Answer{Reachable: true}, nil
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	inner := &flaky{failures: 2}
	r := NewRetry(inner, 3, 0)
	r.Logger = slogt.New(t)

	answer, err := r.Reachable(context.Background(), Query{})
	require.NoError(t, err)
	assert.True(t, answer.Reachable)
	assert.Equal(t, int64(3), inner.calls.Load())
	assert.Equal(t, "flaky", r.Name())
}

func TestRetry_GivesUp(t *testing.T) {
	t.Parallel()

	inner := &flaky{failures: 10}
	_, err := NewRetry(inner, 3, 0).Reachable(context.Background(), Query{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "attempt 3")
	assert.Equal(t, int64(3), inner.calls.Load())
}

func TestRetry_OtherErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	inner := &flaky{err: errors.New("broken query")}
	_, err := NewRetry(inner, 5, 0).Reachable(context.Background(), Query{})
	require.EqualError(t, err, "broken query")
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestRetry_AtLeastOneAttempt(t *testing.T) {
	t.Parallel()

	inner := &flaky{}
	_, err := NewRetry(inner, 0, 0).Reachable(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestRetry_BackoffDoubles(t *testing.T) {
	t.Parallel()

	vc := clock.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	inner := &flaky{failures: 2}
	r := NewRetry(inner, 3, time.Second)
	r.Clock = vc

	done := make(chan error, 1)
	go func() {
		_, err := r.Reachable(context.Background(), Query{})
		done <- err
	}()

	waitPending(t, vc)
	assert.Equal(t, int64(1), inner.calls.Load())
	vc.Advance(time.Second)

	waitPending(t, vc)
	assert.Equal(t, int64(2), inner.calls.Load())
	vc.Advance(time.Second)
	assert.Equal(t, 1, vc.Pending(), "second backoff is two seconds")
	vc.Advance(time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, int64(3), inner.calls.Load())
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	vc := clock.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewRetry(&flaky{failures: 10}, 3, time.Minute)
	r.Clock = vc

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Reachable(ctx, Query{})
		done <- err
	}()

	waitPending(t, vc)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func waitPending(t *testing.T, vc *clock.Virtual) {
	t.Helper()
	require.Eventually(t, func() bool { return vc.Pending() > 0 }, time.Second, time.Millisecond)
}
