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
	"log/slog"
	"time"

	"github.com/jazzpetri/popsafe/clock"
	"github.com/jazzpetri/popsafe/logging"
)

// Retry wraps an oracle and repeats queries that fail with
// ErrUnavailable, waiting between attempts. Other errors and decided
// answers are returned at once.
//
//	orc := oracle.NewRetry(oracle.NewITS(path, timeout), 3, time.Second)
//
// Backoff doubles after every failed attempt. The last error is returned
// when all attempts fail.
type Retry struct {
	inner       Oracle
	maxAttempts int
	backoff     time.Duration

	// Clock times the backoff. Nil means real time.
	Clock clock.Clock

	// Logger receives a warning per failed attempt. Nil discards them.
	Logger *slog.Logger
}

// NewRetry returns inner wrapped with up to maxAttempts attempts per
// query. maxAttempts below 1 is treated as 1.
func NewRetry(inner Oracle, maxAttempts int, backoff time.Duration) *Retry {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retry{inner: inner, maxAttempts: maxAttempts, backoff: backoff}
}

// Name returns the name of the wrapped oracle.
func (r *Retry) Name() string { return r.inner.Name() }

// Reachable asks the wrapped oracle, retrying while it is unavailable.
func (r *Retry) Reachable(ctx context.Context, q Query) (*Answer, error) {
	c := r.Clock
	if c == nil {
		c = clock.NewReal()
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	wait := r.backoff
	var (
		answer *Answer
		err    error
	)
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return answer, err
		}

		answer, err = r.inner.Reachable(ctx, q)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			if err == nil && attempt > 1 {
				logger.Info("oracle answered after retries", "oracle", r.Name(), "attempts", attempt)
			}
			return answer, err
		}
		if attempt == r.maxAttempts {
			break
		}

		logger.Warn("oracle unavailable, retrying",
			"oracle", r.Name(), "attempt", attempt, "max", r.maxAttempts,
			"backoff", wait, "error", err)
		if wait > 0 {
			select {
			case <-c.After(wait):
			case <-ctx.Done():
				return answer, ctx.Err()
			}
			wait *= 2
		}
	}
	return answer, err
}
