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

// Package event fans job updates out to subscribers as they are
// recorded.
//
//	bus := event.NewBus(logger)
//	id, _ := bus.Subscribe(event.All, func(e event.Event) {
//	    fmt.Println(e.JobID, e.Update.Message)
//	})
//	defer bus.Unsubscribe(id)
package event

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jazzpetri/popsafe/jobs"
	"github.com/jazzpetri/popsafe/logging"
)

// All subscribes to the updates of every job.
const All = "*"

var (
	// ErrClosed is returned by a closed Bus.
	ErrClosed = errors.New("event bus closed")

	// ErrNoSubscription means the subscription ID is unknown.
	ErrNoSubscription = errors.New("subscription not found")
)

// Event is one update recorded on a job.
type Event struct {
	JobID  string
	Update jobs.Update
}

// Handler receives events. It runs on the publisher's goroutine and must
// not block for long.
type Handler func(Event)

type subscription struct {
	id      string
	jobID   string
	handler Handler
}

// Bus delivers each published event to the subscribers of its job, in
// subscription order. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
	logger *slog.Logger
}

// NewBus returns an empty bus. Handler panics are logged to logger; a nil
// logger discards them.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h for the updates of jobID, or of every job when
// jobID is All. It returns the subscription ID.
func (b *Bus) Subscribe(jobID string, h Handler) (string, error) {
	if h == nil {
		return "", errors.New("handler cannot be nil")
	}
	if jobID == "" {
		return "", errors.New("job ID cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrClosed
	}
	sub := &subscription{id: uuid.NewString(), jobID: jobID, handler: h}
	b.subs = append(b.subs, sub)
	return sub.id, nil
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSubscription, id)
}

// Publish calls every matching handler with e before returning. A
// panicking handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(e Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	var matching []*subscription
	for _, sub := range b.subs {
		if sub.jobID == All || sub.jobID == e.JobID {
			matching = append(matching, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matching {
		b.deliver(sub, e)
	}
	return nil
}

func (b *Bus) deliver(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"subscription", sub.id, "job_id", e.JobID, "panic", r)
		}
	}()
	sub.handler(e)
}

// Len returns the number of subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops all subscriptions. Publishing or subscribing afterwards
// fails with ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	b.subs = nil
	return nil
}
