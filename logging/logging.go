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

// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var configMu sync.Mutex

// Options configures Configure.
type Options struct {
	// JSON selects the JSON handler; otherwise logs are text.
	JSON bool

	Level slog.Level

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Configure builds a logger from opts, installs it as the slog default and
// routes the standard log package through it. It returns the logger.
func Configure(opts Options) *slog.Logger {
	configMu.Lock()
	defer configMu.Unlock()

	logger := New(opts)
	slog.SetDefault(logger)
	*log.Default() = *slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
	return logger
}

// New builds a logger from opts without installing it.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(opts.Output, hopts))
	}
	return slog.New(slog.NewTextHandler(opts.Output, hopts))
}

// ParseLevel parses "debug", "info", "warn" or "error", case-insensitively.
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
