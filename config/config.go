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

// Package config loads popsafe settings: defaults, then an optional YAML
// file, then POPSAFE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jazzpetri/popsafe/abstraction"
	"github.com/jazzpetri/popsafe/compose"
	"github.com/jazzpetri/popsafe/logging"
	"github.com/jazzpetri/popsafe/oracle"
	"github.com/jazzpetri/popsafe/simulation"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "POPSAFE_"

// Job store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds every setting.
type Config struct {
	// InstanceBound caps the number of simultaneously active agents.
	InstanceBound int `yaml:"instance_bound" env:"INSTANCE_BOUND"`

	// MaxConcurrency caps how many agents may realize one action of a
	// synchronization.
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`

	// Deduplicate collapses global transitions that differ only in the
	// order of their participants.
	Deduplicate bool `yaml:"deduplicate" env:"DEDUPLICATE"`

	// WorkDir receives the generated GAL files.
	WorkDir string `yaml:"work_dir" env:"WORK_DIR"`

	Oracle     Oracle     `yaml:"oracle" envPrefix:"ORACLE_"`
	Jobs       Jobs       `yaml:"jobs" envPrefix:"JOBS_"`
	Simulation Simulation `yaml:"simulation" envPrefix:"SIMULATION_"`
	Log        Log        `yaml:"log" envPrefix:"LOG_"`
}

// Oracle selects and tunes the reachability oracle.
type Oracle struct {
	Kind      string        `yaml:"kind" env:"KIND"`
	Path      string        `yaml:"path" env:"PATH"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Workers   int           `yaml:"workers" env:"WORKERS"`
	MaxStates int           `yaml:"max_states" env:"MAX_STATES"`

	// Attempts is how often an unavailable oracle is asked before the
	// configuration is reported without a verdict.
	Attempts int           `yaml:"attempts" env:"ATTEMPTS"`
	Backoff  time.Duration `yaml:"backoff" env:"BACKOFF"`
}

// Jobs configures the job store.
type Jobs struct {
	Store string `yaml:"store" env:"STORE"`

	// DSN is the SQLite database path.
	DSN string `yaml:"dsn" env:"DSN"`

	// TTL is how long finished jobs are kept.
	TTL time.Duration `yaml:"ttl" env:"TTL"`

	// MaxUpdates bounds the updates kept per job in memory; 0 keeps all.
	MaxUpdates int `yaml:"max_updates" env:"MAX_UPDATES"`
}

// Simulation configures random runs of the generated counter system.
type Simulation struct {
	// Steps bounds the run length.
	Steps int `yaml:"steps" env:"STEPS"`

	// Seed 0 seeds from the clock.
	Seed uint64 `yaml:"seed" env:"SEED"`
}

// Log selects the log format and minimum level.
type Log struct {
	JSON  bool   `yaml:"json" env:"JSON"`
	Level string `yaml:"level" env:"LEVEL"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		InstanceBound:  abstraction.DefaultInstanceBound,
		MaxConcurrency: compose.DefaultMaxConcurrency,
		WorkDir:        ".",
		Oracle: Oracle{
			Kind:      oracle.KindITS,
			Path:      oracle.DefaultITSPath,
			Timeout:   oracle.DefaultITSTimeout,
			Workers:   4,
			MaxStates: 100000,
			Attempts:  1,
			Backoff:   time.Second,
		},
		Jobs: Jobs{
			Store: StoreMemory,
			TTL:   time.Hour,
		},
		Simulation: Simulation{Steps: simulation.DefaultSteps},
		Log:        Log{Level: "info"},
	}
}

// Load returns the defaults overlaid with the YAML file at path, if path
// is not empty, and then with the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays YAML from r. Unknown keys are errors.
func (c *Config) decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.InstanceBound < 0 {
		errs = append(errs, fmt.Errorf("instance_bound must not be negative, got %d", c.InstanceBound))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency))
	}
	switch c.Oracle.Kind {
	case oracle.KindITS:
		if c.Oracle.Path == "" {
			errs = append(errs, errors.New("oracle.path is required for the its oracle"))
		}
	case oracle.KindExplicit:
	default:
		errs = append(errs, fmt.Errorf("unknown oracle.kind %q", c.Oracle.Kind))
	}
	if c.Oracle.Workers < 1 {
		errs = append(errs, fmt.Errorf("oracle.workers must be at least 1, got %d", c.Oracle.Workers))
	}
	if c.Oracle.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("oracle.timeout must be positive, got %s", c.Oracle.Timeout))
	}
	if c.Oracle.Attempts < 1 {
		errs = append(errs, fmt.Errorf("oracle.attempts must be at least 1, got %d", c.Oracle.Attempts))
	}
	if c.Oracle.Backoff < 0 {
		errs = append(errs, fmt.Errorf("oracle.backoff must not be negative, got %s", c.Oracle.Backoff))
	}
	switch c.Jobs.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.Jobs.DSN == "" {
			errs = append(errs, errors.New("jobs.dsn is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown jobs.store %q", c.Jobs.Store))
	}
	if c.Jobs.TTL < 0 {
		errs = append(errs, fmt.Errorf("jobs.ttl must not be negative, got %s", c.Jobs.TTL))
	}
	if c.Simulation.Steps < 0 {
		errs = append(errs, fmt.Errorf("simulation.steps must not be negative, got %d", c.Simulation.Steps))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Logging returns the logging options the settings describe.
func (c Config) Logging(out io.Writer) logging.Options {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Options{JSON: c.Log.JSON, Level: level, Output: out}
}
