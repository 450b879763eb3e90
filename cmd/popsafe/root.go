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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jazzpetri/popsafe/abstraction"
	"github.com/jazzpetri/popsafe/compose"
	"github.com/jazzpetri/popsafe/config"
	"github.com/jazzpetri/popsafe/gal"
	"github.com/jazzpetri/popsafe/jobs"
	"github.com/jazzpetri/popsafe/logging"
	"github.com/jazzpetri/popsafe/protocol"
	"github.com/jazzpetri/popsafe/telemetry"
)

// app is the state shared by all commands.
type app struct {
	configPath  string
	metricsFile string
	bound       int
	concurrency int

	cfg    config.Config
	logger *slog.Logger
	reg    *prometheus.Registry
	tel    *telemetry.Telemetry
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "popsafe",
		Short:         "Check population protocols for reachable unsafe configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, stderr)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.flushMetrics()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.IntVar(&a.bound, "bound", 0, "maximum number of active agents (overrides instance_bound)")
	flags.IntVar(&a.concurrency, "max-concurrency", 0, "agents per synchronized action (overrides max_concurrency)")
	flags.Bool("log-json", false, "log in JSON")
	flags.String("log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newGenerateCmd(a),
		newSimulateCmd(a),
		newExploreCmd(a),
		newCheckCmd(a),
		newStatusCmd(a),
		newCompleteCmd(a),
	)
	return root
}

// setup loads the configuration, applies flag overrides and configures
// logging and telemetry.
func (a *app) setup(cmd *cobra.Command, stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("bound") {
		cfg.InstanceBound = a.bound
	}
	if flags.Changed("max-concurrency") {
		cfg.MaxConcurrency = a.concurrency
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.Configure(cfg.Logging(stderr))
	a.reg = prometheus.NewRegistry()
	a.tel = telemetry.New(a.reg, nil)
	return nil
}

func (a *app) flushMetrics() error {
	if a.metricsFile == "" || a.reg == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, a.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// readFile returns the contents of path, or of stdin for "-".
func readFile(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// encodeFile parses, composes and encodes the protocol description at
// path with the configured bounds.
func (a *app) encodeFile(cmd *cobra.Command, path string) (*abstraction.Encoding, *compose.Result, error) {
	text, err := readFile(cmd, path)
	if err != nil {
		return nil, nil, err
	}
	d, err := protocol.Parse(text)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	check := protocol.Check(d)
	a.logger.Debug("parsed protocol", "path", path, "analysis", check.Analysis)
	for _, issue := range check.Warnings {
		a.logger.Warn(issue.Message, "type", issue.Type, "component", issue.Component)
	}
	composed := compose.Compose(d, compose.Options{MaxConcurrency: a.cfg.MaxConcurrency, Deduplicate: a.cfg.Deduplicate})
	for _, u := range composed.Unmatched {
		a.logger.Warn("unmatched synchronization", "detail", u.String())
	}
	enc, err := abstraction.Encode(d, composed.Transitions, abstraction.Options{InstanceBound: a.cfg.InstanceBound})
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("encoded counter system",
		"global_transitions", len(composed.Transitions),
		"guarded_transitions", enc.GuardedTransitions(),
		"unsafe_configurations", len(enc.Unsafe))
	return enc, composed, nil
}

// loadSystem reads a counter system: GAL text when isGAL is set, otherwise
// a protocol description that is encoded first.
func (a *app) loadSystem(cmd *cobra.Command, path string, isGAL bool) (*gal.System, *abstraction.Encoding, error) {
	if !isGAL {
		enc, _, err := a.encodeFile(cmd, path)
		if err != nil {
			return nil, nil, err
		}
		return enc.System, enc, nil
	}
	text, err := readFile(cmd, path)
	if err != nil {
		return nil, nil, err
	}
	sys, err := gal.Parse(text)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return sys, nil, nil
}

// openStore opens the configured job store.
func (a *app) openStore() (jobs.Store, error) {
	if a.cfg.Jobs.Store == config.StoreSQLite {
		store, err := jobs.OpenSQLite(a.cfg.Jobs.DSN, nil)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return jobs.NewMemoryStore(nil, a.cfg.Jobs.MaxUpdates), nil
}

func printUpdates(w io.Writer, updates []jobs.Update) {
	for _, u := range updates {
		fmt.Fprintf(w, "%4d %-7s %s\n", u.Seq, u.Kind, u.Message)
	}
}
