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
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jazzpetri/popsafe/analysis"
	"github.com/jazzpetri/popsafe/config"
	"github.com/jazzpetri/popsafe/event"
	"github.com/jazzpetri/popsafe/jobs"
	"github.com/jazzpetri/popsafe/oracle"
)

// Exit codes of the check command.
const (
	exitUnsafe       = 2
	exitInconclusive = 3
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		kind    string
		workDir string
	)
	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Decide whether any unsafe configuration is reachable",
		Long: `Run the full analysis of the protocol description in FILE: encode it,
write the counter system to the work directory and ask the reachability
oracle about every unsafe configuration. Progress is printed as it is
recorded on the job.

Exit status is 0 for safe, 2 for unsafe and 3 for inconclusive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readFile(cmd, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("oracle") {
				a.cfg.Oracle.Kind = kind
			}
			if cmd.Flags().Changed("work-dir") {
				a.cfg.WorkDir = workDir
			}
			orc, err := newOracle(a.cfg.Oracle, a.logger)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			bus := event.NewBus(a.logger)
			defer bus.Close()
			var current string
			if _, err := bus.Subscribe(event.All, func(e event.Event) {
				if e.JobID != current {
					current = e.JobID
					fmt.Fprintf(w, "job %s\n", e.JobID)
				}
				printUpdates(w, []jobs.Update{e.Update})
			}); err != nil {
				return err
			}

			svc := analysis.New(store, orc, analysis.Options{
				InstanceBound:  a.cfg.InstanceBound,
				MaxConcurrency: a.cfg.MaxConcurrency,
				Deduplicate:    a.cfg.Deduplicate,
				WorkDir:        a.cfg.WorkDir,
				Workers:        a.cfg.Oracle.Workers,
				TTL:            a.cfg.Jobs.TTL,
				Events:         bus,
				Logger:         a.logger,
				Telemetry:      a.tel,
			})
			defer svc.Close()

			start := time.Now()
			job, err := svc.Run(cmd.Context(), text)
			if err != nil {
				return err
			}
			if job.Result == nil || job.Result.Verdict == "" {
				return fmt.Errorf("job %s %s", job.ID, job.Status)
			}
			fmt.Fprintf(w, "%s in %s\n", job.Result.Verdict, time.Since(start).Round(time.Millisecond))

			switch analysis.Verdict(job.Result.Verdict) {
			case analysis.VerdictUnsafe:
				return &exitError{code: exitUnsafe, reason: "protocol is unsafe"}
			case analysis.VerdictInconclusive:
				return &exitError{code: exitInconclusive, reason: "verdict is inconclusive"}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "oracle", "", "reachability oracle: its or explicit (overrides oracle.kind)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "directory for generated GAL files (overrides work_dir)")
	return cmd
}

// newOracle builds the configured oracle, retrying unavailable answers
// when more than one attempt is configured.
func newOracle(cfg config.Oracle, logger *slog.Logger) (oracle.Oracle, error) {
	var orc oracle.Oracle
	switch cfg.Kind {
	case oracle.KindITS:
		orc = oracle.NewITS(cfg.Path, cfg.Timeout)
	case oracle.KindExplicit:
		orc = oracle.NewExplicit(cfg.MaxStates)
	default:
		return nil, fmt.Errorf("unknown oracle %q", cfg.Kind)
	}
	if cfg.Attempts <= 1 {
		return orc, nil
	}
	r := oracle.NewRetry(orc, cfg.Attempts, cfg.Backoff)
	r.Logger = logger
	return r, nil
}
