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

	"github.com/spf13/cobra"

	"github.com/jazzpetri/popsafe/analysis"
	"github.com/jazzpetri/popsafe/config"
	"github.com/jazzpetri/popsafe/oracle"
)

// requireDurable rejects job commands against the in-memory store, which
// does not outlive the process.
func (a *app) requireDurable() error {
	if a.cfg.Jobs.Store != config.StoreSQLite {
		return fmt.Errorf("job commands need jobs.store=%s with a jobs.dsn", config.StoreSQLite)
	}
	return nil
}

func newStatusCmd(a *app) *cobra.Command {
	var since int64
	cmd := &cobra.Command{
		Use:   "status JOB",
		Short: "Show the status and updates of a stored job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireDurable(); err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			updates, err := store.Updates(cmd.Context(), job.ID, since)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "job %s %s (created %s)\n", job.ID, job.Status, job.Created.Format("2006-01-02 15:04:05"))
			printUpdates(w, updates)
			if job.Result != nil && job.Result.Verdict != "" {
				fmt.Fprintf(w, "verdict: %s\n", job.Result.Verdict)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "only show updates after this sequence number")
	return cmd
}

func newCompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete JOB",
		Short: "Mark a stored job as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireDurable(); err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			svc := analysis.New(store, oracle.NewExplicit(0), analysis.Options{Logger: a.logger})
			defer svc.Close()
			if err := svc.Complete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s completed\n", args[0])
			return nil
		},
	}
}
