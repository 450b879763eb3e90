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

	"github.com/jazzpetri/popsafe/simulation"
)

func newSimulateCmd(a *app) *cobra.Command {
	var (
		isGAL bool
		first bool
		steps int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "simulate FILE",
		Short: "Print a random execution trace of a counter system",
		Long: `Simulate the counter system encoded from the protocol description in FILE,
or the GAL system in FILE with --gal. Each step fires one fireable
transition chosen at random, until none is fireable or the step bound is
reached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := a.loadSystem(cmd, args[0], isGAL)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("steps") {
				steps = a.cfg.Simulation.Steps
			}
			if !cmd.Flags().Changed("seed") {
				seed = a.cfg.Simulation.Seed
			}

			var picker simulation.Picker = simulation.NewRandomPicker(seed)
			if first {
				picker = simulation.FirstPicker{}
			}
			result, err := simulation.New(picker, steps).WithTelemetry(a.tel).Run(cmd.Context(), sys)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprint(w, result.Trace)
			if result.Terminal {
				fmt.Fprintf(w, "terminal after %d steps\n", result.Steps())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&isGAL, "gal", false, "FILE is a GAL system")
	cmd.Flags().BoolVar(&first, "first", false, "always fire the first fireable transition")
	cmd.Flags().IntVar(&steps, "steps", simulation.DefaultSteps, "step bound")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, 0 seeds from the clock")
	return cmd
}
