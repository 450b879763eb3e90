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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jazzpetri/popsafe/abstraction"
	"github.com/jazzpetri/popsafe/gal"
	"github.com/jazzpetri/popsafe/protocol"
	"github.com/jazzpetri/popsafe/verification"
)

func newExploreCmd(a *app) *cobra.Command {
	var (
		isGAL     bool
		maxStates int
		dotFile   string
		mmdFile   string
		terminal  string
	)
	cmd := &cobra.Command{
		Use:   "explore FILE",
		Short: "Explore the state space of a counter system explicitly",
		Long: `Build the reachable state space of the counter system from FILE and report
its size, boundedness and deadlock freedom. For protocol descriptions each
unsafe configuration is also searched for, with a shortest witness when
it is reachable.

--terminal takes a GAL guard such as "n == 0"; stuck markings satisfying it
are intended end states rather than deadlocks.

--dot and --mermaid write the explored graph with unsafe configurations
highlighted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, enc, err := a.loadSystem(cmd, args[0], isGAL)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-states") {
				maxStates = a.cfg.Oracle.MaxStates
			}

			v := verification.NewVerifier(sys, maxStates)
			if terminal != "" {
				g, err := gal.ParseGuard(terminal)
				if err != nil {
					return fmt.Errorf("--terminal: %w", err)
				}
				v.WithTerminal(g.Holds)
			}
			cert, err := v.GenerateCertificate(cmd.Context())
			if err != nil && !errors.Is(err, verification.ErrStateLimit) {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "system %s: %d states, %d edges", cert.System, cert.StateCount, cert.EdgeCount)
			if !cert.Bounded {
				fmt.Fprintf(w, " (stopped at %d states)", maxStates)
			}
			fmt.Fprintln(w)
			for _, p := range cert.Properties {
				mark := "ok"
				if !p.Satisfied {
					mark = "FAIL"
				}
				fmt.Fprintf(w, "  %-4s %s: %s\n", mark, p.Property, p.Message)
			}

			if dotFile != "" || mmdFile != "" {
				if err := writeGraphs(cmd, v, sys.Name, unsafeMatcher(enc), dotFile, mmdFile); err != nil {
					return err
				}
			}

			if enc == nil {
				return nil
			}
			for _, u := range enc.Unsafe {
				res, err := v.Reach(cmd.Context(), verification.Exactly(u.Marking(), protocol.ReservedName))
				switch {
				case errors.Is(err, verification.ErrStateLimit):
					fmt.Fprintf(w, "unsafe %s: unknown, state limit reached\n", u.Weights)
				case err != nil:
					return err
				case res.Satisfied:
					fmt.Fprintf(w, "unsafe %s: REACHABLE via %s\n", u.Weights, strings.Join(res.Witness, " "))
				default:
					fmt.Fprintf(w, "unsafe %s: unreachable\n", u.Weights)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&isGAL, "gal", false, "FILE is a GAL system")
	cmd.Flags().IntVar(&maxStates, "max-states", verification.DefaultMaxStates, "stop exploring after this many states")
	cmd.Flags().StringVar(&terminal, "terminal", "", "guard marking intended end states, not deadlocks")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the state graph in Graphviz DOT to this file")
	cmd.Flags().StringVar(&mmdFile, "mermaid", "", "write the state graph as a Mermaid flowchart to this file")
	return cmd
}

// unsafeMatcher matches markings equal to any unsafe configuration of enc.
// It returns nil when there are none.
func unsafeMatcher(enc *abstraction.Encoding) func(gal.Marking) bool {
	if enc == nil || len(enc.Unsafe) == 0 {
		return nil
	}
	preds := make([]func(gal.Marking) bool, len(enc.Unsafe))
	for i, u := range enc.Unsafe {
		preds[i] = verification.Exactly(u.Marking(), protocol.ReservedName)
	}
	return func(m gal.Marking) bool {
		for _, p := range preds {
			if p(m) {
				return true
			}
		}
		return false
	}
}

func writeGraphs(cmd *cobra.Command, v *verification.Verifier, name string, highlight func(gal.Marking) bool, dotFile, mmdFile string) error {
	ss, err := v.BuildStateSpace(cmd.Context())
	if err != nil && !errors.Is(err, verification.ErrStateLimit) {
		return err
	}
	write := func(path string, render func(io.Writer) error) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := render(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	}
	if dotFile != "" {
		if err := write(dotFile, func(w io.Writer) error { return ss.WriteDOT(w, name, highlight) }); err != nil {
			return err
		}
	}
	if mmdFile != "" {
		if err := write(mmdFile, func(w io.Writer) error { return ss.WriteMermaid(w, highlight) }); err != nil {
			return err
		}
	}
	return nil
}
