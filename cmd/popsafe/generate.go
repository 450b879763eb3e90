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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jazzpetri/popsafe/oracle"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		out        string
		unsafeOnly bool
	)
	cmd := &cobra.Command{
		Use:   "generate FILE",
		Short: "Encode a protocol description as a GAL counter system",
		Long: `Parse the protocol description in FILE ("-" for stdin), compose agent and
environment, and print the counter system in GAL. With --unsafe, print the
unsafe configurations and their reachability formulas instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, _, err := a.encodeFile(cmd, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if unsafeOnly {
				for _, u := range enc.Unsafe {
					fmt.Fprintf(w, "%s via %s\n    %s\n", u.Weights, strings.Join(u.Transitions, ", "),
						oracle.Formula(enc.System, u.Marking()))
				}
				return nil
			}

			if out == "" {
				_, err = enc.System.WriteTo(w)
				return err
			}
			if err := os.WriteFile(out, []byte(enc.System.String()), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(w, "wrote %s: %d counters, %d transitions, %d unsafe configurations\n",
				out, len(enc.System.Variables), enc.GuardedTransitions(), len(enc.Unsafe))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the GAL file here instead of stdout")
	cmd.Flags().BoolVar(&unsafeOnly, "unsafe", false, "print unsafe configurations instead of the system")
	return cmd
}
