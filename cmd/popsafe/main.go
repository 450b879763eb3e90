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

// Command popsafe checks population protocols for safety.
//
//	popsafe generate protocol.txt -o protocol.gal
//	popsafe simulate protocol.txt --steps 50 --seed 7
//	popsafe explore protocol.txt --bound 3 --dot graph.dot
//	popsafe check protocol.txt --oracle explicit
//	popsafe status <job-id>
//	popsafe complete <job-id>
//
// Settings come from --config, then POPSAFE_* environment variables, then
// flags.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	err := newRootCmd(os.Stdout, os.Stderr).Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// exitError ends the process with a status code and no error message.
type exitError struct {
	code   int
	reason string
}

func (e *exitError) Error() string { return e.reason }
