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

package abstraction_test

import (
	"fmt"

	"github.com/jazzpetri/popsafe/abstraction"
	"github.com/jazzpetri/popsafe/compose"
	"github.com/jazzpetri/popsafe/protocol"
)

func ExampleEncode() {
	d, err := protocol.Parse(`idle: 1, active: 0
go
idle: go
idle,sync,go,go,active
idle
idle
s0, s1
sync
s0: sync
s0
s0,sync,go,s1
`)
	if err != nil {
		panic(err)
	}

	composed := compose.Compose(d, compose.DefaultOptions())
	for _, g := range composed.Transitions {
		fmt.Println(g)
	}

	enc, err := abstraction.Encode(d, composed.Transitions, abstraction.Options{InstanceBound: 3})
	if err != nil {
		panic(err)
	}
	t1, _ := enc.System.Transition("t1")
	fmt.Printf("t1 [%s] { %s }\n", t1.Guard, t1.Actions)
	for _, u := range enc.Unsafe {
		fmt.Println("unsafe:", u, "via", u.Transitions)
	}
	// Output:
	// ([idle],[go],s0,sync,[go],[active],s1)
	// t1 [s0 >= 1 && idle >= 1] { s0 -= 1; idle -= 1; s1 += 1; active += 1; }
	// unsafe: {s0:1, idle:1} via [t1]
}
