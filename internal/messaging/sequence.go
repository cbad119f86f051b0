// Copyright 2023 UMH Systems GmbH
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

package messaging

import "fmt"

// Sequence is an ordered list of actions executed as one unit.
// Step N+1 only starts after step N returned nil; the first error ends the run.
// A sequence never adds cleanup on its own, trailing steps like disconnect have to be listed.
type Sequence []Action

// Run executes the steps on the calling goroutine.
func (s Sequence) Run() error {
	for i, action := range s {
		if err := action.Do(); err != nil {
			return fmt.Errorf("step %d/%d (%s): %w", i+1, len(s), action.Name, err)
		}
	}
	return nil
}

// Start runs the sequence on its own goroutine.
// A caller that stops listening leaves the steps running to completion.
func (s Sequence) Start() <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- s.Run()
	}()
	return result
}
