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

import "errors"

var (
	// ErrTimeout is returned when no response arrived before the request deadline.
	ErrTimeout = errors.New("no response within timeout")
	// ErrClosed is returned by a Service after Close.
	ErrClosed = errors.New("messaging service closed")
	// ErrInvalidState is returned when connect or disconnect is requested while a transition is in flight.
	ErrInvalidState = errors.New("invalid connection state")
	// ErrReleased is returned by a Conn whose resources were already released.
	ErrReleased = errors.New("connection released")
)

// Outcome is the terminal result of an orchestrated operation
type Outcome int

const (
	Completed Outcome = iota
	Failed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// OutcomeOf classifies the error returned by an action, a sequence or a request.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Completed
	case errors.Is(err, ErrTimeout):
		return TimedOut
	default:
		return Failed
	}
}
