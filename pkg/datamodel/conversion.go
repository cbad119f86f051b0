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

package datamodel

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrInvalidAck is returned when a response payload is not a well-formed acknowledgement
var ErrInvalidAck = errors.New("invalid acknowledgement")

// ParseAck decodes a backend acknowledgement.
// An empty payload is not an acknowledgement.
func ParseAck(payload []byte) (Ack, error) {
	var ack Ack
	if len(payload) == 0 {
		return ack, fmt.Errorf("%w: empty payload", ErrInvalidAck)
	}
	if err := json.Unmarshal(payload, &ack); err != nil {
		return ack, fmt.Errorf("%w: %s", ErrInvalidAck, err)
	}
	return ack, nil
}

// CheckAck returns nil if payload is a positive acknowledgement
func CheckAck(payload []byte) error {
	ack, err := ParseAck(payload)
	if err != nil {
		return err
	}
	if !ack.OK {
		if ack.Error != "" {
			return fmt.Errorf("%w: rejected by backend: %s", ErrInvalidAck, ack.Error)
		}
		return fmt.Errorf("%w: rejected by backend", ErrInvalidAck)
	}
	return nil
}

func Float64Ptr(v float64) *float64 {
	return &v
}

func BoolPtr(v bool) *bool {
	return &v
}
