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

// Measurement is a single reading inside a sample.
// For wifi scans Source is the BSSID and Name the SSID, for host metrics Source is the metric group.
type Measurement struct {
	Source string  `json:"source"`
	Name   string  `json:"name"`
	Level  float64 `json:"level"`
}

// Sample is one captured measurement set, owned by a user and a device.
type Sample struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	DeviceID     string        `json:"deviceId"`
	Measurements []Measurement `json:"measurements,omitempty"`
	Value        *float64      `json:"value,omitempty"`
	Valid        *bool         `json:"valid,omitempty"`
	TimestampMs  int64         `json:"timestamp_ms"`
}

// User is the backend user a device can be linked to
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

type Device struct {
	ID         string `json:"id"`
	Registered bool   `json:"registered"`
}

// Ack is the response body the backend sends on a response topic.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// LinkedUserResponse answers a linked user lookup. User is nil if the device is not linked.
type LinkedUserResponse struct {
	Ack
	User *User `json:"user,omitempty"`
}

// RegisterDeviceRequest is sent on devices/<id>/register
type RegisterDeviceRequest struct {
	DeviceID string `json:"deviceId"`
	Hostname string `json:"hostname,omitempty"`
}
