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

import "strings"

const (
	requestSuffix  = "/request"
	responseSuffix = "/response"
)

// Topic is the base name of a request/response channel.
// The physical subtopics are always derived from it, never stored separately.
type Topic string

func (t Topic) Request() string {
	return string(t) + requestSuffix
}

func (t Topic) Response() string {
	return string(t) + responseSuffix
}

func (t Topic) String() string {
	return string(t)
}

// SampleSaveTopic is where a captured sample is handed to the backend
func SampleSaveTopic(sampleID string) Topic {
	return Topic("samples/" + sampleID + "/save")
}

// SampleValidateTopic receives the user's verdict on an already delivered sample
func SampleValidateTopic(sampleID string) Topic {
	return Topic("samples/" + sampleID + "/validate")
}

// LinkedUserTopic resolves the user a device is linked to
func LinkedUserTopic(deviceID string) Topic {
	return Topic("users/" + deviceID + "/linked")
}

// RegisterDeviceTopic registers a device with the backend
func RegisterDeviceTopic(deviceID string) Topic {
	return Topic("devices/" + deviceID + "/register")
}

// ParseRequestTopic splits an inbound request topic into its base topic.
// ok is false if topic is not a request subtopic.
func ParseRequestTopic(topic string) (base Topic, ok bool) {
	if !strings.HasSuffix(topic, requestSuffix) {
		return "", false
	}
	trimmed := strings.TrimSuffix(topic, requestSuffix)
	if trimmed == "" {
		return "", false
	}
	return Topic(trimmed), true
}
