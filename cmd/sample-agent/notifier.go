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

package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

var notifications = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sliw_agent_notifications_total",
		Help: "Notifications shown to the user, by kind",
	},
	[]string{"kind"},
)

// logNotifier is the headless user interface: every notification is logged and the last one is kept for the status endpoint
type logNotifier struct {
	mu        sync.Mutex
	last      string
	lastError string
	captured  uint64
}

func (n *logNotifier) record(kind string) {
	notifications.WithLabelValues(kind).Inc()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = kind
}

func (n *logNotifier) NeedsDeviceRegistration() {
	zap.S().Infof("This device is not registered yet")
	n.record("needs_device_registration")
}

func (n *logNotifier) NeedsLink() {
	zap.S().Infof("This device is not linked to a user, link it in the backend")
	n.record("needs_link")
}

func (n *logNotifier) NeedsConfiguration() {
	zap.S().Infof("The linked user is not configured yet")
	n.record("needs_configuration")
}

func (n *logNotifier) Ready() {
	zap.S().Infof("Ready, capturing samples")
	n.record("ready")
}

func (n *logNotifier) DeviceRegistered(device datamodel.Device) {
	zap.S().Infof("Device %s registered", device.ID)
	n.record("device_registered")
}

func (n *logNotifier) UserLinked(user datamodel.User) {
	zap.S().Infof("Linked to user %s (%s)", user.Name, user.ID)
	n.record("user_linked")
}

func (n *logNotifier) SampleCaptured() {
	zap.S().Debugf("Sample captured")
	notifications.WithLabelValues("sample_captured").Inc()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.captured++
}

func (n *logNotifier) Error(reason string) {
	zap.S().Errorf("Error: %s", reason)
	n.record("error")
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastError = reason
}

type notifierStatus struct {
	Last      string `json:"last"`
	LastError string `json:"lastError,omitempty"`
	Captured  uint64 `json:"captured"`
}

func (n *logNotifier) Status() notifierStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return notifierStatus{Last: n.last, LastError: n.lastError, Captured: n.captured}
}
