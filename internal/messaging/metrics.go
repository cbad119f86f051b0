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

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sliw_messaging_requests_total",
			Help: "The total number of MQTT request/response exchanges by outcome",
		},
		[]string{"outcome"},
	)
	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sliw_messaging_request_duration_seconds",
			Help:    "Time from issuing a request until it resolved",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
	publishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sliw_messaging_publishes_total",
			Help: "The total number of one-shot publishes by outcome",
		},
		[]string{"outcome"},
	)
	openConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sliw_messaging_open_connections",
			Help: "MQTT connections owned by in-flight operations",
		},
	)
)
