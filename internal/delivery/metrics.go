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

package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sliw_samples_captured_total",
			Help: "The total number of captured samples",
		},
	)
	samplesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sliw_samples_delivered_total",
			Help: "The total number of samples by where they ended up (remote, local, dropped)",
		},
		[]string{"target"},
	)
	queueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sliw_fallback_queue_length",
			Help: "Samples held in the local fallback queue",
		},
	)
)
