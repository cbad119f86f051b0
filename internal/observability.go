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

package internal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/fgtrace"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"
)

func InitLogging() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") //nolint:errcheck
	_ = logger.New(logLevel)
}

func InitPrometheus() {
	metricsPath := "/metrics"
	metricsPort, _ := env.GetAsInt("METRICS_PORT", false, 2112) //nolint:errcheck
	zap.S().Debugf("Setting up metrics %s :%d", metricsPath, metricsPort)

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(":"+strconv.Itoa(metricsPort), mux)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

// InitHealthCheck serves liveness and readiness on :8086.
// readiness is registered as readiness check, liveness as liveness check; nil entries are skipped.
func InitHealthCheck(readiness map[string]healthcheck.Check, liveness map[string]healthcheck.Check) healthcheck.Handler {
	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000000))
	for name, check := range readiness {
		if check != nil {
			health.AddReadinessCheck(name, check)
		}
	}
	for name, check := range liveness {
		if check != nil {
			health.AddLivenessCheck(name, check)
		}
	}
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe("0.0.0.0:8086", health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
	return health
}

// InitDebugTrace serves fgtrace on :1337 if DEBUG_ENABLE_FGTRACE is true
func InitDebugTrace() {
	enabled, err := env.GetAsBool("DEBUG_ENABLE_FGTRACE", false, false)
	if err != nil {
		zap.S().Errorf("DEBUG_ENABLE_FGTRACE is not a valid boolean: %s", err)
		return
	}
	if !enabled {
		zap.S().Debugf("Debug Tracing is disabled. Set DEBUG_ENABLE_FGTRACE to true to enable.")
		return
	}

	zap.S().Warnf("fgtrace is enabled. This might hurt performance !. Set DEBUG_ENABLE_FGTRACE to false to disable.")
	mux := http.NewServeMux()
	mux.Handle("/debug/fgtrace", fgtrace.Config{})
	go func() {
		server := &http.Server{
			Addr:              ":1337",
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil {
			zap.S().Errorf("Failed to start fgtrace: %s", err)
		}
	}()
}
