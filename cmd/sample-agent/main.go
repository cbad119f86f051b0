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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/united-manufacturing-hub/sample-relay/internal"
	"github.com/united-manufacturing-hub/sample-relay/internal/delivery"
	"github.com/united-manufacturing-hub/sample-relay/internal/identity"
	"github.com/united-manufacturing-hub/sample-relay/internal/messaging"
	"github.com/united-manufacturing-hub/sample-relay/internal/session"
	"go.uber.org/zap"
)

var buildtime string

func main() {
	internal.InitLogging()
	zap.S().Infof("This is sample-agent build date: %s", buildtime)
	internal.InitDebugTrace()
	internal.InitPrometheus()

	cfg, err := loadConfig()
	if err != nil {
		zap.S().Fatalf("Failed to load configuration: %s", err)
	}

	pahoOpts := messaging.PahoOptions{
		BrokerURL: cfg.BrokerURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.EnableTLS {
		pahoOpts.TLSConfig, err = messaging.NewTLSConfig(cfg.CertDir, cfg.InsecureSkipVerify)
		if err != nil {
			zap.S().Fatalf("Failed to load TLS configuration: %s", err)
		}
	}
	messenger := messaging.NewService(messaging.NewPahoDialer(pahoOpts), messaging.Config{
		ClientID:       cfg.ClientID,
		QoS:            cfg.QoS,
		RequestTimeout: cfg.RequestTimeout,
	})

	store, err := delivery.OpenQueueStore(cfg.QueuePath)
	if err != nil {
		zap.S().Fatalf("Failed to open fallback queue: %s", err)
	}

	ident, err := identity.Open(cfg.DeviceFile, messenger)
	if err != nil {
		zap.S().Fatalf("Failed to load device: %s", err)
	}

	a := &agent{
		identity:    ident,
		notifier:    &logNotifier{},
		sampler:     hostSampler{},
		fallback:    store,
		outstanding: messenger.Outstanding,
		retrySlot:   time.Second,
		retryMax:    5 * time.Minute,
	}
	a.trigger = newCaptureTrigger(cfg.SampleInterval, a.capture)
	a.controller = session.NewController(ident, a.notifier, a.trigger)
	a.pipeline = delivery.NewPipeline(messenger, a.controller, ident, a.notifier, store)

	internal.InitHealthCheck(
		map[string]healthcheck.Check{"fallback-queue": store.Healthy},
		nil,
	)

	var accounts gin.Accounts
	if cfg.APIUser != "" {
		accounts = gin.Accounts{cfg.APIUser: cfg.APIPassword}
	}
	gin.SetMode(gin.ReleaseMode)
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           newRouter(a, accounts),
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorf("Error starting control API: %s", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	gs := internal.NewGracefulShutdown(func() error {
		cancel()
		a.trigger.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = apiServer.Shutdown(shutdownCtx)

		// pending deliveries fail with ErrClosed and end up in the fallback queue
		messenger.Close()
		a.pipeline.Wait()
		return store.Close()
	})

	go func() {
		if err := a.converge(ctx); err != nil {
			zap.S().Infof("Stopped waiting for the device to become ready: %s", err)
		}
	}()

	gs.Wait()
}
