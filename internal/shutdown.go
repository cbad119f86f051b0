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
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownTimeout bounds the onShutdown callback. The process exits with 1 if it is exceeded.
const ShutdownTimeout = 30 * time.Second

// exitFunc terminates the process once shutdown tasks finished
var exitFunc = os.Exit

type GracefulShutdownHandler interface {
	Shutdown()          // Triggers the shutdown as if SIGTERM was received.
	ShuttingDown() bool // Quickly checks if a shutdown is in progress.
	Wait()              // Blocks until shutdown tasks are complete.
}

type gracefulShutdown struct {
	quit         chan os.Signal
	shuttingDown chan struct{}
	once         sync.Once
	wg           sync.WaitGroup
}

// NewGracefulShutdown waits for SIGINT/SIGTERM (or Shutdown) and runs onShutdown (if not nil) before exiting.
func NewGracefulShutdown(onShutdown func() error) GracefulShutdownHandler {
	gs := &gracefulShutdown{
		quit:         make(chan os.Signal, 1),
		shuttingDown: make(chan struct{}),
	}
	gs.wg.Add(1)
	signal.Notify(gs.quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer gs.wg.Done()
		sig := <-gs.quit
		gs.once.Do(func() { close(gs.shuttingDown) })
		zap.S().Infow("Received signal, shutting down", "signal", sig.String())

		code := 0
		if onShutdown != nil {
			zap.S().Infow("Waiting for shutdown tasks to complete", "timeout", ShutdownTimeout)
			done := make(chan error, 1)
			go func() { done <- onShutdown() }()

			select {
			case err := <-done:
				if err != nil {
					zap.S().Errorw("Error during shutdown", "error", err)
					code = 1
				}
			case <-time.After(ShutdownTimeout):
				zap.S().Errorw("Shutdown tasks did not complete in time", "timeout", ShutdownTimeout)
				code = 1
			}
		}
		zap.S().Info("Shutdown tasks completed. Ready to exit.")
		_ = zap.S().Sync()
		exitFunc(code)
	}()

	return gs
}

func (gs *gracefulShutdown) ShuttingDown() bool {
	select {
	case <-gs.shuttingDown:
		return true
	default:
		return false
	}
}

func (gs *gracefulShutdown) Shutdown() {
	if gs.ShuttingDown() {
		return
	}
	select {
	case gs.quit <- syscall.SIGTERM:
	default:
		// a signal is already queued
	}
}

func (gs *gracefulShutdown) Wait() {
	gs.wg.Wait()
}
