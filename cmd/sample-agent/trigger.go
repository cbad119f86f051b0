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
	"sync"
	"time"

	"go.uber.org/zap"
)

// captureTrigger calls capture every interval while it is armed
type captureTrigger struct {
	interval time.Duration
	capture  func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newCaptureTrigger(interval time.Duration, capture func(ctx context.Context)) *captureTrigger {
	return &captureTrigger{interval: interval, capture: capture}
}

func (t *captureTrigger) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	zap.S().Infof("Capture trigger armed, sampling every %s", t.interval)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.capture(ctx)
			}
		}
	}()
}

func (t *captureTrigger) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil
	zap.S().Infof("Capture trigger disarmed")
}

func (t *captureTrigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Stop disarms and waits for a running capture to return
func (t *captureTrigger) Stop() {
	t.Disarm()
	t.wg.Wait()
}
