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
	"time"

	"github.com/united-manufacturing-hub/sample-relay/internal"
	"github.com/united-manufacturing-hub/sample-relay/internal/delivery"
	"github.com/united-manufacturing-hub/sample-relay/internal/session"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

type sampler interface {
	Sample() ([]datamodel.Measurement, error)
}

// fallbackQueue is the read side of the local sample store
type fallbackQueue interface {
	Len() uint64
	Samples() ([]datamodel.Sample, error)
}

type agent struct {
	controller *session.Controller
	pipeline   *delivery.Pipeline
	identity   session.Identity
	trigger    *captureTrigger
	notifier   *logNotifier
	sampler    sampler
	fallback   fallbackQueue

	// outstanding reports the broker requests in flight, may be nil
	outstanding func() int

	retrySlot time.Duration
	retryMax  time.Duration
}

// takeSample reads the host and builds an unenriched sample
func (a *agent) takeSample() (datamodel.Sample, error) {
	measurements, err := a.sampler.Sample()
	if err != nil {
		return datamodel.Sample{}, err
	}
	if len(measurements) == 0 {
		return datamodel.Sample{}, errNoMeasurements
	}
	value := measurements[0].Level
	return datamodel.Sample{Measurements: measurements, Value: &value}, nil
}

// capture is run by the trigger. Delivery outlives a disarm, only Close of the messaging service aborts it.
func (a *agent) capture(ctx context.Context) {
	sample, err := a.takeSample()
	if err != nil {
		a.notifier.Error(err.Error())
		return
	}
	a.pipeline.CaptureAsync(context.WithoutCancel(ctx), sample, logResult)
}

func (a *agent) captureNow(ctx context.Context) (delivery.Result, error) {
	sample, err := a.takeSample()
	if err != nil {
		return delivery.Result{}, err
	}
	r := a.pipeline.Capture(ctx, sample)
	logResult(r)
	return r, nil
}

func logResult(r delivery.Result) {
	switch {
	case r.Remote:
		zap.S().Debugf("Sample %s delivered", r.Sample.ID)
	case r.Err != nil:
		zap.S().Warnf("Sample %s not delivered: %v", r.Sample.ID, r.Err)
	}
}

// converge drives the device towards Ready: it registers the device, links the user and waits
// for the user to be configured, backing off between failed attempts.
func (a *agent) converge(ctx context.Context) error {
	var retries int64
	for {
		var err error
		step := a.controller.DecideStep()
		switch step {
		case session.Ready:
			return nil
		case session.NeedsDeviceRegistration:
			_, err = a.controller.RegisterDevice(ctx)
		case session.NeedsLink, session.NeedsConfiguration:
			// the linked user is fetched again to see whether it was configured meanwhile
			var user datamodel.User
			user, err = a.controller.Link(ctx)
			if err == nil && !user.Configured {
				retries++
				if werr := a.wait(ctx, retries); werr != nil {
					return werr
				}
				continue
			}
		}

		if err == nil {
			retries = 0
			continue
		}
		retries++
		zap.S().Debugf("%s not resolved (attempt %d): %v", step, retries, err)
		if werr := a.wait(ctx, retries); werr != nil {
			return werr
		}
	}
}

func (a *agent) wait(ctx context.Context, retries int64) error {
	timer := time.NewTimer(internal.GetBackoffTime(retries, a.retrySlot, a.retryMax))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
