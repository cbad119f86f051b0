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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/sample-relay/internal/messaging"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

var (
	// ErrSerialization marks a sample that cannot be encoded. It is never retried nor stored.
	ErrSerialization = errors.New("sample serialization failed")
	// ErrNoSample is returned by ValidateLast before the first capture
	ErrNoSample = errors.New("no sample captured yet")
)

type Requester interface {
	Request(ctx context.Context, topic messaging.Topic, payload []byte) ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// UserSource returns the currently linked user, nil if none
type UserSource interface {
	CurrentUser() *datamodel.User
}

type DeviceSource interface {
	DeviceID() string
}

// CaptureNotifier is told about every capture, whatever happens to its delivery
type CaptureNotifier interface {
	SampleCaptured()
}

// Messenger is what the pipeline needs from the messaging service
type Messenger interface {
	Requester
	Publisher
}

type Pipeline struct {
	messenger Messenger
	users     UserSource
	devices   DeviceSource
	notifier  CaptureNotifier
	store     FallbackStore

	marshal func(v any) ([]byte, error)
	now     func() time.Time

	mu   sync.Mutex
	last *datamodel.Sample
	// lastLocal is set once the last sample ended up in the fallback store
	lastLocal bool

	wg sync.WaitGroup
}

func NewPipeline(messenger Messenger, users UserSource, devices DeviceSource, notifier CaptureNotifier, store FallbackStore) *Pipeline {
	return &Pipeline{
		messenger: messenger,
		users:     users,
		devices:   devices,
		notifier:  notifier,
		store:     store,
		marshal:   json.Marshal,
		now:       time.Now,
	}
}

// Result is where a sample ended up.
// Remote is true if the backend acknowledged it, Local if it was written to the fallback store.
// Err holds the delivery error.
type Result struct {
	Sample datamodel.Sample
	Remote bool
	Local  bool
	Err    error
}

// Capture enriches sample with id, user and device and delivers it to the backend.
// Failed or timed out deliveries are saved to the fallback store.
func (p *Pipeline) Capture(ctx context.Context, sample datamodel.Sample) Result {
	sample.ID = uuid.NewString()
	if user := p.users.CurrentUser(); user != nil {
		sample.UserID = user.ID
	}
	sample.DeviceID = p.devices.DeviceID()
	if sample.TimestampMs == 0 {
		sample.TimestampMs = p.now().UnixMilli()
	}

	samplesCaptured.Inc()
	p.mu.Lock()
	last := sample
	p.last = &last
	p.lastLocal = false
	p.mu.Unlock()
	p.notifier.SampleCaptured()

	zap.S().Debugf("Captured sample %s for user %s on device %s", sample.ID, sample.UserID, sample.DeviceID)
	r := p.deliver(ctx, sample, true, func(payload []byte) error {
		response, err := p.messenger.Request(ctx, messaging.SampleSaveTopic(sample.ID), payload)
		if err != nil {
			return err
		}
		return datamodel.CheckAck(response)
	})

	if r.Local {
		p.mu.Lock()
		if p.last != nil && p.last.ID == sample.ID {
			p.lastLocal = true
		}
		p.mu.Unlock()
	}
	return r
}

// CaptureAsync runs Capture on its own goroutine. done may be nil.
func (p *Pipeline) CaptureAsync(ctx context.Context, sample datamodel.Sample, done func(Result)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		r := p.Capture(ctx, sample)
		if done != nil {
			done(r)
		}
	}()
}

// Wait blocks until every CaptureAsync returned
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Last returns a copy of the most recently captured sample
func (p *Pipeline) Last() (datamodel.Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return datamodel.Sample{}, false
	}
	return *p.last, true
}

// ValidateLast publishes the user's verdict on the last captured sample to samples/<id>/validate.
// A failed publish falls back to the store only if the sample itself is stored there, the
// validated copy then supersedes the earlier record. A sample the backend holds or may still
// receive is never written locally, the error is returned instead.
func (p *Pipeline) ValidateLast(ctx context.Context, valid bool) Result {
	p.mu.Lock()
	if p.last == nil {
		p.mu.Unlock()
		return Result{Err: ErrNoSample}
	}
	p.last.Valid = datamodel.BoolPtr(valid)
	sample := *p.last
	local := p.lastLocal
	p.mu.Unlock()

	zap.S().Debugf("Validating sample %s: %t", sample.ID, valid)
	return p.deliver(ctx, sample, local, func(payload []byte) error {
		return p.messenger.Publish(ctx, messaging.SampleValidateTopic(sample.ID).String(), payload)
	})
}

// deliver encodes sample, hands it to send and, if fallback is set, saves it to the store on failure
func (p *Pipeline) deliver(ctx context.Context, sample datamodel.Sample, fallback bool, send func(payload []byte) error) Result {
	payload, err := p.marshal(sample)
	if err != nil {
		zap.S().Errorf("Failed to serialize sample %s: %v", sample.ID, err)
		samplesDelivered.WithLabelValues("dropped").Inc()
		return Result{Sample: sample, Err: fmt.Errorf("%w: %s", ErrSerialization, err)}
	}

	err = send(payload)
	if err == nil {
		samplesDelivered.WithLabelValues("remote").Inc()
		return Result{Sample: sample, Remote: true}
	}

	if !fallback {
		zap.S().Warnf("Delivery of sample %s failed (%s): %v", sample.ID, messaging.OutcomeOf(err), err)
		samplesDelivered.WithLabelValues("failed").Inc()
		return Result{Sample: sample, Err: err}
	}

	zap.S().Warnf("Delivery of sample %s failed (%s), saving locally: %v", sample.ID, messaging.OutcomeOf(err), err)
	if storeErr := p.store.Save(sample); storeErr != nil {
		zap.S().Errorf("Failed to save sample %s locally: %v", sample.ID, storeErr)
		samplesDelivered.WithLabelValues("dropped").Inc()
		return Result{Sample: sample, Err: errors.Join(err, storeErr)}
	}
	samplesDelivered.WithLabelValues("local").Inc()
	return Result{Sample: sample, Local: true, Err: err}
}
