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
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Response is the single terminal result of a request
type Response struct {
	Payload []byte
	Err     error
}

// pendingRequest is one in-flight exchange. Whichever of response, failure,
// timeout or cancellation calls resolve first wins; later calls are no-ops.
type pendingRequest struct {
	topic    Topic
	issuedAt time.Time
	result   chan Response
	done     chan struct{}
	once     sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

func newPendingRequest(topic Topic) *pendingRequest {
	return &pendingRequest{
		topic:    topic,
		issuedAt: time.Now(),
		result:   make(chan Response, 1),
		done:     make(chan struct{}),
	}
}

func (p *pendingRequest) startTimer(d time.Duration, onTimeout func()) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	p.timer = time.AfterFunc(d, onTimeout)
}

// resolve reports whether this call decided the outcome
func (p *pendingRequest) resolve(r Response) (won bool) {
	p.once.Do(func() {
		won = true

		p.timerMu.Lock()
		if p.timer != nil {
			p.timer.Stop()
		}
		p.timerMu.Unlock()

		requestsTotal.WithLabelValues(OutcomeOf(r.Err).String()).Inc()
		requestDuration.Observe(time.Since(p.issuedAt).Seconds())

		p.result <- r
		close(p.done)
	})
	return won
}

// Request publishes payload to topic/request and waits for the first message on topic/response.
// It blocks the calling goroutine only.
func (s *Service) Request(ctx context.Context, topic Topic, payload []byte) ([]byte, error) {
	r := <-s.RequestAsync(ctx, topic, payload)
	return r.Payload, r.Err
}

// RequestAsync starts a request and returns a channel that receives exactly one Response.
func (s *Service) RequestAsync(ctx context.Context, topic Topic, payload []byte) <-chan Response {
	p := newPendingRequest(topic)
	zap.S().Debugf("Requesting to topic %s", topic)

	ctx, abort := context.WithCancelCause(ctx)
	c, err := s.newClient(abort)
	if err != nil {
		abort(nil)
		p.resolve(Response{Err: err})
		return p.result
	}

	responseTopic := topic.Response()
	c.OnMessage(func(msgTopic string, msgPayload []byte) {
		if msgTopic != responseTopic {
			return
		}
		body := make([]byte, len(msgPayload))
		copy(body, msgPayload)
		if p.resolve(Response{Payload: body}) {
			zap.S().Debugf("Response received on %s", responseTopic)
			go s.cleanup(c, Sequence{
				c.Unsubscribe(responseTopic),
				c.Disconnect(),
			})
		}
	})

	p.startTimer(s.cfg.RequestTimeout, func() {
		if p.resolve(Response{Err: fmt.Errorf("request on %s: %w", topic, ErrTimeout)}) {
			zap.S().Debugf("Request on %s timed out after %s", topic, s.cfg.RequestTimeout)
			s.release(c)
		}
	})

	go func() {
		select {
		case <-ctx.Done():
			if p.resolve(Response{Err: context.Cause(ctx)}) {
				s.release(c)
			}
		case <-p.done:
			abort(nil)
		}
	}()

	go func() {
		err := Sequence{
			c.Connect(),
			c.Subscribe(responseTopic),
			c.Publish(topic.Request(), payload),
		}.Run()
		if err == nil {
			return
		}
		if p.resolve(Response{Err: fmt.Errorf("request on %s: %w", topic, err)}) {
			s.cleanup(c, Sequence{c.Disconnect()})
		}
	}()

	return p.result
}
