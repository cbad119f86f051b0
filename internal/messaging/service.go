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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultQoS            byte = 2
	DefaultRequestTimeout      = 5 * time.Second
)

type Config struct {
	// ClientID is the prefix of every client id, a random suffix is added per connection
	ClientID       string
	QoS            byte
	// RequestTimeout bounds a request from issuance until the response. Zero times out immediately,
	// a negative value selects DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Service runs publishes and request/response exchanges over a Dialer.
// Every operation owns a fresh connection, so concurrent operations never share state.
type Service struct {
	dialer Dialer
	cfg    Config

	mu sync.Mutex
	// outstanding maps each unreleased client to the abort of the operation that owns it
	outstanding map[*Client]context.CancelCauseFunc
	closed      bool
}

func NewService(dialer Dialer, cfg Config) *Service {
	if cfg.ClientID == "" {
		cfg.ClientID = "sliw"
	}
	if cfg.RequestTimeout < 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Service{
		dialer:      dialer,
		cfg:         cfg,
		outstanding: make(map[*Client]context.CancelCauseFunc),
	}
}

// Outstanding returns the number of connections that are not yet released
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

// Close aborts every running operation with ErrClosed and force-releases its connection.
// Operations started afterwards fail with ErrClosed.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	zap.S().Infof("Closing messaging service, releasing %d connections", len(s.outstanding))
	for c, abort := range s.outstanding {
		abort(ErrClosed)
		c.Release()
		delete(s.outstanding, c)
		openConnections.Dec()
	}
}

func (s *Service) newClient(abort context.CancelCauseFunc) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	id := fmt.Sprintf("%s-%s", s.cfg.ClientID, uuid.NewString())
	conn, err := s.dialer.Dial(id)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT client: %w", err)
	}
	c := NewClient(id, conn, s.cfg.QoS)
	s.outstanding[c] = abort
	openConnections.Inc()
	return c, nil
}

// release frees c and forgets it
func (s *Service) release(c *Client) {
	c.Release()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outstanding[c]; ok {
		delete(s.outstanding, c)
		openConnections.Dec()
	}
}

// cleanup runs a best-effort trailing sequence and releases c afterwards
func (s *Service) cleanup(c *Client, steps Sequence) {
	if err := steps.Run(); err != nil {
		zap.S().Debugf("Cleanup of %s failed: %v", c.ID(), err)
	}
	s.release(c)
}

// Publish delivers payload to topic on a dedicated connection: connect, publish, disconnect.
// Cancelling ctx abandons the result and releases the connection; in-flight network calls are not interrupted.
func (s *Service) Publish(ctx context.Context, topic string, payload []byte) (err error) {
	defer func() {
		publishesTotal.WithLabelValues(OutcomeOf(err).String()).Inc()
	}()

	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	c, err := s.newClient(abort)
	if err != nil {
		return err
	}

	zap.S().Debugf("Publishing to topic %s", topic)
	result := Sequence{
		c.Connect(),
		c.Publish(topic, payload),
		c.Disconnect(),
	}.Start()

	select {
	case err = <-result:
		s.release(c)
		return err
	case <-ctx.Done():
		s.release(c)
		return context.Cause(ctx)
	}
}
