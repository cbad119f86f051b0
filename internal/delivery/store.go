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
	"fmt"
	"sync"

	"github.com/beeker1121/goque"
	"github.com/goccy/go-json"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

// FallbackStore keeps samples that could not be delivered remotely
type FallbackStore interface {
	Save(sample datamodel.Sample) error
}

// QueueStore is a FallbackStore on a leveldb backed goque queue.
// Samples are kept in their wire format. Nothing dequeues them, local persistence is terminal.
type QueueStore struct {
	mu sync.Mutex
	pq *goque.Queue
}

func OpenQueueStore(path string) (*QueueStore, error) {
	pq, err := goque.OpenQueue(path)
	if err != nil {
		zap.S().Errorf("Error opening queue at %s: %v", path, err)
		return nil, fmt.Errorf("open fallback queue: %w", err)
	}
	zap.S().Infof("Opened fallback queue at %s (%d samples stored)", path, pq.Length())
	queueLength.Set(float64(pq.Length()))
	return &QueueStore{pq: pq}, nil
}

func (s *QueueStore) Save(sample datamodel.Sample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSerialization, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pq == nil {
		return goque.ErrDBClosed
	}
	if _, err = s.pq.Enqueue(payload); err != nil {
		zap.S().Errorf("Error enqueuing sample %s: %v", sample.ID, err)
		return err
	}
	queueLength.Set(float64(s.pq.Length()))
	zap.S().Debugf("Queue length after insert: %d", s.pq.Length())
	return nil
}

func (s *QueueStore) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pq == nil {
		return 0
	}
	return s.pq.Length()
}

// Samples returns every stored sample, oldest first
func (s *QueueStore) Samples() ([]datamodel.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pq == nil {
		return nil, goque.ErrDBClosed
	}

	samples := make([]datamodel.Sample, 0, s.pq.Length())
	for offset := uint64(0); offset < s.pq.Length(); offset++ {
		item, err := s.pq.PeekByOffset(offset)
		if err != nil {
			return nil, err
		}
		var sample datamodel.Sample
		if err = json.Unmarshal(item.Value, &sample); err != nil {
			return nil, fmt.Errorf("decode stored sample %d: %w", item.ID, err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// Healthy reports an error if the queue is closed
func (s *QueueStore) Healthy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pq == nil {
		return goque.ErrDBClosed
	}
	return nil
}

func (s *QueueStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pq == nil {
		return nil
	}
	err := s.pq.Close()
	s.pq = nil
	if err != nil {
		zap.S().Errorf("Error closing queue: %v", err)
	}
	return err
}
