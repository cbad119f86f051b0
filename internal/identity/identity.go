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

package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/sample-relay/internal/messaging"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// ErrLookup wraps every failed identity request
var ErrLookup = errors.New("identity lookup failed")

type Requester interface {
	Request(ctx context.Context, topic messaging.Topic, payload []byte) ([]byte, error)
}

// Service knows this device and resolves its linked user through the backend.
// The device is kept in a small JSON file so its id survives restarts.
type Service struct {
	path      string
	requester Requester
	hostname  string

	mu     sync.RWMutex
	device datamodel.Device
}

// Open loads the device file at path, creating a new device id if there is none
func Open(path string, requester Requester) (*Service, error) {
	s := &Service{path: path, requester: requester}
	if hostname, err := os.Hostname(); err == nil {
		s.hostname = hashHostname(hostname)
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.device = datamodel.Device{ID: uuid.NewString()}
		zap.S().Infof("No device file at %s, created device %s", path, s.device.ID)
		if err = s.persist(s.device); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("read device file: %w", err)
	default:
		if err = json.Unmarshal(raw, &s.device); err != nil {
			return nil, fmt.Errorf("decode device file %s: %w", path, err)
		}
		if s.device.ID == "" {
			return nil, fmt.Errorf("device file %s has no id", path)
		}
		zap.S().Infof("Loaded device %s (registered: %t)", s.device.ID, s.device.Registered)
	}
	return s, nil
}

func (s *Service) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device.ID
}

func (s *Service) IsDeviceRegistered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device.Registered
}

// RegisterDevice announces this device on devices/<id>/register and remembers the registration
func (s *Service) RegisterDevice(ctx context.Context) (datamodel.Device, error) {
	deviceID := s.DeviceID()
	payload, err := json.Marshal(datamodel.RegisterDeviceRequest{DeviceID: deviceID, Hostname: s.hostname})
	if err != nil {
		return datamodel.Device{}, fmt.Errorf("%w: %s", ErrLookup, err)
	}

	response, err := s.requester.Request(ctx, messaging.RegisterDeviceTopic(deviceID), payload)
	if err != nil {
		return datamodel.Device{}, fmt.Errorf("%w: register device %s: %w", ErrLookup, deviceID, err)
	}
	if err = datamodel.CheckAck(response); err != nil {
		return datamodel.Device{}, fmt.Errorf("%w: register device %s: %w", ErrLookup, deviceID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	registered := s.device
	registered.Registered = true
	if err = s.persist(registered); err != nil {
		return datamodel.Device{}, err
	}
	s.device = registered
	return registered, nil
}

// UserLinkedTo asks the backend which user deviceID is linked to. It returns nil if there is none.
func (s *Service) UserLinkedTo(ctx context.Context, deviceID string) (*datamodel.User, error) {
	payload, err := json.Marshal(datamodel.RegisterDeviceRequest{DeviceID: deviceID})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLookup, err)
	}

	raw, err := s.requester.Request(ctx, messaging.LinkedUserTopic(deviceID), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: linked user of %s: %w", ErrLookup, deviceID, err)
	}

	var response datamodel.LinkedUserResponse
	if err = json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("%w: linked user of %s: %w", ErrLookup, deviceID, err)
	}
	if !response.OK {
		return nil, fmt.Errorf("%w: linked user of %s: %s", ErrLookup, deviceID, response.Error)
	}
	return response.User, nil
}

// persist writes device atomically. Callers serialise writes.
func (s *Service) persist(device datamodel.Device) error {
	raw, err := json.MarshalIndent(device, "", "  ")
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create device directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write device file: %w", err)
	}
	if err = os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write device file: %w", err)
	}
	return nil
}

// hashHostname removes PII from the hostname before it leaves the device
func hashHostname(hostname string) string {
	sum := sha3.Sum512([]byte(hostname))
	return fmt.Sprintf("%x", sum)
}
