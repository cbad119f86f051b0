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

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"go.uber.org/zap"
)

// Step is what the device needs next before it can capture samples
type Step int

const (
	NeedsDeviceRegistration Step = iota
	NeedsLink
	NeedsConfiguration
	Ready
)

func (s Step) String() string {
	switch s {
	case NeedsDeviceRegistration:
		return "needs_device_registration"
	case NeedsLink:
		return "needs_link"
	case NeedsConfiguration:
		return "needs_configuration"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// ErrNoUserLinked is returned by Link when the backend knows no user for this device
var ErrNoUserLinked = errors.New("no user linked to this device")

// Identity is the device and user registry
type Identity interface {
	IsDeviceRegistered() bool
	DeviceID() string
	RegisterDevice(ctx context.Context) (datamodel.Device, error)
	UserLinkedTo(ctx context.Context, deviceID string) (*datamodel.User, error)
}

// Notifier receives one-way notifications for the user interface
type Notifier interface {
	NeedsDeviceRegistration()
	NeedsLink()
	NeedsConfiguration()
	Ready()
	DeviceRegistered(device datamodel.Device)
	UserLinked(user datamodel.User)
	SampleCaptured()
	Error(reason string)
}

// Trigger starts and stops periodic sample capture
type Trigger interface {
	Arm()
	Disarm()
}

// Controller owns the currently linked user and decides what the device needs next.
// It is the only writer of the linked user.
type Controller struct {
	identity Identity
	notifier Notifier
	trigger  Trigger

	mu   sync.Mutex
	user *datamodel.User
}

func NewController(identity Identity, notifier Notifier, trigger Trigger) *Controller {
	return &Controller{
		identity: identity,
		notifier: notifier,
		trigger:  trigger,
	}
}

// CurrentUser returns a copy of the linked user, nil if none
func (c *Controller) CurrentUser() *datamodel.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// SetCurrentUser replaces the linked user, e.g. with a user restored at startup
func (c *Controller) SetCurrentUser(user *datamodel.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if user == nil {
		c.user = nil
		return
	}
	u := *user
	c.user = &u
}

// decide is the side-effect free part of DecideStep
func (c *Controller) decide() Step {
	if !c.identity.IsDeviceRegistered() {
		return NeedsDeviceRegistration
	}
	user := c.CurrentUser()
	if user == nil {
		return NeedsLink
	}
	if !user.Configured {
		return NeedsConfiguration
	}
	return Ready
}

// DecideStep evaluates, in order: device registered, user linked, user configured.
// The UI is notified with the result; Ready also arms the capture trigger.
func (c *Controller) DecideStep() Step {
	step := c.decide()
	zap.S().Debugf("Next step: %s", step)

	switch step {
	case NeedsDeviceRegistration:
		c.notifier.NeedsDeviceRegistration()
	case NeedsLink:
		c.notifier.NeedsLink()
	case NeedsConfiguration:
		c.notifier.NeedsConfiguration()
	case Ready:
		c.trigger.Arm()
		c.notifier.Ready()
	}
	return step
}

func (c *Controller) RegisterDevice(ctx context.Context) (datamodel.Device, error) {
	device, err := c.identity.RegisterDevice(ctx)
	if err != nil {
		zap.S().Warnf("Device registration failed: %v", err)
		c.notifier.Error(fmt.Sprintf("device registration failed: %s", err))
		return datamodel.Device{}, err
	}
	zap.S().Infof("Device %s registered", device.ID)
	c.notifier.DeviceRegistered(device)
	return device, nil
}

// Link resolves the user this device is linked to and makes it the current user
func (c *Controller) Link(ctx context.Context) (datamodel.User, error) {
	deviceID := c.identity.DeviceID()
	user, err := c.identity.UserLinkedTo(ctx, deviceID)
	if err == nil && user == nil {
		err = ErrNoUserLinked
	}
	if err != nil {
		zap.S().Warnf("Linking device %s failed: %v", deviceID, err)
		c.notifier.Error(fmt.Sprintf("linking failed: %s", err))
		return datamodel.User{}, err
	}

	c.SetCurrentUser(user)
	zap.S().Infof("Device %s linked to user %s", deviceID, user.ID)
	c.notifier.UserLinked(*user)
	return *user, nil
}

// Unlink forgets the current user and stops capturing
func (c *Controller) Unlink() {
	c.SetCurrentUser(nil)
	c.trigger.Disarm()
	zap.S().Infof("Device unlinked")
}
