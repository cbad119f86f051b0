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
	"sync/atomic"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Action is one broker operation. Do blocks the calling goroutine until the operation
// resolved and returns nil on success.
type Action struct {
	Name string
	Do   func() error
}

// Start runs the action on its own goroutine.
// The returned channel receives exactly one value and never blocks the sender.
func (a Action) Start() <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- a.Do()
	}()
	return result
}

// Client wraps a Conn with its connection state.
// Every method returns an Action; nothing touches the network until the action runs.
type Client struct {
	id    string
	conn  Conn
	qos   byte
	mu    sync.Mutex // guards check-and-transition on state
	state *fsm.FSM

	released atomic.Bool
}

func NewClient(id string, conn Conn, qos byte) *Client {
	c := &Client{
		id:    id,
		conn:  conn,
		qos:   qos,
		state: newConnectionFSM(id),
	}
	conn.SetConnectionLostHandler(func(err error) {
		zap.S().Warnf("Connection lost (%s): %v", id, err)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.fire(eventConnectionLost)
	})
	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Current())
}

// OnMessage installs the inbound message handler.
func (c *Client) OnMessage(handler MessageHandler) {
	c.conn.SetMessageHandler(handler)
}

// Release force-frees the underlying connection regardless of its state.
func (c *Client) Release() {
	c.released.Store(true)
	c.conn.Release()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.SetState(string(StateDisconnected))
}

// fire must be called with c.mu held
func (c *Client) fire(event string) {
	if !c.state.Can(event) {
		return
	}
	if err := c.state.Event(context.Background(), event); err != nil {
		zap.S().Debugf("MQTT client %s: transition %s: %v", c.id, event, err)
	}
}

func (c *Client) Connect() Action {
	return Action{Name: "connect", Do: func() error {
		zap.S().Debugf("Connecting (%s)", c.id)

		c.mu.Lock()
		switch c.State() {
		case StateConnected:
			c.mu.Unlock()
			zap.S().Debugf("Already connected (%s)", c.id)
			return nil
		case StateDisconnected:
			c.fire(eventConnect)
			c.mu.Unlock()
		default:
			state := c.State()
			c.mu.Unlock()
			return fmt.Errorf("connect failed: %w: %s", ErrInvalidState, state)
		}

		tok, err := c.conn.Connect()
		if err == nil {
			err = await(tok)
		}
		if err == nil && c.released.Load() {
			err = ErrReleased
		}
		if err != nil {
			zap.S().Debugf("Connection error (%s): %v", c.id, err)
			c.mu.Lock()
			c.fire(eventConnectFailed)
			c.mu.Unlock()
			c.conn.Release()
			return fmt.Errorf("connect failed: %w", err)
		}

		c.mu.Lock()
		c.fire(eventConnectDone)
		c.mu.Unlock()
		zap.S().Debugf("Connected successfully (%s)", c.id)
		return nil
	}}
}

func (c *Client) Disconnect() Action {
	return Action{Name: "disconnect", Do: func() error {
		zap.S().Debugf("Disconnecting (%s)", c.id)

		c.mu.Lock()
		switch c.State() {
		case StateDisconnected:
			c.mu.Unlock()
			zap.S().Debugf("Already disconnected (%s)", c.id)
			return nil
		case StateConnected:
			c.fire(eventDisconnect)
			c.mu.Unlock()
		default:
			state := c.State()
			c.mu.Unlock()
			return fmt.Errorf("disconnect failed: %w: %s", ErrInvalidState, state)
		}

		tok, err := c.conn.Disconnect()
		if err == nil {
			err = await(tok)
		}
		if err != nil {
			zap.S().Debugf("Disconnection error (%s): %v", c.id, err)
			c.conn.Release()
			c.mu.Lock()
			c.fire(eventDisconnectFailed)
			c.mu.Unlock()
			return fmt.Errorf("disconnect failed: %w", err)
		}

		c.mu.Lock()
		c.fire(eventDisconnectDone)
		c.mu.Unlock()
		c.conn.Release()
		zap.S().Debugf("Disconnected successfully (%s)", c.id)
		return nil
	}}
}

func (c *Client) Subscribe(topic string) Action {
	return Action{Name: "subscribe " + topic, Do: func() error {
		zap.S().Debugf("Subscribing to topic %s (%s)", topic, c.id)
		tok, err := c.conn.Subscribe(topic, c.qos)
		if err == nil {
			err = await(tok)
		}
		if err != nil {
			zap.S().Debugf("Subscription error on %s (%s): %v", topic, c.id, err)
			return fmt.Errorf("subscribe to %s failed: %w", topic, err)
		}
		return nil
	}}
}

func (c *Client) Unsubscribe(topic string) Action {
	return Action{Name: "unsubscribe " + topic, Do: func() error {
		zap.S().Debugf("Unsubscribing from topic %s (%s)", topic, c.id)
		tok, err := c.conn.Unsubscribe(topic)
		if err == nil {
			err = await(tok)
		}
		if err != nil {
			zap.S().Debugf("Unsubscription error on %s (%s): %v", topic, c.id, err)
			return fmt.Errorf("unsubscribe from %s failed: %w", topic, err)
		}
		return nil
	}}
}

func (c *Client) Publish(topic string, payload []byte) Action {
	return Action{Name: "publish " + topic, Do: func() error {
		zap.S().Debugf("Publishing to topic %s (%s)", topic, c.id)
		tok, err := c.conn.Publish(topic, c.qos, payload)
		if err == nil {
			err = await(tok)
		}
		if err != nil {
			zap.S().Debugf("Publish error on %s (%s): %v", topic, c.id, err)
			return fmt.Errorf("publish to %s failed: %w", topic, err)
		}
		return nil
	}}
}
