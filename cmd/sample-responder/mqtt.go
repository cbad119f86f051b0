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
	"crypto/tls"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

type mqttConfig struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
	QoS       byte
	TLSConfig *tls.Config
}

// publishFunc sends an answer
type publishFunc func(topic string, payload []byte) error

type responder struct {
	client  MQTT.Client
	handler *handler
	qos     byte
}

// setupMQTT connects to the broker and subscribes to every request topic.
// Subscriptions are renewed on every (re)connect.
func setupMQTT(cfg mqttConfig, h *handler) (*responder, error) {
	r := &responder{handler: h, qos: cfg.QoS}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLSConfig != nil {
		opts.SetTLSConfig(cfg.TLSConfig)
	}
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(r.onConnect)
	opts.SetConnectionLostHandler(func(c MQTT.Client, err error) {
		zap.S().Warnf("Connection lost, reconnecting (%v) (%s)", err, cfg.ClientID)
	})

	zap.S().Debugf("Broker configured (%s) (%s)", cfg.BrokerURL, cfg.ClientID)
	r.client = MQTT.NewClient(opts)
	if token := r.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect: %w", token.Error())
	}
	return r, nil
}

func (r *responder) onConnect(c MQTT.Client) {
	filters := make(map[string]byte, len(subscriptions))
	for _, topic := range subscriptions {
		filters[topic] = r.qos
	}
	if token := c.SubscribeMultiple(filters, r.onMessage); token.Wait() && token.Error() != nil {
		zap.S().Errorf("Failed to subscribe: %s", token.Error())
		return
	}
	zap.S().Infof("Connected to MQTT broker, subscribed to %v", subscriptions)
}

func (r *responder) onMessage(_ MQTT.Client, message MQTT.Message) {
	topic := message.Topic()
	payload := message.Payload()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.process(ctx, topic, payload, r.publish)
	}()
}

func (r *responder) process(ctx context.Context, topic string, payload []byte, publish publishFunc) {
	responseTopic, response, ok := r.handler.Handle(ctx, topic, payload)
	if !ok {
		return
	}
	if err := publish(responseTopic, response); err != nil {
		zap.S().Errorf("Failed to answer on %s: %s", responseTopic, err)
	}
}

func (r *responder) publish(topic string, payload []byte) error {
	token := r.client.Publish(topic, r.qos, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (r *responder) Close() {
	r.client.Disconnect(1000)
}

func checkConnected(c MQTT.Client) healthcheck.Check {
	return func() error {
		if c.IsConnected() {
			return nil
		}
		return fmt.Errorf("not connected")
	}
}
