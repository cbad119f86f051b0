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
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// disconnectQuiesce is the time paho gets to finish in-flight work on Disconnect
const disconnectQuiesce = 250

type PahoOptions struct {
	BrokerURL      string
	Username       string
	Password       string
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
}

// PahoDialer creates paho MQTT clients with a clean session and without auto reconnect.
// Reconnecting is the caller's business: every operation opens its own connection.
type PahoDialer struct {
	opts PahoOptions
}

func NewPahoDialer(opts PahoOptions) *PahoDialer {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &PahoDialer{opts: opts}
}

func (d *PahoDialer) Dial(clientID string) (Conn, error) {
	if d.opts.BrokerURL == "" {
		return nil, fmt.Errorf("no broker url configured")
	}
	c := &pahoConn{}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(d.opts.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	if d.opts.Username != "" {
		opts.SetUsername(d.opts.Username)
	}
	if d.opts.Password != "" {
		opts.SetPassword(d.opts.Password)
	}
	if d.opts.TLSConfig != nil {
		opts.SetTLSConfig(d.opts.TLSConfig)
	}
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(d.opts.ConnectTimeout)
	opts.SetOrderMatters(false)
	// subscriptions are made without a callback, so every message goes through here
	opts.SetDefaultPublishHandler(c.onMessage)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)
	return c, nil
}

type pahoConn struct {
	client   MQTT.Client
	handler  atomic.Pointer[MessageHandler]
	lost     atomic.Pointer[func(error)]
	released atomic.Bool
}

func (c *pahoConn) onMessage(_ MQTT.Client, message MQTT.Message) {
	h := c.handler.Load()
	if h == nil {
		return
	}
	(*h)(message.Topic(), message.Payload())
}

func (c *pahoConn) onConnectionLost(_ MQTT.Client, err error) {
	h := c.lost.Load()
	if h == nil {
		return
	}
	(*h)(err)
}

func (c *pahoConn) SetMessageHandler(handler MessageHandler) {
	c.handler.Store(&handler)
}

func (c *pahoConn) SetConnectionLostHandler(handler func(err error)) {
	c.lost.Store(&handler)
}

// Connect resolves with ErrReleased if the handle was released while the CONNACK was pending.
// The late connection is torn down right away.
func (c *pahoConn) Connect() (Token, error) {
	if c.released.Load() {
		return nil, ErrReleased
	}
	connecting := c.client.Connect()
	tok := newCompletionToken()
	go func() {
		<-connecting.Done()
		err := connecting.Error()
		if c.released.Load() {
			if err == nil {
				c.client.Disconnect(0)
			}
			err = ErrReleased
		}
		tok.complete(err)
	}()
	return tok, nil
}

// Disconnect wraps paho's blocking Disconnect into a token
func (c *pahoConn) Disconnect() (Token, error) {
	if c.released.Load() {
		return nil, ErrReleased
	}
	tok := newCompletionToken()
	go func() {
		c.client.Disconnect(disconnectQuiesce)
		tok.complete(nil)
	}()
	return tok, nil
}

func (c *pahoConn) Subscribe(topic string, qos byte) (Token, error) {
	if c.released.Load() {
		return nil, ErrReleased
	}
	return c.client.Subscribe(topic, qos, nil), nil
}

func (c *pahoConn) Unsubscribe(topic string) (Token, error) {
	if c.released.Load() {
		return nil, ErrReleased
	}
	return c.client.Unsubscribe(topic), nil
}

func (c *pahoConn) Publish(topic string, qos byte, payload []byte) (Token, error) {
	if c.released.Load() {
		return nil, ErrReleased
	}
	return c.client.Publish(topic, qos, false, payload), nil
}

func (c *pahoConn) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	c.handler.Store(nil)
	c.lost.Store(nil)
	// a connect still in flight is handled when its token resolves
	if c.client.IsConnectionOpen() {
		c.client.Disconnect(0)
	}
}

// NewTLSConfig loads the CA and client certificate from certDir (ca.crt, tls.crt, tls.key)
func NewTLSConfig(certDir string, skipVerify bool) (*tls.Config, error) {
	// Import trusted certificates from CAfile.pem.
	// Alternatively, manually add CA certificates to
	// default openssl CA bundle.
	certpool := x509.NewCertPool()
	pemCerts, err := os.ReadFile(certDir + "/ca.crt")
	if err == nil {
		ok := certpool.AppendCertsFromPEM(pemCerts)
		if !ok {
			zap.S().Errorf("failed to parse root certificate")
		}
	} else {
		zap.S().Errorf("error reading CA certificate: %s", err)
	}

	// Import client certificate/key pair
	cert, err := tls.LoadX509KeyPair(certDir+"/tls.crt", certDir+"/tls.key")
	if err != nil {
		return nil, fmt.Errorf("error reading client certificate: %w", err)
	}

	cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("error parsing client certificate: %w", err)
	}

	/* #nosec G402 -- Remote verification is optional for self-hosted brokers */
	return &tls.Config{
		RootCAs:            certpool,
		InsecureSkipVerify: skipVerify,
		Certificates:       []tls.Certificate{cert},
	}, nil
}
