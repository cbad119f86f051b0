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

import "sync"

// Token is the completion handle of one asynchronous broker call.
// MQTT.Token from paho satisfies it.
type Token interface {
	Done() <-chan struct{}
	Error() error
}

// MessageHandler is called for every inbound message, on a goroutine owned by the transport.
// It must not block.
type MessageHandler func(topic string, payload []byte)

// Conn is a single broker connection.
// All calls are asynchronous: an error return means the call could not be submitted,
// a token error means the broker (or the network) rejected it.
type Conn interface {
	Connect() (Token, error)
	Disconnect() (Token, error)
	Subscribe(topic string, qos byte) (Token, error)
	Unsubscribe(topic string) (Token, error)
	Publish(topic string, qos byte, payload []byte) (Token, error)

	SetMessageHandler(handler MessageHandler)
	SetConnectionLostHandler(handler func(err error))

	// Release frees every resource held by the connection, connected or not.
	// It is safe to call more than once.
	Release()
}

// Dialer creates a fresh, unconnected Conn
type Dialer interface {
	Dial(clientID string) (Conn, error)
}

// completionToken is a Token that is resolved by hand
type completionToken struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newCompletionToken() *completionToken {
	return &completionToken{done: make(chan struct{})}
}

func (t *completionToken) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *completionToken) Done() <-chan struct{} {
	return t.done
}

func (t *completionToken) Error() error {
	<-t.done
	return t.err
}

// await blocks until tok resolved and returns its error
func await(tok Token) error {
	if tok == nil {
		return nil
	}
	<-tok.Done()
	return tok.Error()
}
