package messaging

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowBroker struct {
	url      string
	received chan struct{} // closed once CONNECT arrived
	hungUp   chan struct{} // closed once the client hung up
}

// newSlowBroker accepts one MQTT connection and answers its CONNECT after delay.
func newSlowBroker(t *testing.T, delay time.Duration) *slowBroker {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	b := &slowBroker{
		url:      "tcp://" + ln.Addr().String(),
		received: make(chan struct{}),
		hungUp:   make(chan struct{}),
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer close(b.hungUp)
		defer conn.Close()

		buf := make([]byte, 1024)
		if _, err = conn.Read(buf); err != nil {
			return
		}
		close(b.received)
		time.Sleep(delay)
		// CONNACK: no session present, connection accepted
		if _, err = conn.Write([]byte{0x20, 0x02, 0x00, 0x00}); err != nil {
			return
		}
		for {
			if _, err = conn.Read(buf); err != nil {
				return
			}
		}
	}()
	return b
}

func (b *slowBroker) assertHungUp(t *testing.T) {
	t.Helper()
	select {
	case <-b.hungUp:
	case <-time.After(timeout):
		t.Fatal("broker connection still open after release")
	}
}

func TestPahoReleaseDuringConnect(t *testing.T) {
	broker := newSlowBroker(t, 200*time.Millisecond)
	conn, err := NewPahoDialer(PahoOptions{BrokerURL: broker.url}).Dial("test-release")
	require.NoError(t, err)

	tok, err := conn.Connect()
	require.NoError(t, err)
	conn.Release()

	assert.ErrorIs(t, await(tok), ErrReleased)
	broker.assertHungUp(t)
}

func TestPahoRequestTimeoutDuringConnect(t *testing.T) {
	broker := newSlowBroker(t, 200*time.Millisecond)
	s := NewService(NewPahoDialer(PahoOptions{BrokerURL: broker.url}), Config{
		ClientID:       "test",
		QoS:            DefaultQoS,
		RequestTimeout: 50 * time.Millisecond,
	})

	_, err := s.Request(context.Background(), Topic("foo"), nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, s.Outstanding())
	broker.assertHungUp(t)
}

func TestPahoCloseDuringConnect(t *testing.T) {
	broker := newSlowBroker(t, 200*time.Millisecond)
	s := NewService(NewPahoDialer(PahoOptions{BrokerURL: broker.url}), Config{
		ClientID:       "test",
		QoS:            DefaultQoS,
		RequestTimeout: time.Minute,
	})

	result := s.RequestAsync(context.Background(), Topic("foo"), nil)
	select {
	case <-broker.received:
	case <-time.After(timeout):
		t.Fatal("CONNECT never reached the broker")
	}
	s.Close()

	r := <-result
	assert.ErrorIs(t, r.Err, ErrClosed)
	broker.assertHungUp(t)
}
