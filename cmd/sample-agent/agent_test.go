package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/sample-relay/internal/delivery"
	"github.com/united-manufacturing-hub/sample-relay/internal/messaging"
	"github.com/united-manufacturing-hub/sample-relay/internal/session"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
	"github.com/united-manufacturing-hub/umh-utils/logger"
)

func TestMain(m *testing.M) {
	_ = logger.New("DEVELOPMENT")
	os.Exit(m.Run())
}

type fakeIdentity struct {
	mu          sync.Mutex
	registered  bool
	user        *datamodel.User
	lookupErr   error
	lookups     int
	configureAt int // the user becomes configured on this lookup
}

func (f *fakeIdentity) IsDeviceRegistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

func (f *fakeIdentity) DeviceID() string { return "device-1" }

func (f *fakeIdentity) RegisterDevice(context.Context) (datamodel.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = true
	return datamodel.Device{ID: "device-1", Registered: true}, nil
}

func (f *fakeIdentity) UserLinkedTo(context.Context, string) (*datamodel.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.user == nil {
		return nil, nil
	}
	u := *f.user
	if f.configureAt > 0 && f.lookups >= f.configureAt {
		u.Configured = true
	}
	return &u, nil
}

type fakeMessenger struct {
	requests  atomic.Int32
	publishes atomic.Int32
	err       error
}

func (f *fakeMessenger) Request(context.Context, messaging.Topic, []byte) ([]byte, error) {
	f.requests.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"ok":true}`), nil
}

func (f *fakeMessenger) Publish(context.Context, string, []byte) error {
	f.publishes.Add(1)
	return f.err
}

type fixedSampler struct {
	err   error
	empty bool
}

func (s fixedSampler) Sample() ([]datamodel.Measurement, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.empty {
		return []datamodel.Measurement{}, nil
	}
	return []datamodel.Measurement{{Source: "cpu", Name: "usage_percent", Level: 42}}, nil
}

type memStore struct {
	mu      sync.Mutex
	samples []datamodel.Sample
	saved   atomic.Int32
}

func (s *memStore) Save(sample datamodel.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	s.saved.Add(1)
	return nil
}

func (s *memStore) Len() uint64 {
	return uint64(s.saved.Load())
}

func (s *memStore) Samples() ([]datamodel.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]datamodel.Sample{}, s.samples...), nil
}

func newTestAgent(ident *fakeIdentity, messenger *fakeMessenger) (*agent, *memStore) {
	store := &memStore{}
	a := &agent{
		identity:    ident,
		notifier:    &logNotifier{},
		sampler:     fixedSampler{},
		fallback:    store,
		outstanding: func() int { return 0 },
		retrySlot:   time.Millisecond,
		retryMax:    5 * time.Millisecond,
	}
	a.trigger = newCaptureTrigger(time.Hour, a.capture)
	a.controller = session.NewController(ident, a.notifier, a.trigger)
	a.pipeline = delivery.NewPipeline(messenger, a.controller, ident, a.notifier, store)
	return a, store
}

func TestConvergeToReady(t *testing.T) {
	ident := &fakeIdentity{user: &datamodel.User{ID: "u-1"}, configureAt: 3}
	a, _ := newTestAgent(ident, &fakeMessenger{})
	defer a.trigger.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.converge(ctx))

	assert.True(t, ident.IsDeviceRegistered())
	assert.Equal(t, 3, ident.lookups)
	assert.True(t, a.controller.CurrentUser().Configured)
	assert.True(t, a.trigger.Armed())
	assert.Equal(t, "ready", a.notifier.Status().Last)
}

func TestConvergeStopsOnCancel(t *testing.T) {
	ident := &fakeIdentity{registered: true, lookupErr: errors.New("no response within timeout")}
	a, _ := newTestAgent(ident, &fakeMessenger{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := a.converge(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, a.trigger.Armed())
	assert.Greater(t, ident.lookups, 1, "failed links are retried")
	assert.NotEmpty(t, a.notifier.Status().LastError)
}

func TestCaptureFallsBackLocally(t *testing.T) {
	ident := &fakeIdentity{registered: true, user: &datamodel.User{ID: "u-1", Configured: true}}
	messenger := &fakeMessenger{err: errors.New("network down")}
	a, store := newTestAgent(ident, messenger)
	_, err := a.controller.Link(context.Background())
	require.NoError(t, err)

	a.capture(context.Background())
	a.pipeline.Wait()

	assert.Equal(t, int32(1), messenger.requests.Load())
	assert.Equal(t, int32(1), store.saved.Load())
	assert.Equal(t, uint64(1), a.notifier.Status().Captured)

	last, ok := a.pipeline.Last()
	require.True(t, ok)
	assert.Equal(t, "u-1", last.UserID)
	assert.Equal(t, "device-1", last.DeviceID)
}

func TestCaptureSamplerFailure(t *testing.T) {
	a, store := newTestAgent(&fakeIdentity{registered: true}, &fakeMessenger{})
	a.sampler = fixedSampler{err: errNoMeasurements}

	a.capture(context.Background())
	a.pipeline.Wait()

	assert.Equal(t, int32(0), store.saved.Load())
	assert.Equal(t, uint64(0), a.notifier.Status().Captured)
	assert.Equal(t, errNoMeasurements.Error(), a.notifier.Status().LastError)
}

func TestCaptureEmptyMeasurements(t *testing.T) {
	a, store := newTestAgent(&fakeIdentity{registered: true}, &fakeMessenger{})
	a.sampler = fixedSampler{empty: true}

	_, err := a.captureNow(context.Background())
	assert.ErrorIs(t, err, errNoMeasurements)

	a.capture(context.Background())
	a.pipeline.Wait()
	assert.Equal(t, int32(0), store.saved.Load())
	assert.Equal(t, uint64(0), a.notifier.Status().Captured)
}
