package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/sample-relay/internal/messaging"
	"github.com/united-manufacturing-hub/umh-utils/logger"
)

func TestMain(m *testing.M) {
	_ = logger.New("DEVELOPMENT")
	os.Exit(m.Run())
}

type fakeRequester struct {
	topics  []messaging.Topic
	respond func(topic messaging.Topic) ([]byte, error)
}

func (f *fakeRequester) Request(_ context.Context, topic messaging.Topic, _ []byte) ([]byte, error) {
	f.topics = append(f.topics, topic)
	return f.respond(topic)
}

func TestOpenCreatesAndReloadsDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "device.json")

	s, err := Open(path, &fakeRequester{})
	require.NoError(t, err)
	id := s.DeviceID()
	assert.NotEmpty(t, id)
	assert.False(t, s.IsDeviceRegistered())

	again, err := Open(path, &fakeRequester{})
	require.NoError(t, err)
	assert.Equal(t, id, again.DeviceID())
}

func TestOpenRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o600))
	_, err := Open(broken, &fakeRequester{})
	assert.Error(t, err)

	noID := filepath.Join(dir, "noid.json")
	require.NoError(t, os.WriteFile(noID, []byte(`{"registered":true}`), 0o600))
	_, err = Open(noID, &fakeRequester{})
	assert.Error(t, err)
}

func TestRegisterDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	req := &fakeRequester{respond: func(messaging.Topic) ([]byte, error) { return []byte(`{"ok":true}`), nil }}
	s, err := Open(path, req)
	require.NoError(t, err)

	device, err := s.RegisterDevice(context.Background())
	require.NoError(t, err)
	assert.True(t, device.Registered)
	assert.Equal(t, []messaging.Topic{messaging.RegisterDeviceTopic(s.DeviceID())}, req.topics)

	reloaded, err := Open(path, req)
	require.NoError(t, err)
	assert.True(t, reloaded.IsDeviceRegistered())
}

func TestRegisterDeviceFailure(t *testing.T) {
	testCases := []struct {
		name    string
		respond func(messaging.Topic) ([]byte, error)
	}{
		{name: "timeout", respond: func(messaging.Topic) ([]byte, error) { return nil, messaging.ErrTimeout }},
		{name: "rejected", respond: func(messaging.Topic) ([]byte, error) { return []byte(`{"ok":false,"error":"unknown"}`), nil }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(filepath.Join(t.TempDir(), "device.json"), &fakeRequester{respond: tc.respond})
			require.NoError(t, err)

			_, err = s.RegisterDevice(context.Background())
			assert.ErrorIs(t, err, ErrLookup)
			assert.False(t, s.IsDeviceRegistered())
		})
	}
}

func TestUserLinkedTo(t *testing.T) {
	testCases := []struct {
		name     string
		response []byte
		err      error
		wantUser string
		wantErr  bool
	}{
		{name: "linked", response: []byte(`{"ok":true,"user":{"id":"u-1","name":"Ada","configured":true}}`), wantUser: "u-1"},
		{name: "not linked", response: []byte(`{"ok":true}`)},
		{name: "rejected", response: []byte(`{"ok":false,"error":"unknown device"}`), wantErr: true},
		{name: "garbage", response: []byte(`<html>`), wantErr: true},
		{name: "transport error", err: errors.New("network down"), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := &fakeRequester{respond: func(messaging.Topic) ([]byte, error) { return tc.response, tc.err }}
			s, err := Open(filepath.Join(t.TempDir(), "device.json"), req)
			require.NoError(t, err)

			user, err := s.UserLinkedTo(context.Background(), "d-1")
			assert.Equal(t, []messaging.Topic{messaging.LinkedUserTopic("d-1")}, req.topics)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrLookup)
				return
			}
			require.NoError(t, err)
			if tc.wantUser == "" {
				assert.Nil(t, user)
				return
			}
			require.NotNil(t, user)
			assert.Equal(t, tc.wantUser, user.ID)
			assert.True(t, user.Configured)
		})
	}
}

func TestHashHostname(t *testing.T) {
	h := hashHostname("factory-pi-01")
	assert.Len(t, h, 128)
	assert.NotContains(t, h, "factory")
	assert.Equal(t, h, hashHostname("factory-pi-01"))
}
