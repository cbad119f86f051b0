package datamodel

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func TestCheckAck(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
		wantErr bool
	}{
		{name: "positive", payload: []byte(`{"ok":true}`)},
		{name: "negative", payload: []byte(`{"ok":false}`), wantErr: true},
		{name: "negative with reason", payload: []byte(`{"ok":false,"error":"duplicate"}`), wantErr: true},
		{name: "empty", payload: nil, wantErr: true},
		{name: "not json", payload: []byte(`ok`), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckAck(tc.payload)
			if tc.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAck))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSampleWireFormat(t *testing.T) {
	s := Sample{
		ID:          "a",
		UserID:      "u",
		DeviceID:    "d",
		Value:       Float64Ptr(42),
		TimestampMs: 1700000000000,
	}
	b, err := json.Marshal(s)
	assert.NoError(t, err)

	var fields map[string]interface{}
	assert.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, "a", fields["id"])
	assert.Equal(t, "u", fields["userId"])
	assert.Equal(t, "d", fields["deviceId"])
	assert.Equal(t, float64(42), fields["value"])
	assert.Equal(t, float64(1700000000000), fields["timestamp_ms"])
	_, hasValid := fields["valid"]
	assert.False(t, hasValid)
}
