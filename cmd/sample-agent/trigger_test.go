package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCaptureTrigger(t *testing.T) {
	var captures atomic.Int32
	trigger := newCaptureTrigger(5*time.Millisecond, func(context.Context) { captures.Add(1) })

	assert.False(t, trigger.Armed())
	trigger.Arm()
	trigger.Arm()
	assert.True(t, trigger.Armed())
	assert.Eventually(t, func() bool { return captures.Load() >= 3 }, time.Second, time.Millisecond)

	trigger.Stop()
	assert.False(t, trigger.Armed())
	stopped := captures.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, captures.Load(), "no capture after disarm")

	// disarming twice and re-arming work
	trigger.Disarm()
	trigger.Arm()
	assert.Eventually(t, func() bool { return captures.Load() > stopped }, time.Second, time.Millisecond)
	trigger.Stop()
}
