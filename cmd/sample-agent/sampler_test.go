package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostSampler(t *testing.T) {
	measurements, err := hostSampler{}.Sample()
	require.NoError(t, err)
	require.NotEmpty(t, measurements)
	for _, m := range measurements {
		assert.NotEmpty(t, m.Source)
		assert.NotEmpty(t, m.Name)
		assert.GreaterOrEqual(t, m.Level, 0.0)
	}
}
