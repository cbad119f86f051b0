package delivery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
)

func TestQueueStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples")
	store, err := OpenQueueStore(path)
	require.NoError(t, err)
	assert.NoError(t, store.Healthy())

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(datamodel.Sample{ID: id, TimestampMs: int64(i)}))
	}
	assert.Equal(t, uint64(3), store.Len())

	samples, err := store.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, "a", samples[0].ID)
	assert.Equal(t, "c", samples[2].ID)

	require.NoError(t, store.Close())
	assert.Error(t, store.Healthy())
	assert.Error(t, store.Save(datamodel.Sample{ID: "d"}))
	assert.Equal(t, uint64(0), store.Len())
	assert.NoError(t, store.Close())

	// reopening keeps what was stored
	reopened, err := OpenQueueStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(3), reopened.Len())
}
