package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBolt(t *testing.T) *Bolt {
	t.Helper()

	b, err := NewBolt(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBolt_EmptyLoad(t *testing.T) {
	b := openTestBolt(t)

	data, err := b.Load()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestBolt_StoreLoadClear(t *testing.T) {
	b := openTestBolt(t)

	require.NoError(t, b.Store([]byte(`{"time_offset":45}`)))

	data, err := b.Load()
	require.NoError(t, err)
	assert.Equal(t, `{"time_offset":45}`, string(data))

	require.NoError(t, b.Clear())

	data, err = b.Load()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestBolt_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	b, err := NewBolt(path)
	require.NoError(t, err)
	require.NoError(t, b.Store([]byte("persisted")))
	require.NoError(t, b.Close())

	reopened, err := NewBolt(path)
	require.NoError(t, err)
	defer reopened.Close()

	data, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}

func TestBolt_UnwritablePath(t *testing.T) {
	_, err := NewBolt(filepath.Join(t.TempDir(), "missing", "nested", "cache.db"))
	assert.Error(t, err)
}
