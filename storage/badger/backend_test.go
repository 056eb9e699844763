package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/storage"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_FileInsteadOfDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	docs := NewDocumentRepository(backend)
	_, err = docs.GetDocument(context.Background(), core.AgentID("x"))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestSequence(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	seq, err := NewGenerationSequence(backend)
	require.NoError(t, err)
	defer seq.Close()

	prev := uint64(0)
	for i := 0; i < 250; i++ {
		n, err := seq.Next()
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestSequence_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	seq, err := NewGenerationSequence(backend)
	require.NoError(t, err)
	first, err := seq.Next()
	require.NoError(t, err)
	require.NoError(t, seq.Close())
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	seq, err = NewGenerationSequence(backend)
	require.NoError(t, err)
	defer seq.Close()

	second, err := seq.Next()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}
