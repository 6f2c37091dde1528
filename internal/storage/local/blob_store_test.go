// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlab/catalog-crawler/internal/storage"
	"github.com/storefrontlab/catalog-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		tempDir := t.TempDir()
		store, err := local.New(local.Config{BaseDir: tempDir})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp("", "testfile")
		require.NoError(t, err)
		t.Cleanup(func() {
			removeErr := os.Remove(tempFile.Name())
			if removeErr != nil && !os.IsNotExist(removeErr) {
				t.Fatalf("failed to remove temp file: %v", removeErr)
			}
		})

		_, err = local.New(local.Config{BaseDir: tempFile.Name()})
		assert.Error(t, err)
	})
}

func TestPutGetObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		path := "staging/products/1_batch.json"
		data := []byte(`[{"id":1}]`)
		uri, err := store.PutObject(context.Background(), path, "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, filepath.FromSlash(path)), uri)

		got, err := store.GetObject(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("MissingObject", func(t *testing.T) {
		_, err := store.GetObject(context.Background(), "nope/missing.json")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TraversalRejected", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.txt", "text/plain", bytes.NewReader([]byte("x")))
		assert.Error(t, err)
	})
}

func TestListAndRename(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	for _, p := range []string{"staging/products/b.json", "staging/products/a.json", "staging/shops/s.json"} {
		_, err := store.PutObject(ctx, p, "application/json", bytes.NewReader([]byte("{}")))
		require.NoError(t, err)
	}

	t.Run("ListSorted", func(t *testing.T) {
		paths, err := store.List(ctx, "staging/products")
		require.NoError(t, err)
		assert.Equal(t, []string{"staging/products/a.json", "staging/products/b.json"}, paths)
	})

	t.Run("ListMissingPrefix", func(t *testing.T) {
		paths, err := store.List(ctx, "absent")
		require.NoError(t, err)
		assert.Empty(t, paths)
	})

	t.Run("Rename", func(t *testing.T) {
		require.NoError(t, store.Rename(ctx, "staging/shops/s.json", "done/shops/s.json"))

		_, err := store.GetObject(ctx, "staging/shops/s.json")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		got, err := store.GetObject(ctx, "done/shops/s.json")
		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), got)
	})

	t.Run("RenameMissing", func(t *testing.T) {
		err := store.Rename(ctx, "staging/shops/gone.json", "done/shops/gone.json")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
