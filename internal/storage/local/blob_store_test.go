// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir(), Bucket: "images"})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingBaseDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "objects")
		_, err := local.New(local.Config{BaseDir: dir, Bucket: "images"})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{Bucket: "images"})
		assert.Error(t, err)
	})

	t.Run("MissingBucket", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: t.TempDir()})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file, Bucket: "images"})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup.
			_ = os.Chmod(tempDir, 0o700)
		})

		_, err := local.New(local.Config{BaseDir: tempDir, Bucket: "images"})
		assert.Error(t, err)
	})
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: baseDir, Bucket: "images"})
	require.NoError(t, err)

	uri, err := store.PutObject(ctx, "42/abc.png", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "file://images/42/abc.png", uri)

	parsed, err := jobs.ParseObjectURI(uri)
	require.NoError(t, err)
	got, err := store.GetObject(ctx, parsed.Bucket, parsed.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got)

	onDisk, err := os.ReadFile(filepath.Join(baseDir, "images", "42", "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), onDisk)

	require.NoError(t, store.DeleteObjects(ctx, "images", []string{"42/abc.png", "42/missing.png"}))
	_, err = store.GetObject(ctx, "images", "42/abc.png")
	assert.ErrorIs(t, err, jobs.ErrObjectNotFound)
}

func TestRejectsPathTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := local.New(local.Config{BaseDir: t.TempDir(), Bucket: "images"})
	require.NoError(t, err)

	_, err = store.PutObject(ctx, "../../escape.png", "image/png", []byte("x"))
	assert.ErrorContains(t, err, "path traversal")

	_, err = store.GetObject(ctx, "../other", "key")
	assert.ErrorContains(t, err, "path traversal")

	err = store.DeleteObjects(ctx, "images/../..", []string{"key"})
	assert.ErrorContains(t, err, "path traversal")

	_, err = store.PutObject(ctx, "", "image/png", []byte("x"))
	assert.Error(t, err)
}
