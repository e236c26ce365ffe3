package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/causas-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: "  "})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "payloads")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("LeavesNoTempFileBehind", func(t *testing.T) {
		dir := t.TempDir()
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesNestedPath", func(t *testing.T) {
		path := "raw/1234/run-1/buscarCausas/1234.json"
		uri, err := store.PutObject(ctx, path, "application/json", strings.NewReader(`[{"idJuicio":"5678"}]`))
		require.NoError(t, err)

		full := filepath.Join(dir, filepath.FromSlash(path))
		assert.Equal(t, "file://"+full, uri)
		// #nosec G304 -- test reads from the controlled temp directory.
		data, err := os.ReadFile(full)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"idJuicio":"5678"}]`, string(data))
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		_, err := store.PutObject(ctx, "a.json", "", strings.NewReader("1"))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "a.json", "", strings.NewReader("2"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		data, err := os.ReadFile(filepath.Join(dir, "a.json"))
		require.NoError(t, err)
		assert.Equal(t, "2", string(data))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "", "application/json", strings.NewReader("{}"))
		assert.Error(t, err)
	})

	t.Run("RejectsTraversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../outside.json", "application/json", strings.NewReader("{}"))
		assert.Error(t, err)
	})
}
