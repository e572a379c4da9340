package advsearch

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpQueryFile(t *testing.T) {
	ctx := context.Background()
	store, path := openTestStore(t)

	_, err := store.SaveQuery(ctx, NewSavedQuery("first", "tags:a, b"))
	require.NoError(t, err)
	second, err := store.SaveQuery(ctx, NewSavedQuery("second", "Type:1"))
	require.NoError(t, err)
	require.NoError(t, store.DeleteQuery(ctx, second.ID))
	require.NoError(t, store.Close())

	var buf bytes.Buffer
	require.NoError(t, DumpQueryFile(path, &buf))

	out := buf.String()
	assert.Contains(t, out, "Version: 1")
	assert.Contains(t, out, "Next ID: 3")
	assert.Contains(t, out, "Record ID: 1")
	assert.Contains(t, out, "Name: first")
	assert.Contains(t, out, "Free space")
	assert.NotContains(t, out, "Name: second")
}

func TestDumpQueryFileRejectsOtherFiles(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, DumpQueryFile(filepath.Join(t.TempDir(), "missing.dat"), &buf))
}

func TestExportImportQueries(t *testing.T) {
	ctx := context.Background()
	src, _ := openTestStore(t)
	defer src.Close()

	for _, q := range []SavedQuery{
		NewSavedQuery("pdf", "name:*.pdf"),
		NewSavedQuery("canon", "photo.cameramake:Canon"),
	} {
		_, err := src.SaveQuery(ctx, q)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, ExportQueries(ctx, src, &buf))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "["))

	dst, err := OpenFileStore(filepath.Join(t.TempDir(), "dst.dat"), zerolog.Nop())
	require.NoError(t, err)
	defer dst.Close()

	n, err := ImportQueries(ctx, dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := dst.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pdf", list[0].Name)
	assert.Equal(t, "photo.cameramake:Canon", list[1].Normalized)

	_, err = ImportQueries(ctx, dst, strings.NewReader("{"))
	assert.Error(t, err)
}
