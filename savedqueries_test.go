package advsearch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.dat")
	store, err := OpenFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	return store, path
}

func TestNewSavedQuery(t *testing.T) {
	q := NewSavedQuery("  Holiday photos ", "photo.cameramake:Canon AND (photo.iso>=100 AND photo.iso<=800) AND banana")
	assert.Equal(t, "Holiday photos", q.Name)
	assert.Equal(t, "name:*banana* AND photo.cameramake:Canon AND (photo.iso>=100 AND photo.iso<=800)", q.Normalized)

	empty := NewSavedQuery("all", "   ")
	assert.Equal(t, "*", empty.Query)
	assert.Equal(t, "*", empty.Normalized)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store, path := openTestStore(t)

	first, err := store.SaveQuery(ctx, NewSavedQuery("pdfs", "name:*.pdf"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.ID)
	assert.False(t, first.Created.IsZero())

	second, err := store.SaveQuery(ctx, NewSavedQuery("folders", "Type:2"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.ID)

	got, err := store.GetQuery(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "pdfs", got.Name)
	assert.Equal(t, "name:*.pdf", got.Query)
	assert.Equal(t, "name:*.pdf", got.Normalized)
	assert.True(t, first.Created.Equal(got.Created))

	second.Name = "only folders"
	_, err = store.SaveQuery(ctx, second)
	require.NoError(t, err)

	list, err := store.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(1), list[0].ID)
	assert.Equal(t, "only folders", list[1].Name)

	require.NoError(t, store.DeleteQuery(ctx, first.ID))
	_, err = store.GetQuery(ctx, first.ID)
	assert.ErrorIs(t, err, ErrQueryNotFound)
	assert.ErrorIs(t, store.DeleteQuery(ctx, first.ID), ErrQueryNotFound)

	require.NoError(t, store.Close())

	// ids keep counting after a reopen
	store, err = OpenFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	list, err = store.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "only folders", list[0].Name)

	third, err := store.SaveQuery(ctx, NewSavedQuery("big", "size>=1000000"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), third.ID)
}

func TestFileStoreReusesFreedSpace(t *testing.T) {
	ctx := context.Background()
	for pad := 1; pad < recordHeaderSize; pad++ {
		store, _ := openTestStore(t)

		a, err := store.SaveQuery(ctx, NewSavedQuery(strings.Repeat("a", 60), "tags:x"))
		require.NoError(t, err)
		_, err = store.SaveQuery(ctx, NewSavedQuery("c", "tags:y"))
		require.NoError(t, err)
		require.NoError(t, store.DeleteQuery(ctx, a.ID))

		b, err := store.SaveQuery(ctx, NewSavedQuery(strings.Repeat("b", 60-pad), "tags:x"))
		require.NoError(t, err)

		got, err := store.GetQuery(ctx, b.ID)
		require.NoError(t, err, "pad %d", pad)
		assert.Equal(t, b.Name, got.Name)
		assert.Equal(t, "tags:x", got.Query)

		list, err := store.ListQueries(ctx)
		require.NoError(t, err, "pad %d", pad)
		assert.Len(t, list, 2)
		require.NoError(t, store.Close())
	}
}

func TestFileStoreExplicitID(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	defer store.Close()

	q := NewSavedQuery("imported", "Type:2")
	q.ID = 5
	_, err := store.SaveQuery(ctx, q)
	require.NoError(t, err)

	next, err := store.SaveQuery(ctx, NewSavedQuery("pdfs", "name:*.pdf"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), next.ID)

	// a lower explicit id leaves the counter alone
	low := NewSavedQuery("low", "tags:a")
	low.ID = 2
	_, err = store.SaveQuery(ctx, low)
	require.NoError(t, err)
	after, err := store.SaveQuery(ctx, NewSavedQuery("after", "tags:b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), after.ID)

	got, err := store.GetQuery(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "imported", got.Name)
}

func TestFileStoreRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.dat")
	require.NoError(t, os.WriteFile(path, []byte("not a query file at all"), 0644))

	_, err := OpenFileStore(path, zerolog.Nop())
	assert.Error(t, err)
}

func TestSavedQueryCodec(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	q := SavedQuery{Name: "n", Query: "tags:a", Normalized: "tags:a", Created: created}

	data := encodeSavedQuery(q)

	// padding added by the record file is ignored
	padded := append(append([]byte{}, data...), 0, 0, 0)
	got, err := decodeSavedQuery(padded)
	require.NoError(t, err)
	assert.Equal(t, q, got)

	_, err = decodeSavedQuery(data[:len(data)-3])
	assert.Error(t, err)
}

func TestOpenQueryStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorePath = filepath.Join(t.TempDir(), "nested", "queries.dat")

	store, err := OpenQueryStore(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg.StoreDriver = "mongodb"
	_, err = OpenQueryStore(cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg.StoreDriver = StorePostgres
	cfg.DatabaseURL = ""
	_, err = OpenQueryStore(cfg, zerolog.Nop())
	assert.Error(t, err)
}
