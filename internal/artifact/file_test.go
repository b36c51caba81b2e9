package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	idx, err := OpenIndex(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	store, err := NewFileStore(t.TempDir(), idx)
	require.NoError(t, err)
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	cases := [][]byte{
		[]byte(""),
		[]byte("hello world"),
		make([]byte, 1<<20+17),
	}

	for _, data := range cases {
		coords, err := store.Put(ctx, data, KindLog)
		require.NoError(t, err)
		require.Equal(t, Hash(data), coords.Hash)

		got, err := store.Get(ctx, coords.Hash)
		require.NoError(t, err)
		require.Equal(t, data, got)
	}
}

func TestPutDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	data := []byte("duplicate content")
	c1, err := store.Put(ctx, data, KindDiff)
	require.NoError(t, err)
	c2, err := store.Put(ctx, data, KindDiff)
	require.NoError(t, err)

	require.Equal(t, c1.Hash, c2.Hash)
	require.Equal(t, c1.URI, c2.URI)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_, err := store.Get(ctx, "deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestShardBoundsFanOut(t *testing.T) {
	require.Equal(t, "ab", Shard("abcdef"))
	require.Equal(t, "00", Shard(""))
}
