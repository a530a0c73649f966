package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openEngines(t *testing.T) map[string]DB {
	t.Helper()
	out := make(map[string]DB)
	for _, engine := range []string{"pebble", "leveldb"} {
		db, err := Open(engine, t.TempDir())
		require.NoError(t, err, engine)
		t.Cleanup(func() { _ = db.Close() })
		out[engine] = db
	}
	return out
}

func TestOpenUnknownEngine(t *testing.T) {
	_, err := Open("rocks", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	for engine, db := range openEngines(t) {
		t.Run(engine, func(t *testing.T) {
			_, err := db.Read(ctx, []byte("missing"))
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, db.Write(ctx, []byte("k"), []byte("v1")))
			got, err := db.Read(ctx, []byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), got)

			require.NoError(t, db.Write(ctx, []byte("k"), []byte("v2")))
			got, err = db.Read(ctx, []byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)

			require.NoError(t, db.Delete(ctx, []byte("k")))
			_, err = db.Read(ctx, []byte("k"))
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	for engine, db := range openEngines(t) {
		t.Run(engine, func(t *testing.T) {
			require.NoError(t, db.Write(ctx, []byte("drop"), []byte("x")))
			require.NoError(t, db.Batch(ctx, []BatchOperation{
				{Type: BatchPut, Key: []byte("a"), Value: []byte("1")},
				{Type: BatchPut, Key: []byte("b"), Value: []byte("2")},
				{Type: BatchDelete, Key: []byte("drop")},
			}))

			got, err := db.Read(ctx, []byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), got)
			_, err = db.Read(ctx, []byte("drop"))
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestIteratorRange(t *testing.T) {
	ctx := context.Background()
	for engine, db := range openEngines(t) {
		t.Run(engine, func(t *testing.T) {
			for _, k := range []string{"a1", "a2", "b1", "b2"} {
				require.NoError(t, db.Write(ctx, []byte(k), []byte("v-"+k)))
			}

			it, err := db.Iterator(ctx, []byte("a"), []byte("b"))
			require.NoError(t, err)
			defer it.Close()

			var keys []string
			for it.Next() {
				keys = append(keys, string(it.Key()))
				assert.Equal(t, "v-"+string(it.Key()), string(it.Value()))
			}
			require.NoError(t, it.Error())
			assert.Equal(t, []string{"a1", "a2"}, keys)
		})
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	for engine, db := range openEngines(t) {
		t.Run(engine, func(t *testing.T) {
			require.NoError(t, db.Close())
			require.NoError(t, db.Close(), "double close is a no-op")

			_, err := db.Read(ctx, []byte("k"))
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, db.Write(ctx, []byte("k"), nil), ErrClosed)
			assert.ErrorIs(t, db.Delete(ctx, []byte("k")), ErrClosed)
			assert.ErrorIs(t, db.Batch(ctx, nil), ErrClosed)
			_, err = db.Iterator(ctx, nil, nil)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}
