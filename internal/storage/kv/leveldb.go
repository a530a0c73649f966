package kv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is the goleveldb-backed store. Lighter on file descriptors than
// Pebble; the default choice for small deployments.
type LevelDB struct {
	db     *leveldb.DB
	closed atomic.Bool
}

// OpenLevelDB opens or creates a LevelDB store at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: 32 << 20,
		WriteBuffer:        16 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("kv: open leveldb at %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Read(ctx context.Context, key []byte) ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: leveldb read: %w", err)
	}
	return value, nil
}

func (l *LevelDB) Write(ctx context.Context, key, value []byte) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := l.db.Put(key, value, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("kv: leveldb write: %w", err)
	}
	return nil
}

func (l *LevelDB) Delete(ctx context.Context, key []byte) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := l.db.Delete(key, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("kv: leveldb delete: %w", err)
	}
	return nil
}

func (l *LevelDB) Batch(ctx context.Context, ops []BatchOperation) error {
	if l.closed.Load() {
		return ErrClosed
	}
	batch := new(leveldb.Batch)
	for _, op := range ops {
		switch op.Type {
		case BatchPut:
			batch.Put(op.Key, op.Value)
		case BatchDelete:
			batch.Delete(op.Key)
		default:
			return fmt.Errorf("kv: unknown batch op %d", op.Type)
		}
	}
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("kv: leveldb batch: %w", err)
	}
	return nil
}

func (l *LevelDB) Iterator(ctx context.Context, start, end []byte) (Iterator, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	var slice *util.Range
	if start != nil || end != nil {
		slice = &util.Range{Start: start, Limit: end}
	}
	return &levelIterator{iter: l.db.NewIterator(slice, nil)}, nil
}

func (l *LevelDB) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.db.Close()
}

type levelIterator struct {
	iter iterator.Iterator
}

func (it *levelIterator) Next() bool    { return it.iter.Next() }
func (it *levelIterator) Key() []byte   { return it.iter.Key() }
func (it *levelIterator) Value() []byte { return it.iter.Value() }
func (it *levelIterator) Error() error  { return it.iter.Error() }

func (it *levelIterator) Close() error {
	it.iter.Release()
	return it.iter.Error()
}
