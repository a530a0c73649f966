package kv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

// PebbleDB is the PebbleDB-backed store. Writes are synced; the engine's own
// WAL provides crash consistency.
type PebbleDB struct {
	db     *pebble.DB
	closed atomic.Bool
}

// OpenPebble opens or creates a Pebble store at path.
func OpenPebble(path string) (*PebbleDB, error) {
	opts := &pebble.Options{
		Levels: []pebble.LevelOptions{{
			BlockSize:      32 * 1024,
			FilterPolicy:   bloom.FilterPolicy(10),
			FilterType:     pebble.TableFilter,
			IndexBlockSize: 256 * 1024,
		}},
		MemTableSize:                64 << 20,
		MemTableStopWritesThreshold: 4,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open pebble at %s: %w", path, err)
	}
	return &PebbleDB{db: db}, nil
}

func (p *PebbleDB) Read(ctx context.Context, key []byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: pebble read: %w", err)
	}
	out := make([]byte, len(value))
	copy(out, value)
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("kv: pebble read close: %w", err)
	}
	return out, nil
}

func (p *PebbleDB) Write(ctx context.Context, key, value []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("kv: pebble write: %w", err)
	}
	return nil
}

func (p *PebbleDB) Delete(ctx context.Context, key []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("kv: pebble delete: %w", err)
	}
	return nil
}

func (p *PebbleDB) Batch(ctx context.Context, ops []BatchOperation) error {
	if p.closed.Load() {
		return ErrClosed
	}
	batch := p.db.NewBatch()
	defer batch.Close()
	for _, op := range ops {
		var err error
		switch op.Type {
		case BatchPut:
			err = batch.Set(op.Key, op.Value, nil)
		case BatchDelete:
			err = batch.Delete(op.Key, nil)
		default:
			err = fmt.Errorf("kv: unknown batch op %d", op.Type)
		}
		if err != nil {
			return fmt.Errorf("kv: pebble batch: %w", err)
		}
	}
	if err := p.db.Apply(batch, pebble.Sync); err != nil {
		return fmt.Errorf("kv: pebble batch apply: %w", err)
	}
	return nil
}

func (p *PebbleDB) Iterator(ctx context.Context, start, end []byte) (Iterator, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	if err != nil {
		return nil, fmt.Errorf("kv: pebble iterator: %w", err)
	}
	return &pebbleIterator{iter: iter}, nil
}

func (p *PebbleDB) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	started bool
}

func (it *pebbleIterator) Next() bool {
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *pebbleIterator) Key() []byte   { return it.iter.Key() }
func (it *pebbleIterator) Value() []byte { return it.iter.Value() }
func (it *pebbleIterator) Error() error  { return it.iter.Error() }
func (it *pebbleIterator) Close() error  { return it.iter.Close() }
