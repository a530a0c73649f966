// Package kv defines the key-value storage contract node state lives behind,
// with interchangeable engine backends.
package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("kv: store is closed")

	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("kv: key not found")

	// ErrUnknownEngine is returned for an unrecognized engine name.
	ErrUnknownEngine = errors.New("kv: unknown engine")
)

// DB is the operation set every backend must support.
type DB interface {
	Read(ctx context.Context, key []byte) ([]byte, error)
	Write(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	Batch(ctx context.Context, ops []BatchOperation) error
	Iterator(ctx context.Context, start, end []byte) (Iterator, error)

	Close() error
}

// Iterator traverses entries in key order. Key and Value are only valid
// until the next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// BatchOpType selects the kind of a batched operation.
type BatchOpType int

const (
	BatchPut BatchOpType = iota
	BatchDelete
)

// BatchOperation is one entry of an atomic batch.
type BatchOperation struct {
	Type  BatchOpType
	Key   []byte
	Value []byte
}

// Open creates or opens a store at path using the named engine
// ("pebble" or "leveldb").
func Open(engine, path string) (DB, error) {
	switch engine {
	case "pebble":
		return OpenPebble(path)
	case "leveldb":
		return OpenLevelDB(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, engine)
	}
}
