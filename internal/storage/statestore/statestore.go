// Package statestore persists protocol state snapshots behind a kv backend:
// one record per backing instance plus a singleton factory record. Records
// are JSON-encoded, LZ4-compressed past a size threshold, and served through
// an LRU cache so hot reads skip the disk entirely.
package statestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/crclabs/backingd/internal/core/backing"
	"github.com/crclabs/backingd/internal/core/order"
	"github.com/crclabs/backingd/internal/storage/kv"
)

const (
	// DefaultCacheSize bounds the in-memory record cache.
	DefaultCacheSize = 4096

	instancePrefix  = "inst/"
	factoryStateKey = "factory/state"
)

// InstanceRecord is the durable snapshot of one backing instance.
type InstanceRecord struct {
	Address        common.Address     `json:"address"`
	Backer         common.Address     `json:"backer"`
	BackingAsset   common.Address     `json:"backingAsset"`
	PersonalToken  common.Address     `json:"personalToken"`
	PersonalAmount *big.Int           `json:"personalAmount"`
	StableAmount   *big.Int           `json:"stableAmount"`
	OrderUID       string             `json:"orderUid"`
	OrderParams    order.StaticParams `json:"orderParams"`
	Pool           common.Address     `json:"pool"`
	UnlockAt       int64              `json:"unlockAt"`
}

// SnapshotInstance captures an instance's current state.
func SnapshotInstance(inst *backing.Instance) *InstanceRecord {
	return &InstanceRecord{
		Address:        inst.Address(),
		Backer:         inst.Backer(),
		BackingAsset:   inst.BackingAsset(),
		PersonalToken:  inst.PersonalToken(),
		PersonalAmount: inst.PersonalAmount(),
		StableAmount:   inst.StableAmount(),
		OrderUID:       inst.OrderUID().Hex(),
		OrderParams:    inst.OrderParams(),
		Pool:           inst.PoolAddress(),
		UnlockAt:       inst.PoolUnlockTimestamp(),
	}
}

// FactoryRecord is the durable snapshot of factory-level policy.
type FactoryRecord struct {
	SupportedAssets []common.Address `json:"supportedAssets"`
	GlobalRelease   int64            `json:"globalRelease"`
	SlippageBPS     uint32           `json:"slippageBps"`
}

// Store is the snapshot store.
type Store struct {
	db        kv.DB
	cache     *lru.Cache[common.Address, *InstanceRecord]
	cacheSize int
}

// New creates a store over db with the given cache capacity
// (DefaultCacheSize when zero).
func New(db kv.DB, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[common.Address, *InstanceRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("statestore: cache: %w", err)
	}
	return &Store{db: db, cache: cache, cacheSize: cacheSize}, nil
}

func instanceKey(addr common.Address) []byte {
	return append([]byte(instancePrefix), addr.Bytes()...)
}

// PutInstance writes a snapshot and refreshes the cache.
func (s *Store) PutInstance(ctx context.Context, rec *InstanceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("statestore: encode instance: %w", err)
	}
	if err := s.db.Write(ctx, instanceKey(rec.Address), pack(raw)); err != nil {
		return err
	}
	s.cache.Add(rec.Address, rec)
	return nil
}

// GetInstance loads a snapshot, preferring the cache.
func (s *Store) GetInstance(ctx context.Context, addr common.Address) (*InstanceRecord, error) {
	if rec, ok := s.cache.Get(addr); ok {
		return rec, nil
	}
	raw, err := s.db.Read(ctx, instanceKey(addr))
	if err != nil {
		return nil, err
	}
	rec, err := decodeInstance(raw)
	if err != nil {
		return nil, err
	}
	s.cache.Add(addr, rec)
	return rec, nil
}

// Instances loads every instance snapshot in key order.
func (s *Store) Instances(ctx context.Context) ([]*InstanceRecord, error) {
	start := []byte(instancePrefix)
	end := append([]byte(instancePrefix), 0xff, 0xff, 0xff, 0xff)
	it, err := s.db.Iterator(ctx, start, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*InstanceRecord
	for it.Next() {
		if !bytes.HasPrefix(it.Key(), start) {
			break
		}
		rec, err := decodeInstance(it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInstance(raw []byte) (*InstanceRecord, error) {
	plain, err := unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("statestore: unpack instance: %w", err)
	}
	var rec InstanceRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, fmt.Errorf("statestore: decode instance: %w", err)
	}
	return &rec, nil
}

// PutFactory writes the factory-level snapshot.
func (s *Store) PutFactory(ctx context.Context, rec *FactoryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("statestore: encode factory: %w", err)
	}
	return s.db.Write(ctx, []byte(factoryStateKey), pack(raw))
}

// GetFactory loads the factory-level snapshot.
func (s *Store) GetFactory(ctx context.Context) (*FactoryRecord, error) {
	raw, err := s.db.Read(ctx, []byte(factoryStateKey))
	if err != nil {
		return nil, err
	}
	plain, err := unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("statestore: unpack factory: %w", err)
	}
	var rec FactoryRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, fmt.Errorf("statestore: decode factory: %w", err)
	}
	return &rec, nil
}

// CacheStats reports cache occupancy for diagnostics.
func (s *Store) CacheStats() (size, capacity int) {
	return s.cache.Len(), s.cacheSize
}
