package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/flashdex/pkg/sequencer"
	"github.com/uhyunpark/flashdex/pkg/state"
)

// PebbleStore keeps the block log and the committed state key space.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	cache := pebble.NewCache(64 << 20)
	defer cache.Unref()
	opts := &pebble.Options{
		Cache:                    cache,
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) SaveBlock(b sequencer.Block) error {
	val, err := encodeBlock(b)
	if err != nil {
		return fmt.Errorf("failed to encode block: %w", err)
	}
	if err := s.db.Set(kBlock(b.Height), val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save block %d: %w", b.Height, err)
	}
	return nil
}

func (s *PebbleStore) GetBlock(h sequencer.Height) (sequencer.Block, bool, error) {
	val, closer, err := s.db.Get(kBlock(h))
	if errors.Is(err, pebble.ErrNotFound) {
		return sequencer.Block{}, false, nil
	}
	if err != nil {
		return sequencer.Block{}, false, fmt.Errorf("failed to get block %d: %w", h, err)
	}
	defer closer.Close()

	out, err := decodeBlock(val)
	if err != nil {
		return sequencer.Block{}, false, fmt.Errorf("failed to decode block %d: %w", h, err)
	}
	return out, true, nil
}

func (s *PebbleStore) SetCommitted(h sequencer.Height) error {
	if err := s.db.Set(kCommitted(), heightKey(uint64(h)), pebble.Sync); err != nil {
		return fmt.Errorf("failed to set committed height: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetCommitted() (sequencer.Height, bool, error) {
	h, ok, err := s.getHeight(kCommitted())
	return sequencer.Height(h), ok, err
}

// IterateBlocks walks the block log in height order.
func (s *PebbleStore) IterateBlocks(fn func(sequencer.Block) error) error {
	prefix := []byte(prefixBlock)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open block iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		b, err := decodeBlock(iter.Value())
		if err != nil {
			return fmt.Errorf("failed to decode block at key %x: %w", iter.Key(), err)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ApplyChangeSet writes one committed state change set and its height in a
// single atomic batch.
func (s *PebbleStore) ApplyChangeSet(height uint64, changes []state.Change) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, c := range changes {
		var err error
		if c.Value == nil {
			err = batch.Delete(kState(c.Key), nil)
		} else {
			err = batch.Set(kState(c.Key), c.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", c.Key, err)
		}
	}
	if err := batch.Set(kStateHeight(), heightKey(height), nil); err != nil {
		return fmt.Errorf("failed to stage state height: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit change set at %d: %w", height, err)
	}
	return nil
}

// LoadState returns the full committed state key space.
func (s *PebbleStore) LoadState() (map[string][]byte, error) {
	prefix := []byte(prefixState)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state iterator: %w", err)
	}
	defer iter.Close()

	out := make(map[string][]byte)
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(prefix):])
		out[key] = append([]byte(nil), iter.Value()...)
	}
	return out, iter.Error()
}

// StateHeight is the height of the last applied change set.
func (s *PebbleStore) StateHeight() (uint64, bool, error) {
	return s.getHeight(kStateHeight())
}

func (s *PebbleStore) getHeight(key []byte) (uint64, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, false, fmt.Errorf("corrupt height under %s", key)
	}
	return binary.BigEndian.Uint64(val), true, nil
}

var _ sequencer.BlockStore = (*PebbleStore)(nil)
