package storage

import (
	"sort"
	"sync"

	"github.com/uhyunpark/flashdex/pkg/sequencer"
	"github.com/uhyunpark/flashdex/pkg/state"
)

type InMemoryBlockStore struct {
	mu        sync.Mutex
	blocks    map[sequencer.Height]sequencer.Block
	committed *sequencer.Height
	state     map[string][]byte
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{
		blocks: make(map[sequencer.Height]sequencer.Block),
		state:  make(map[string][]byte),
	}
}

func (s *InMemoryBlockStore) SaveBlock(b sequencer.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Payload = append([]byte(nil), b.Payload...)
	s.blocks[b.Height] = b
	return nil
}

func (s *InMemoryBlockStore) GetBlock(h sequencer.Height) (sequencer.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[h]
	return b, ok, nil
}

func (s *InMemoryBlockStore) SetCommitted(h sequencer.Height) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = &h
	return nil
}

func (s *InMemoryBlockStore) GetCommitted() (sequencer.Height, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed == nil {
		return 0, false, nil
	}
	return *s.committed, true, nil
}

func (s *InMemoryBlockStore) IterateBlocks(fn func(sequencer.Block) error) error {
	s.mu.Lock()
	heights := make([]sequencer.Height, 0, len(s.blocks))
	for h := range s.blocks {
		heights = append(heights, h)
	}
	blocks := make([]sequencer.Block, 0, len(heights))
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	for _, h := range heights {
		blocks = append(blocks, s.blocks[h])
	}
	s.mu.Unlock()

	for _, b := range blocks {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryBlockStore) ApplyChangeSet(_ uint64, changes []state.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		if c.Value == nil {
			delete(s.state, c.Key)
			continue
		}
		s.state[c.Key] = append([]byte(nil), c.Value...)
	}
	return nil
}

func (s *InMemoryBlockStore) LoadState() (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.state))
	for k, v := range s.state {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

var _ sequencer.BlockStore = (*InMemoryBlockStore)(nil)
