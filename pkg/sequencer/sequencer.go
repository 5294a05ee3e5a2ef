package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/flashdex/pkg/util"
)

// Sequencer is the single block producer of the venue. It totally orders
// accepted transactions by cutting the app's pending queue into blocks at
// a fixed cadence.
type Sequencer struct {
	App       AppHook
	Store     BlockStore
	WAL       WAL
	Clock     util.Clock
	BlockTime time.Duration
	ID        string

	Logger         *zap.SugaredLogger
	VerboseLogging bool // if false, only log commits and errors

	// OnBlockCommit runs after a block is executed and persisted.
	OnBlockCommit func(b Block)

	mu   sync.RWMutex
	head Block
}

func New(app AppHook, store BlockStore, clock util.Clock, blockTime time.Duration) *Sequencer {
	return &Sequencer{
		App:       app,
		Store:     store,
		Clock:     clock,
		BlockTime: blockTime,
		ID:        "sequencer",
		Logger:    zap.NewNop().Sugar(),
		head:      GenesisBlock(),
	}
}

// SetHead resumes production on top of an already executed block.
func (s *Sequencer) SetHead(b Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = b
}

func (s *Sequencer) Head() Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

func (s *Sequencer) Height() Height { return s.Head().Height }

// Run produces blocks every BlockTime until ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Clock.After(s.BlockTime):
		}
		if _, _, err := s.ProduceBlock(ctx); err != nil {
			return err
		}
	}
}

// ProduceBlock cuts one block from pending transactions. It reports false
// when there was nothing to include; empty blocks are not produced.
func (s *Sequencer) ProduceBlock(ctx context.Context) (Block, bool, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, false, err
	}
	parent := s.Head()
	next := parent.Height + 1

	payload := s.App.PreparePayload(parent, next)
	if len(payload) == 0 {
		if s.VerboseLogging {
			s.Logger.Debugw("skip_empty_block", "height", next)
		}
		return Block{}, false, nil
	}

	b := Block{
		Height:   next,
		Parent:   HashOfBlock(parent),
		Payload:  payload,
		Proposer: s.ID,
		Time:     s.Clock.Now(),
	}
	if !b.Time.After(parent.Time) {
		// Block time never goes backwards.
		b.Time = parent.Time.Add(time.Millisecond)
	}

	appHash, err := s.App.OnCommit(b)
	if err != nil {
		return Block{}, false, fmt.Errorf("execute block %d: %w", next, err)
	}
	b.AppHash = appHash

	if s.Store != nil {
		if err := s.Store.SaveBlock(b); err != nil {
			return Block{}, false, fmt.Errorf("save block %d: %w", next, err)
		}
		if err := s.Store.SetCommitted(next); err != nil {
			return Block{}, false, fmt.Errorf("commit block %d: %w", next, err)
		}
	}
	if s.WAL != nil {
		s.WAL.Append(fmt.Sprintf("commit height=%d apphash=0x%x bytes=%d", next, appHash[:], len(payload)))
	}

	s.SetHead(b)

	s.Logger.Infow("commit", "height", next, "apphash", fmt.Sprintf("0x%x", appHash[:8]), "payload_bytes", len(payload))
	if s.OnBlockCommit != nil {
		s.OnBlockCommit(b)
	}
	return b, true, nil
}
