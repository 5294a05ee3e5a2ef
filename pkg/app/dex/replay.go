package dex

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/flashdex/pkg/abci"
	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

var ErrAppHashMismatch = errors.New("dex: app hash mismatch")

// BlockSource yields stored blocks in height order.
type BlockSource interface {
	IterateBlocks(fn func(sequencer.Block) error) error
}

type ReplayResult struct {
	Blocks int
	Head   sequencer.Block
}

// Replay re-executes every stored block above the current height and fails
// on the first block whose recomputed app hash differs from the stored one.
func (a *App) Replay(src BlockSource) (ReplayResult, error) {
	bridge := &abci.Bridge{App: a}
	res := ReplayResult{Head: sequencer.GenesisBlock()}

	err := src.IterateBlocks(func(b sequencer.Block) error {
		if uint64(b.Height) <= a.Height() {
			return nil
		}
		got, err := bridge.OnCommit(b)
		if err != nil {
			return fmt.Errorf("replay block %d: %w", b.Height, err)
		}
		if got != b.AppHash {
			return fmt.Errorf("%w at height %d: stored 0x%s, replayed 0x%s", ErrAppHashMismatch, b.Height, b.AppHash, got)
		}
		res.Blocks++
		res.Head = b
		return nil
	})
	return res, err
}
