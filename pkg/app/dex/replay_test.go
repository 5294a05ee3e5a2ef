package dex

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/uhyunpark/flashdex/params"
	"github.com/uhyunpark/flashdex/pkg/abci"
	"github.com/uhyunpark/flashdex/pkg/sequencer"
	"github.com/uhyunpark/flashdex/pkg/storage"
)

// commitBlock executes txs as the next block through the bridge and stores
// the block with its app hash, the way the sequencer does.
func commitBlock(t require.TestingT, app *App, store *storage.InMemoryBlockStore, parent sequencer.Block, txs [][]byte) sequencer.Block {
	b := sequencer.Block{
		Height:  parent.Height + 1,
		Parent:  sequencer.HashOfBlock(parent),
		Payload: abci.JoinPayload(txs),
		Time:    time.Unix(testTime+int64(parent.Height)+1, 0),
	}
	hash, err := (&abci.Bridge{App: app}).OnCommit(b)
	require.NoError(t, err)
	b.AppHash = hash
	require.NoError(t, store.SaveBlock(b))
	require.NoError(t, store.SetCommitted(b.Height))
	return b
}

func TestReplayReproducesAppHash(t *testing.T) {
	h := newHarness(t)
	store := storage.NewInMemoryBlockStore()

	seed, err := h.gen.SeedTxs()
	require.NoError(t, err)
	head := commitBlock(t, h.app, store, sequencer.GenesisBlock(), seed[:10])
	head = commitBlock(t, h.app, store, head, seed[10:])
	head = commitBlock(t, h.app, store, head, h.gen.GenerateBatch(8))

	fresh, err := NewApp(params.Default())
	require.NoError(t, err)
	res, err := fresh.Replay(store)
	require.NoError(t, err)
	require.Equal(t, 3, res.Blocks)
	require.Equal(t, head.Height, res.Head.Height)
	require.Equal(t, h.app.AppHash(), fresh.AppHash())
	require.Equal(t, h.app.OrderCount(), fresh.OrderCount())

	// Already applied blocks are skipped.
	res, err = fresh.Replay(store)
	require.NoError(t, err)
	require.Equal(t, 0, res.Blocks)
}

func TestReplayDetectsMismatch(t *testing.T) {
	h := newHarness(t)
	store := storage.NewInMemoryBlockStore()
	seed, err := h.gen.SeedTxs()
	require.NoError(t, err)
	b1 := commitBlock(t, h.app, store, sequencer.GenesisBlock(), seed)

	b1.AppHash[0] ^= 0xff
	require.NoError(t, store.SaveBlock(b1))

	fresh, err := NewApp(params.Default())
	require.NoError(t, err)
	_, err = fresh.Replay(store)
	require.ErrorIs(t, err, ErrAppHashMismatch)
}

func TestReplayDifferentGenesisFails(t *testing.T) {
	h := newHarness(t)
	store := storage.NewInMemoryBlockStore()
	seed, err := h.gen.SeedTxs()
	require.NoError(t, err)
	commitBlock(t, h.app, store, sequencer.GenesisBlock(), seed)

	cfg := params.Default()
	cfg.Exchange.FeePercent = 5
	other, err := NewApp(cfg)
	require.NoError(t, err)
	_, err = other.Replay(store)
	require.ErrorIs(t, err, ErrAppHashMismatch)
}

// ledgerTotal sums every trader's and the fee account's ledger balance.
func ledgerTotal(app *App, gen *SignedTxGenerator, assetAddr common.Address) *uint256.Int {
	sum := app.TotalBalanceOf(assetAddr, app.FeeAccount())
	for _, s := range gen.Traders() {
		sum = new(uint256.Int).Add(sum, app.TotalBalanceOf(assetAddr, s.Address()))
	}
	return sum
}

func TestReplayProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		app, err := NewApp(params.Default())
		require.NoError(rt, err)
		gen, err := NewSignedTxGenerator(app, 2, rapid.Int64().Draw(rt, "seed").(int64))
		require.NoError(rt, err)
		store := storage.NewInMemoryBlockStore()

		seed, err := gen.SeedTxs()
		require.NoError(rt, err)
		head := commitBlock(rt, app, store, sequencer.GenesisBlock(), seed)

		blocks := rapid.IntRange(1, 4).Draw(rt, "blocks").(int)
		for i := 0; i < blocks; i++ {
			n := rapid.IntRange(0, 6).Draw(rt, "txs").(int)
			head = commitBlock(rt, app, store, head, gen.GenerateBatch(n))
		}

		// Ledger balances are exactly the custody the exchange accounts for.
		for _, ti := range app.Tokens() {
			require.True(rt, ti.Custody.Eq(ledgerTotal(app, gen, ti.Address)),
				"%s custody %s != ledger %s", ti.Symbol, ti.Custody, ledgerTotal(app, gen, ti.Address))
		}

		fresh, err := NewApp(params.Default())
		require.NoError(rt, err)
		res, err := fresh.Replay(store)
		require.NoError(rt, err)
		require.Equal(rt, blocks+1, res.Blocks)
		require.Equal(rt, app.AppHash(), fresh.AppHash())
		require.Equal(rt, app.StateHash(), fresh.StateHash())
	})
}
