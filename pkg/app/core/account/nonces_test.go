package account

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/flashdex/pkg/state"
)

var (
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

func TestNoncesSequence(t *testing.T) {
	n := NewNonces(state.New())
	assert.Equal(t, uint64(0), n.Get(alice))
	assert.Equal(t, uint64(1), n.Next(alice))

	require.NoError(t, n.Use(alice, 1))
	require.NoError(t, n.Use(alice, 2))
	assert.Equal(t, uint64(2), n.Get(alice))

	require.ErrorIs(t, n.Use(alice, 2), ErrBadNonce, "replay")
	require.ErrorIs(t, n.Use(alice, 4), ErrBadNonce, "gap")
	require.ErrorIs(t, n.Use(bob, 0), ErrBadNonce, "zero is never valid")
	assert.Equal(t, uint64(2), n.Get(alice))
	assert.Equal(t, uint64(0), n.Get(bob))
}

func TestNoncesRevert(t *testing.T) {
	db := state.New()
	n := NewNonces(db)
	require.NoError(t, n.Use(alice, 1))
	db.Commit()

	snap := db.Snapshot()
	require.NoError(t, n.Use(alice, 2))
	db.RevertToSnapshot(snap)
	assert.Equal(t, uint64(1), n.Get(alice))
}

func TestNoncesRange(t *testing.T) {
	n := NewNonces(state.New())
	require.NoError(t, n.Use(bob, 1))
	require.NoError(t, n.Use(alice, 1))
	require.NoError(t, n.Use(alice, 2))

	got := map[common.Address]uint64{}
	n.Range(func(addr common.Address, nonce uint64) bool {
		got[addr] = nonce
		return true
	})
	assert.Equal(t, map[common.Address]uint64{alice: 2, bob: 1}, got)
}
