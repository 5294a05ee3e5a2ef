package account

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/flashdex/pkg/state"
)

// Key prefixes
const (
	prefixNonce = "nonce:" // Account nonce (separate for fast lookup)
)

var ErrBadNonce = errors.New("account: bad nonce")

// nonceKey returns the key for account nonce
// Format: "nonce:{address}"
func nonceKey(addr common.Address) string {
	return prefixNonce + addr.Hex()
}

// Nonces tracks the last executed nonce of every signer. A transaction
// must carry exactly the stored nonce plus one.
type Nonces struct {
	db *state.StateDB
}

func NewNonces(db *state.StateDB) *Nonces {
	return &Nonces{db: db}
}

// Get returns the last executed nonce, 0 for a fresh account.
func (n *Nonces) Get(addr common.Address) uint64 {
	return n.db.GetUint(nonceKey(addr)).Uint64()
}

// Next is the nonce the next transaction from addr must carry.
func (n *Nonces) Next(addr common.Address) uint64 {
	return n.Get(addr) + 1
}

// Use checks nonce against the account and consumes it. The write goes
// through the state journal, so a reverted block also reverts it.
func (n *Nonces) Use(addr common.Address, nonce uint64) error {
	if want := n.Next(addr); nonce != want {
		return fmt.Errorf("%w: got %d, expected %d", ErrBadNonce, nonce, want)
	}
	n.db.SetUint(nonceKey(addr), uint256.NewInt(nonce))
	return nil
}

// Range visits every account with at least one executed transaction.
func (n *Nonces) Range(fn func(addr common.Address, nonce uint64) bool) {
	n.db.Range(prefixNonce, func(key string, value []byte) bool {
		addrHex := key[len(prefixNonce):]
		if !common.IsHexAddress(addrHex) {
			return true
		}
		return fn(common.HexToAddress(addrHex), new(uint256.Int).SetBytes(value).Uint64())
	})
}
