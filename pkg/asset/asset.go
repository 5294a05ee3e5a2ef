package asset

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("Token: Insufficient balance")
	ErrInsufficientAllowance = errors.New("Token: Insufficient allowance")
	ErrInvalidRecipient      = errors.New("Token: Recipient address is 0")
	ErrInvalidSpender        = errors.New("Token: Spender address is 0")
	ErrOverflow              = errors.New("Token: amount overflow")
)

// Asset is a fungible token ledger the exchange custodies.
// The caller identity is always passed explicitly.
type Asset interface {
	Address() common.Address
	Name() string
	Symbol() string
	Decimals() uint8
	TotalSupply() *uint256.Int

	BalanceOf(owner common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
	Allowance(owner, spender common.Address) *uint256.Int
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}
