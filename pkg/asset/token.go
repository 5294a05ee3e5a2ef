package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/flashdex/pkg/state"
)

const DefaultDecimals = 18

// Transfer is emitted on every balance movement, including the genesis mint.
type Transfer struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *uint256.Int   `json:"value"`
}

func (Transfer) EventName() string { return "Transfer" }

type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *uint256.Int   `json:"value"`
}

func (Approval) EventName() string { return "Approval" }

// Token is an ERC-20 style asset whose balances live in the shared StateDB,
// so token movements roll back together with exchange state.
type Token struct {
	db       *state.StateDB
	address  common.Address
	name     string
	symbol   string
	decimals uint8
}

// NewToken binds a token to db. If the token has no supply yet, the whole
// supply (in whole units) is minted to deployer.
func NewToken(db *state.StateDB, address common.Address, name, symbol string, decimals uint8, wholeSupply uint64, deployer common.Address) (*Token, error) {
	t := &Token{db: db, address: address, name: name, symbol: symbol, decimals: decimals}
	if !t.TotalSupply().IsZero() || wholeSupply == 0 {
		return t, nil
	}
	supply, err := Units(wholeSupply, decimals)
	if err != nil {
		return nil, fmt.Errorf("failed to scale supply of %s: %w", symbol, err)
	}
	db.SetUint(t.supplyKey(), supply)
	db.SetUint(t.balanceKey(deployer), supply)
	db.AddLog(address, Transfer{From: common.Address{}, To: deployer, Value: supply.Clone()})
	return t, nil
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

func (t *Token) TotalSupply() *uint256.Int { return t.db.GetUint(t.supplyKey()) }

func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	return t.db.GetUint(t.balanceKey(owner))
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	return t.db.GetUint(t.allowanceKey(owner, spender))
}

func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	if t.BalanceOf(from).Lt(amount) {
		return ErrInsufficientBalance
	}
	return t.move(from, to, amount)
}

func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrInvalidSpender
	}
	t.db.SetUint(t.allowanceKey(owner, spender), amount)
	t.db.AddLog(t.address, Approval{Owner: owner, Spender: spender, Value: amount.Clone()})
	return nil
}

func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if t.BalanceOf(from).Lt(amount) {
		return ErrInsufficientBalance
	}
	allowed := t.Allowance(from, spender)
	if allowed.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.db.SetUint(t.allowanceKey(from, spender), new(uint256.Int).Sub(allowed, amount))
	return nil
}

func (t *Token) move(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	fromBal := t.BalanceOf(from)
	t.db.SetUint(t.balanceKey(from), new(uint256.Int).Sub(fromBal, amount))

	toBal, overflow := new(uint256.Int).AddOverflow(t.BalanceOf(to), amount)
	if overflow {
		return ErrOverflow
	}
	t.db.SetUint(t.balanceKey(to), toBal)
	t.db.AddLog(t.address, Transfer{From: from, To: to, Value: amount.Clone()})
	return nil
}

// keys: tok:{token}:supply, tok:{token}:bal:{owner}, tok:{token}:alw:{owner}:{spender}
func (t *Token) supplyKey() string {
	return fmt.Sprintf("tok:%s:supply", t.address.Hex())
}

func (t *Token) balanceKey(owner common.Address) string {
	return fmt.Sprintf("tok:%s:bal:%s", t.address.Hex(), owner.Hex())
}

func (t *Token) allowanceKey(owner, spender common.Address) string {
	return fmt.Sprintf("tok:%s:alw:%s:%s", t.address.Hex(), owner.Hex(), spender.Hex())
}

var _ Asset = (*Token)(nil)
