package dex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/flashdex/pkg/asset"
	"github.com/uhyunpark/flashdex/pkg/exchange"
	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

// TokenInfo describes a listed asset and the exchange's holdings of it.
type TokenInfo struct {
	Address     common.Address `json:"address"`
	Symbol      string         `json:"symbol"`
	Name        string         `json:"name"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply *uint256.Int   `json:"totalSupply"`
	Custody     *uint256.Int   `json:"custody"` // owed to ledger users
	Reserve     *uint256.Int   `json:"reserve"` // lendable
}

// ExchangeInfo is the exchange's static configuration.
type ExchangeInfo struct {
	Address         common.Address `json:"address"`
	FeeAccount      common.Address `json:"feeAccount"`
	FeePercent      uint64         `json:"feePercent"`
	FlashLoanFeeBps uint64         `json:"flashLoanFeeBps"`
	ChainID         int64          `json:"chainId"`
	OrderCount      uint64         `json:"orderCount"`
}

type ChainStatus struct {
	Height      uint64         `json:"height"`
	Timestamp   int64          `json:"timestamp"`
	AppHash     sequencer.Hash `json:"-"`
	AppHashHex  string         `json:"appHash"`
	MempoolSize int            `json:"mempoolSize"`
}

func (a *App) Exchange() ExchangeInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ExchangeInfo{
		Address:         a.ex.Address(),
		FeeAccount:      a.ex.FeeAccount(),
		FeePercent:      a.ex.FeePercent(),
		FlashLoanFeeBps: a.ex.FlashLoanFeeBps(),
		ChainID:         a.cfg.Exchange.ChainID,
		OrderCount:      a.ex.OrderCount(),
	}
}

func (a *App) ExchangeAddress() common.Address { return a.ex.Address() }
func (a *App) FeeAccount() common.Address      { return a.ex.FeeAccount() }
func (a *App) FeePercent() uint64              { return a.ex.FeePercent() }
func (a *App) FlashLoanFeeBps() uint64         { return a.ex.FlashLoanFeeBps() }

func (a *App) Tokens() []TokenInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	list := a.assets.List()
	out := make([]TokenInfo, 0, len(list))
	for _, t := range list {
		out = append(out, a.tokenInfo(t))
	}
	return out
}

func (a *App) tokenInfo(t asset.Asset) TokenInfo {
	reserve, err := a.ex.Reserve(t.Address())
	if err != nil {
		reserve = new(uint256.Int)
	}
	return TokenInfo{
		Address:     t.Address(),
		Symbol:      t.Symbol(),
		Name:        t.Name(),
		Decimals:    t.Decimals(),
		TotalSupply: t.TotalSupply(),
		Custody:     a.ex.Custody(t.Address()),
		Reserve:     reserve,
	}
}

// ResolveAsset accepts an address or a symbol.
func (a *App) ResolveAsset(ref string) (TokenInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, err := a.assets.Resolve(ref)
	if err != nil {
		return TokenInfo{}, err
	}
	return a.tokenInfo(t), nil
}

// TotalBalanceOf is the owner's ledger balance on the exchange.
func (a *App) TotalBalanceOf(assetAddr, owner common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ex.TotalBalanceOf(assetAddr, owner)
}

// TokenBalance is the owner's wallet balance, outside the exchange.
func (a *App) TokenBalance(assetAddr, owner common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.assets.Get(assetAddr)
	if !ok {
		return new(uint256.Int)
	}
	return t.BalanceOf(owner)
}

func (a *App) Allowance(assetAddr, owner, spender common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.assets.Get(assetAddr)
	if !ok {
		return new(uint256.Int)
	}
	return t.Allowance(owner, spender)
}

func (a *App) Order(id uint64) (*exchange.Order, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ex.Order(id)
}

func (a *App) Orders(f exchange.OrderFilter) ([]*exchange.Order, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ex.Orders(f)
}

func (a *App) OrderCount() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ex.OrderCount()
}

func (a *App) IsOrderCancelled(id uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ex.IsOrderCancelled(id)
}

func (a *App) IsOrderFilled(id uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ex.IsOrderFilled(id)
}

// Nonce is the last executed nonce of addr; the next tx must use Nonce+1.
func (a *App) Nonce(addr common.Address) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nonces.Get(addr)
}

// AccountNonce is one signer and its last executed nonce.
type AccountNonce struct {
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
}

// Accounts lists every signer that has executed at least one transaction.
func (a *App) Accounts() []AccountNonce {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []AccountNonce
	a.nonces.Range(func(addr common.Address, nonce uint64) bool {
		out = append(out, AccountNonce{Address: addr, Nonce: nonce})
		return true
	})
	return out
}

func (a *App) Height() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.height
}

func (a *App) AppHash() sequencer.Hash {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.appHash
}

// StateHash is the hash of the raw state, without height and time.
func (a *App) StateHash() [32]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db.Hash()
}

func (a *App) MempoolSize() int { return a.mempool.Len() }

func (a *App) Status() ChainStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ChainStatus{
		Height:      a.height,
		Timestamp:   a.timestamp,
		AppHash:     a.appHash,
		AppHashHex:  "0x" + a.appHash.String(),
		MempoolSize: a.mempool.Len(),
	}
}
