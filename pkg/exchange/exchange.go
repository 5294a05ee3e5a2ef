package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flashdex/pkg/asset"
	"github.com/uhyunpark/flashdex/pkg/state"
)

const (
	DefaultFeePercent      = 10
	DefaultFlashLoanFeeBps = 9
)

type Config struct {
	Address         common.Address // custody identity holding deposited assets
	FeeAccount      common.Address
	FeePercent      uint64 // taker fee, percent of amountGet
	FlashLoanFeeBps uint64 // flash loan fee, basis points of principal
}

// Exchange is the ledger, order book, settlement engine and flash lender.
//
// All state lives in the StateDB handle it was built with. Exchange is not
// safe for concurrent use: the host applies one operation at a time.
type Exchange struct {
	db        *state.StateDB
	assets    *asset.Registry
	cfg       Config
	borrowers map[common.Address]FlashBorrower
}

// Receipt is the result of a successful mutating operation.
// Events holds exactly the logs emitted by the operation, in order,
// including those of the assets it touched.
type Receipt struct {
	OrderID uint64
	Events  []state.Log
}

func New(db *state.StateDB, assets *asset.Registry, cfg Config) (*Exchange, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("exchange address must be set")
	}
	if cfg.FeeAccount == (common.Address{}) {
		return nil, fmt.Errorf("fee account must be set")
	}
	if cfg.FeePercent > 100 {
		return nil, fmt.Errorf("fee percent %d exceeds 100", cfg.FeePercent)
	}
	if cfg.FlashLoanFeeBps > 10_000 {
		return nil, fmt.Errorf("flash loan fee %d bps exceeds 10000", cfg.FlashLoanFeeBps)
	}
	return &Exchange{
		db:        db,
		assets:    assets,
		cfg:       cfg,
		borrowers: make(map[common.Address]FlashBorrower),
	}, nil
}

func (e *Exchange) Address() common.Address    { return e.cfg.Address }
func (e *Exchange) FeeAccount() common.Address { return e.cfg.FeeAccount }
func (e *Exchange) FeePercent() uint64         { return e.cfg.FeePercent }
func (e *Exchange) FlashLoanFeeBps() uint64    { return e.cfg.FlashLoanFeeBps }

// atomic runs fn inside a snapshot. On error every effect of fn, including
// nested operations and emitted events, is reverted.
func (e *Exchange) atomic(fn func() (uint64, error)) (*Receipt, error) {
	mark := e.db.LogCount()
	snap := e.db.Snapshot()

	id, err := fn()
	if err != nil {
		e.db.RevertToSnapshot(snap)
		return nil, err
	}
	return &Receipt{OrderID: id, Events: e.db.LogsSince(mark)}, nil
}

func (e *Exchange) emit(ev state.Event) {
	e.db.AddLog(e.cfg.Address, ev)
}

func (e *Exchange) now() int64 {
	return e.db.BlockContext().Time
}

func (e *Exchange) asset(addr common.Address) (asset.Asset, error) {
	a, ok := e.assets.Get(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, addr.Hex())
	}
	return a, nil
}

// keys: ex:{exchange}:bal:{asset}:{owner}, ex:{exchange}:custody:{asset},
// ex:{exchange}:ord:{id}, ex:{exchange}:ordcount
func (e *Exchange) balanceKey(assetAddr, owner common.Address) string {
	return fmt.Sprintf("ex:%s:bal:%s:%s", e.cfg.Address.Hex(), assetAddr.Hex(), owner.Hex())
}

func (e *Exchange) custodyKey(assetAddr common.Address) string {
	return fmt.Sprintf("ex:%s:custody:%s", e.cfg.Address.Hex(), assetAddr.Hex())
}

func (e *Exchange) orderPrefix() string {
	return fmt.Sprintf("ex:%s:ord:", e.cfg.Address.Hex())
}

func (e *Exchange) orderKey(id uint64) string {
	return fmt.Sprintf("%s%020d", e.orderPrefix(), id)
}

func (e *Exchange) orderCountKey() string {
	return fmt.Sprintf("ex:%s:ordcount", e.cfg.Address.Hex())
}
