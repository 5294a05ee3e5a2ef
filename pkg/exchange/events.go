package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type TokensDeposited struct {
	Asset   common.Address `json:"asset"`
	Owner   common.Address `json:"owner"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"`
}

func (TokensDeposited) EventName() string { return "TokensDeposited" }

type TokensWithdrawn struct {
	Asset   common.Address `json:"asset"`
	Owner   common.Address `json:"owner"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"`
}

func (TokensWithdrawn) EventName() string { return "TokensWithdrawn" }

// OrderCreated and OrderCancelled carry the full order snapshot.
type OrderCreated struct {
	ID         uint64         `json:"id"`
	Creator    common.Address `json:"creator"`
	AssetGet   common.Address `json:"assetGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	AssetGive  common.Address `json:"assetGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

func (OrderCreated) EventName() string { return "OrderCreated" }

type OrderCancelled struct {
	ID         uint64         `json:"id"`
	Creator    common.Address `json:"creator"`
	AssetGet   common.Address `json:"assetGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	AssetGive  common.Address `json:"assetGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

func (OrderCancelled) EventName() string { return "OrderCancelled" }

type Trade struct {
	ID         uint64         `json:"id"`
	Creator    common.Address `json:"creator"`
	Filler     common.Address `json:"filler"`
	AssetGet   common.Address `json:"assetGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	AssetGive  common.Address `json:"assetGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	Fee        *uint256.Int   `json:"fee"`
	FeeAccount common.Address `json:"feeAccount"`
	Timestamp  int64          `json:"timestamp"`
}

func (Trade) EventName() string { return "Trade" }

type FlashLoan struct {
	Borrower common.Address `json:"borrower"`
	Asset    common.Address `json:"asset"`
	Amount   *uint256.Int   `json:"amount"`
	Fee      *uint256.Int   `json:"fee"`
}

func (FlashLoan) EventName() string { return "FlashLoan" }
