package api

import (
	"github.com/holiman/uint256"

	"github.com/uhyunpark/flashdex/pkg/app/dex"
	"github.com/uhyunpark/flashdex/pkg/asset"
	"github.com/uhyunpark/flashdex/pkg/exchange"
)

// API response types for REST endpoints and WebSocket messages.
// Amounts are decimal strings in base units; Formatted fields are the same
// amount in whole tokens.

// ==============================
// REST Response Types
// ==============================

// ExchangeInfo is the exchange's static configuration
type ExchangeInfo struct {
	Address         string `json:"address"`
	FeeAccount      string `json:"feeAccount"`
	FeePercent      uint64 `json:"feePercent"`      // taker fee, percent of amountGet
	FlashLoanFeeBps uint64 `json:"flashLoanFeeBps"` // basis points of principal
	ChainID         int64  `json:"chainId"`
	OrderCount      uint64 `json:"orderCount"`
}

// TokenInfo is a listed token and the exchange's holdings of it
type TokenInfo struct {
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
	Custody     string `json:"custody"` // owed to ledger users
	Reserve     string `json:"reserve"` // available to flash loans
}

// Amount is a raw amount with its human-readable form
type Amount struct {
	Value     string `json:"value"`
	Formatted string `json:"formatted"`
}

// BalanceInfo is one owner's holdings of one token
type BalanceInfo struct {
	Asset  string `json:"asset"`
	Symbol string `json:"symbol"`
	Ledger Amount `json:"ledger"` // on the exchange
	Wallet Amount `json:"wallet"` // outside the exchange
}

// AccountInfo is the signing state of an address
type AccountInfo struct {
	Address   string        `json:"address"`
	Nonce     uint64        `json:"nonce"`     // last executed nonce
	NextNonce uint64        `json:"nextNonce"` // nonce the next tx must carry
	Balances  []BalanceInfo `json:"balances"`
}

// AccountSummary is a signer known to the chain
type AccountSummary struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

// OrderInfo is an order as stored on the exchange
type OrderInfo struct {
	ID         uint64 `json:"id"`
	Creator    string `json:"creator"`
	AssetGet   string `json:"assetGet"`
	AmountGet  string `json:"amountGet"`
	AssetGive  string `json:"assetGive"`
	AmountGive string `json:"amountGive"`
	Status     string `json:"status"` // "open" | "cancelled" | "filled"
	CreatedAt  int64  `json:"createdAt"`
	ClosedAt   int64  `json:"closedAt,omitempty"`
	Filler     string `json:"filler,omitempty"`
}

// ChainStatus is the sequencer's view of the chain
type ChainStatus struct {
	Height      uint64 `json:"height"`
	Timestamp   int64  `json:"timestamp"` // block time, unix seconds
	AppHash     string `json:"appHash"`
	MempoolSize int    `json:"mempoolSize"`
}

// SubmitTxResponse is the response to POST /api/v1/tx
type SubmitTxResponse struct {
	Status       string `json:"status"` // "submitted"
	TxHash       string `json:"txHash"`
	SubmissionID string `json:"submissionId"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["blocks", "events", "events:0x..."]
}

// WSAck answers a subscription request
type WSAck struct {
	Type     string   `json:"type"` // "subscribed", "unsubscribed" or "error"
	Channels []string `json:"channels,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// EventUpdate is broadcast for every event of a successful transaction
type EventUpdate struct {
	Type    string `json:"type"` // "event"
	Height  uint64 `json:"height"`
	TxHash  string `json:"txHash"`
	Sender  string `json:"sender"`
	Name    string `json:"name"`
	Emitter string `json:"emitter"`
	Data    any    `json:"data"`
}

// ReceiptUpdate is sent to the sender's channel for every executed tx
type ReceiptUpdate struct {
	Type    string      `json:"type"` // "receipt"
	Receipt ReceiptInfo `json:"receipt"`
}

// ReceiptInfo is a tx receipt with checksummed addresses
type ReceiptInfo struct {
	TxHash  string      `json:"txHash"`
	Height  uint64      `json:"height"`
	Index   int         `json:"index"`
	Sender  string      `json:"sender"`
	Type    string      `json:"type"`
	Nonce   uint64      `json:"nonce"`
	Status  string      `json:"status"` // "success" | "failed" | "rejected"
	Code    string      `json:"code"`
	Error   string      `json:"error,omitempty"`
	OrderID uint64      `json:"orderId,omitempty"`
	Events  []EventInfo `json:"events"`
}

// EventInfo is one event of a receipt
type EventInfo struct {
	Name    string `json:"name"`
	Emitter string `json:"emitter"`
	Data    any    `json:"data"`
}

// BlockUpdate is broadcast on every committed block
type BlockUpdate struct {
	Type      string `json:"type"` // "block"
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
	AppHash   string `json:"appHash"`
	Txs       int    `json:"txs"`
}

// ==============================
// Conversions
// ==============================

func amountOf(v *uint256.Int, decimals uint8) Amount {
	if v == nil {
		v = new(uint256.Int)
	}
	return Amount{Value: v.Dec(), Formatted: asset.FormatUnits(v, decimals)}
}

func exchangeInfo(e dex.ExchangeInfo) ExchangeInfo {
	return ExchangeInfo{
		Address:         e.Address.Hex(),
		FeeAccount:      e.FeeAccount.Hex(),
		FeePercent:      e.FeePercent,
		FlashLoanFeeBps: e.FlashLoanFeeBps,
		ChainID:         e.ChainID,
		OrderCount:      e.OrderCount,
	}
}

func tokenInfo(t dex.TokenInfo) TokenInfo {
	return TokenInfo{
		Address:     t.Address.Hex(),
		Symbol:      t.Symbol,
		Name:        t.Name,
		Decimals:    t.Decimals,
		TotalSupply: t.TotalSupply.Dec(),
		Custody:     t.Custody.Dec(),
		Reserve:     t.Reserve.Dec(),
	}
}

func receiptInfo(rc dex.Receipt) ReceiptInfo {
	info := ReceiptInfo{
		TxHash:  rc.TxHash,
		Height:  rc.Height,
		Index:   rc.Index,
		Sender:  rc.Sender.Hex(),
		Type:    string(rc.Type),
		Nonce:   rc.Nonce,
		Status:  rc.Status,
		Code:    rc.Code,
		Error:   rc.Error,
		OrderID: rc.OrderID,
		Events:  make([]EventInfo, len(rc.Events)),
	}
	for i, ev := range rc.Events {
		info.Events[i] = EventInfo{Name: ev.Name, Emitter: ev.Emitter.Hex(), Data: ev.Data}
	}
	return info
}

func orderInfo(o *exchange.Order) OrderInfo {
	info := OrderInfo{
		ID:         o.ID,
		Creator:    o.Creator.Hex(),
		AssetGet:   o.AssetGet.Hex(),
		AmountGet:  o.AmountGet.Dec(),
		AssetGive:  o.AssetGive.Hex(),
		AmountGive: o.AmountGive.Dec(),
		Status:     o.Status.String(),
		CreatedAt:  o.CreatedAt,
		ClosedAt:   o.ClosedAt,
	}
	if o.Status == exchange.StatusFilled {
		info.Filler = o.Filler.Hex()
	}
	return info
}
