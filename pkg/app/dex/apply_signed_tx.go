package dex

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/flashdex/pkg/app/core/transaction"
	"github.com/uhyunpark/flashdex/pkg/asset"
	"github.com/uhyunpark/flashdex/pkg/exchange"
	"github.com/uhyunpark/flashdex/pkg/state"
)

const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"   // executed and reverted; nonce consumed
	StatusRejected = "rejected" // not executed; nonce untouched
)

// Receipt is the outcome of one transaction in a block.
type Receipt struct {
	TxHash  string             `json:"txHash"`
	Height  uint64             `json:"height"`
	Index   int                `json:"index"`
	Sender  common.Address     `json:"sender"`
	Type    transaction.TxType `json:"type"`
	Nonce   uint64             `json:"nonce"`
	Status  string             `json:"status"`
	Code    string             `json:"code"`
	Error   string             `json:"error,omitempty"`
	OrderID uint64             `json:"orderId,omitempty"`
	Events  []EventRecord      `json:"events"`
}

// EventRecord is an emitted event as exposed to clients.
type EventRecord struct {
	Name    string         `json:"name"`
	Emitter common.Address `json:"emitter"`
	Data    state.Event    `json:"data"`
}

func TxHash(raw []byte) string { return ethcrypto.Keccak256Hash(raw).Hex() }

// applyTx verifies and executes one transaction. The caller holds the write
// lock and has set the block context.
func (a *App) applyTx(raw []byte) Receipt {
	rc := Receipt{
		TxHash: TxHash(raw),
		Height: a.db.BlockContext().Height,
		Events: []EventRecord{},
	}

	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return a.reject(rc, "invalid_tx", err)
	}
	rc.Type = tx.Type

	sender, err := a.verifier.Verify(tx)
	if err != nil {
		return a.reject(rc, "bad_signature", err)
	}
	rc.Sender = sender

	nonce, _ := tx.NonceValue()
	rc.Nonce = nonce
	// The nonce is consumed even if the operation reverts.
	if err := a.nonces.Use(sender, nonce); err != nil {
		return a.reject(rc, "bad_nonce", err)
	}

	res, err := a.execute(sender, tx)
	if err != nil {
		rc.Status = StatusFailed
		rc.Code = codeOf(err)
		rc.Error = err.Error()
		a.logger.Debug("tx_failed",
			zap.String("tx", rc.TxHash),
			zap.String("type", string(rc.Type)),
			zap.String("sender", sender.Hex()),
			zap.String("code", rc.Code),
			zap.Error(err),
		)
		return rc
	}

	rc.Status = StatusSuccess
	rc.Code = "ok"
	rc.OrderID = res.OrderID
	for _, l := range res.Events {
		rc.Events = append(rc.Events, EventRecord{Name: l.Event.EventName(), Emitter: l.Emitter, Data: l.Event})
	}
	return rc
}

func (a *App) reject(rc Receipt, code string, err error) Receipt {
	rc.Status = StatusRejected
	rc.Code = code
	rc.Error = err.Error()
	a.logger.Debug("tx_rejected", zap.String("tx", rc.TxHash), zap.String("code", code), zap.Error(err))
	return rc
}

func (a *App) execute(sender common.Address, tx *transaction.SignedTransaction) (*exchange.Receipt, error) {
	switch tx.Type {
	case transaction.TxTypeTransfer:
		tok, amount, err := a.tokenAndAmount(tx.Transfer.Asset, tx.Transfer.Amount)
		if err != nil {
			return nil, err
		}
		to := common.HexToAddress(tx.Transfer.To)
		return a.tokenOp(func() error { return tok.Transfer(sender, to, amount) })

	case transaction.TxTypeApprove:
		tok, amount, err := a.tokenAndAmount(tx.Approve.Asset, tx.Approve.Amount)
		if err != nil {
			return nil, err
		}
		spender := common.HexToAddress(tx.Approve.Spender)
		return a.tokenOp(func() error { return tok.Approve(sender, spender, amount) })

	case transaction.TxTypeDeposit:
		assetAddr, amount, err := fundsArgs(tx.Funds)
		if err != nil {
			return nil, err
		}
		return a.ex.Deposit(sender, assetAddr, amount)

	case transaction.TxTypeWithdraw:
		assetAddr, amount, err := fundsArgs(tx.Funds)
		if err != nil {
			return nil, err
		}
		return a.ex.Withdraw(sender, assetAddr, amount)

	case transaction.TxTypeFlashLoan:
		assetAddr, amount, err := fundsArgs(tx.Funds)
		if err != nil {
			return nil, err
		}
		if _, ok := a.ex.Borrower(sender); ok {
			return a.ex.GetFlashLoan(sender, assetAddr, amount)
		}
		return a.ex.FlashLoan(sender, assetAddr, amount, exchange.RepayingBorrower{})

	case transaction.TxTypeMakeOrder:
		o := tx.MakeOrder
		amountGet, err := transaction.ParseAmount(o.AmountGet)
		if err != nil {
			return nil, err
		}
		amountGive, err := transaction.ParseAmount(o.AmountGive)
		if err != nil {
			return nil, err
		}
		return a.ex.MakeOrder(sender, common.HexToAddress(o.AssetGet), amountGet, common.HexToAddress(o.AssetGive), amountGive)

	case transaction.TxTypeCancelOrder:
		id, err := transaction.ParseOrderID(tx.OrderRef.OrderID)
		if err != nil {
			return nil, err
		}
		return a.ex.CancelOrder(sender, id)

	case transaction.TxTypeFillOrder:
		id, err := transaction.ParseOrderID(tx.OrderRef.OrderID)
		if err != nil {
			return nil, err
		}
		return a.ex.FillOrder(sender, id)
	}
	return nil, fmt.Errorf("unsupported transaction type: %s", tx.Type)
}

// tokenOp runs a direct token call with the same all-or-nothing semantics
// as the exchange's own operations.
func (a *App) tokenOp(fn func() error) (*exchange.Receipt, error) {
	mark := a.db.LogCount()
	snap := a.db.Snapshot()
	if err := fn(); err != nil {
		a.db.RevertToSnapshot(snap)
		return nil, err
	}
	return &exchange.Receipt{Events: a.db.LogsSince(mark)}, nil
}

func (a *App) tokenAndAmount(assetHex, amountStr string) (asset.Asset, *uint256.Int, error) {
	tok, ok := a.assets.Get(common.HexToAddress(assetHex))
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", exchange.ErrUnknownAsset, assetHex)
	}
	amount, err := transaction.ParseAmount(amountStr)
	if err != nil {
		return nil, nil, err
	}
	return tok, amount, nil
}

func fundsArgs(p *transaction.FundsPayload) (common.Address, *uint256.Int, error) {
	amount, err := transaction.ParseAmount(p.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return common.HexToAddress(p.Asset), amount, nil
}

// codeOf extends exchange.Code with the errors of direct token calls, which
// reach the host unwrapped.
func codeOf(err error) string {
	if code := exchange.Code(err); code != "internal" {
		return code
	}
	switch {
	case errors.Is(err, asset.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, asset.ErrInsufficientAllowance):
		return "insufficient_allowance"
	case errors.Is(err, asset.ErrInvalidRecipient):
		return "invalid_recipient"
	case errors.Is(err, asset.ErrInvalidSpender):
		return "invalid_spender"
	case errors.Is(err, asset.ErrOverflow):
		return "amount_overflow"
	}
	return "internal"
}
