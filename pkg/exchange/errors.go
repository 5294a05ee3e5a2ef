package exchange

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/flashdex/pkg/asset"
)

var (
	ErrInsufficientBalance   = errors.New("Exchange: Insufficient balance")
	ErrInsufficientAllowance = errors.New("Exchange: Insufficient allowance")
	ErrInvalidRecipient      = errors.New("Exchange: Recipient address is 0")
	ErrOrderNotFound         = errors.New("Exchange: order does not exist")
	ErrNotOrderOwner         = errors.New("Exchange: not the order owner")
	ErrOrderAlreadyFilled    = errors.New("Exchange: order has already been filled")
	ErrOrderCancelled        = errors.New("Exchange: order has been cancelled")
	ErrFlashLoanNotRepaid    = errors.New("Exchange: flash loan not repaid")
	ErrTransferRejected      = errors.New("Exchange: token transfer rejected")
	ErrUnknownAsset          = errors.New("Exchange: unknown asset")
	ErrAmountOverflow        = errors.New("Exchange: amount overflow")
	ErrNoBorrower            = errors.New("Exchange: no flash loan borrower registered")
	ErrLoanExpired           = errors.New("Exchange: flash loan capability used after return")
)

// wrapAssetErr maps an Asset-side failure onto the exchange taxonomy while
// keeping the original cause reachable through errors.Is.
func wrapAssetErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, asset.ErrInsufficientAllowance):
		return fmt.Errorf("%w: %w", ErrInsufficientAllowance, err)
	case errors.Is(err, asset.ErrInvalidRecipient):
		return fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}
}

// codes is matched in order. Outer failure kinds come first so a wrapped
// cause never hides them.
var codes = []struct {
	err  error
	code string
}{
	{ErrFlashLoanNotRepaid, "flash_loan_not_repaid"},
	{ErrTransferRejected, "transfer_rejected"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInsufficientAllowance, "insufficient_allowance"},
	{ErrInvalidRecipient, "invalid_recipient"},
	{ErrOrderNotFound, "order_not_found"},
	{ErrNotOrderOwner, "not_order_owner"},
	{ErrOrderAlreadyFilled, "order_already_filled"},
	{ErrOrderCancelled, "order_cancelled"},
	{ErrUnknownAsset, "unknown_asset"},
	{ErrAmountOverflow, "amount_overflow"},
	{ErrNoBorrower, "no_borrower"},
	{ErrLoanExpired, "loan_expired"},
}

// Code returns a stable identifier for err, "ok" for nil and "internal" for
// errors outside the exchange taxonomy.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
