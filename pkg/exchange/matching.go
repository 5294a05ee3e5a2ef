package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TakerFee is amountGet * feePercent / 100, truncated.
func (e *Exchange) TakerFee(amountGet *uint256.Int) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulDivOverflow(amountGet, uint256.NewInt(e.cfg.FeePercent), uint256.NewInt(100))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return fee, nil
}

// FillOrder settles order id against taker. The taker pays amountGet plus
// the fee in assetGet and receives amountGive of assetGive. The maker's
// balance of assetGive is re-checked here since orders do not lock funds.
func (e *Exchange) FillOrder(taker common.Address, id uint64) (*Receipt, error) {
	return e.atomic(func() (uint64, error) {
		o, err := e.loadOrder(id)
		if err != nil {
			return 0, err
		}
		switch o.Status {
		case StatusCancelled:
			return 0, ErrOrderCancelled
		case StatusFilled:
			return 0, ErrOrderAlreadyFilled
		}

		fee, err := e.TakerFee(o.AmountGet)
		if err != nil {
			return 0, err
		}
		cost, overflow := new(uint256.Int).AddOverflow(o.AmountGet, fee)
		if overflow {
			return 0, ErrAmountOverflow
		}

		if _, err := e.debit(o.AssetGet, taker, cost); err != nil {
			return 0, err
		}
		if _, err := e.credit(o.AssetGet, o.Creator, o.AmountGet); err != nil {
			return 0, err
		}
		if _, err := e.credit(o.AssetGet, e.cfg.FeeAccount, fee); err != nil {
			return 0, err
		}
		if _, err := e.debit(o.AssetGive, o.Creator, o.AmountGive); err != nil {
			return 0, err
		}
		if _, err := e.credit(o.AssetGive, taker, o.AmountGive); err != nil {
			return 0, err
		}

		o.Status = StatusFilled
		o.ClosedAt = e.now()
		o.Filler = taker
		if err := e.saveOrder(o); err != nil {
			return 0, err
		}

		e.emit(Trade{
			ID:         o.ID,
			Creator:    o.Creator,
			Filler:     taker,
			AssetGet:   o.AssetGet,
			AmountGet:  o.AmountGet.Clone(),
			AssetGive:  o.AssetGive,
			AmountGive: o.AmountGive.Clone(),
			Fee:        fee,
			FeeAccount: e.cfg.FeeAccount,
			Timestamp:  o.ClosedAt,
		})
		return id, nil
	})
}
