package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type OrderStatus uint8

const (
	StatusOpen OrderStatus = iota
	StatusCancelled
	StatusFilled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusCancelled:
		return "cancelled"
	case StatusFilled:
		return "filled"
	default:
		return "unknown"
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OrderStatus) UnmarshalText(b []byte) error {
	st, err := ParseOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "open":
		return StatusOpen, nil
	case "cancelled":
		return StatusCancelled, nil
	case "filled":
		return StatusFilled, nil
	}
	return 0, fmt.Errorf("unknown order status %q", s)
}

// Order offers AmountGive of AssetGive in exchange for AmountGet of AssetGet.
// Orders are never deleted; ClosedAt and Filler are set when they leave Open.
type Order struct {
	ID         uint64         `json:"id"`
	Creator    common.Address `json:"creator"`
	AssetGet   common.Address `json:"assetGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	AssetGive  common.Address `json:"assetGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	CreatedAt  int64          `json:"createdAt"`
	Status     OrderStatus    `json:"status"`
	ClosedAt   int64          `json:"closedAt,omitempty"`
	Filler     common.Address `json:"filler"`
}

// MakeOrder records a new open order. The caller's ledger balance of
// assetGive must cover amountGive; the funds are not locked.
func (e *Exchange) MakeOrder(caller, assetGet common.Address, amountGet *uint256.Int, assetGive common.Address, amountGive *uint256.Int) (*Receipt, error) {
	return e.atomic(func() (uint64, error) {
		if _, err := e.asset(assetGet); err != nil {
			return 0, err
		}
		if _, err := e.asset(assetGive); err != nil {
			return 0, err
		}
		if bal := e.TotalBalanceOf(assetGive, caller); bal.Lt(amountGive) {
			return 0, fmt.Errorf("%w: %s holds %s, order gives %s", ErrInsufficientBalance, caller.Hex(), bal, amountGive)
		}

		id := e.OrderCount() + 1
		o := &Order{
			ID:         id,
			Creator:    caller,
			AssetGet:   assetGet,
			AmountGet:  amountGet.Clone(),
			AssetGive:  assetGive,
			AmountGive: amountGive.Clone(),
			CreatedAt:  e.now(),
			Status:     StatusOpen,
		}
		if err := e.saveOrder(o); err != nil {
			return 0, err
		}
		e.db.Set(e.orderCountKey(), []byte(strconv.FormatUint(id, 10)))

		e.emit(OrderCreated{
			ID:         o.ID,
			Creator:    o.Creator,
			AssetGet:   o.AssetGet,
			AmountGet:  o.AmountGet.Clone(),
			AssetGive:  o.AssetGive,
			AmountGive: o.AmountGive.Clone(),
			Timestamp:  o.CreatedAt,
		})
		return id, nil
	})
}

// CancelOrder closes an open order. Only its creator may cancel it.
func (e *Exchange) CancelOrder(caller common.Address, id uint64) (*Receipt, error) {
	return e.atomic(func() (uint64, error) {
		o, err := e.loadOrder(id)
		if err != nil {
			return 0, err
		}
		if o.Creator != caller {
			return 0, ErrNotOrderOwner
		}
		switch o.Status {
		case StatusFilled:
			return 0, ErrOrderAlreadyFilled
		case StatusCancelled:
			return 0, ErrOrderCancelled
		}

		o.Status = StatusCancelled
		o.ClosedAt = e.now()
		if err := e.saveOrder(o); err != nil {
			return 0, err
		}

		e.emit(OrderCancelled{
			ID:         o.ID,
			Creator:    o.Creator,
			AssetGet:   o.AssetGet,
			AmountGet:  o.AmountGet.Clone(),
			AssetGive:  o.AssetGive,
			AmountGive: o.AmountGive.Clone(),
			Timestamp:  o.ClosedAt,
		})
		return id, nil
	})
}

// OrderCount is the number of orders ever created.
func (e *Exchange) OrderCount() uint64 {
	v, ok := e.db.Get(e.orderCountKey())
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		panic(fmt.Errorf("corrupt order count %q: %w", v, err))
	}
	return n
}

func (e *Exchange) IsOrderCancelled(id uint64) bool {
	o, err := e.loadOrder(id)
	return err == nil && o.Status == StatusCancelled
}

func (e *Exchange) IsOrderFilled(id uint64) bool {
	o, err := e.loadOrder(id)
	return err == nil && o.Status == StatusFilled
}

// Order returns a copy of the stored order.
func (e *Exchange) Order(id uint64) (*Order, error) {
	return e.loadOrder(id)
}

// OrderFilter narrows Orders. Zero values match everything.
type OrderFilter struct {
	Creator common.Address
	Status  *OrderStatus
}

// Orders returns matching orders in id order.
func (e *Exchange) Orders(f OrderFilter) ([]*Order, error) {
	var (
		out     []*Order
		scanErr error
	)
	e.db.Range(e.orderPrefix(), func(key string, value []byte) bool {
		var o Order
		if err := json.Unmarshal(value, &o); err != nil {
			scanErr = fmt.Errorf("failed to unmarshal order %s: %w", key, err)
			return false
		}
		if f.Creator != (common.Address{}) && o.Creator != f.Creator {
			return true
		}
		if f.Status != nil && o.Status != *f.Status {
			return true
		}
		out = append(out, &o)
		return true
	})
	return out, scanErr
}

func (e *Exchange) loadOrder(id uint64) (*Order, error) {
	data, ok := e.db.Get(e.orderKey(id))
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order %d: %w", id, err)
	}
	return &o, nil
}

func (e *Exchange) saveOrder(o *Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	e.db.Set(e.orderKey(o.ID), data)
	return nil
}
