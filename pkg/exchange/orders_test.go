package exchange

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flashdex/pkg/state"
)

func TestMakeOrder(t *testing.T) {
	f := depositFixture(t)

	r := mustReceipt(t)(f.ex.MakeOrder(user1, token1Addr, tokens(1), token0Addr, tokens(1)))

	if r.OrderID != 1 {
		t.Errorf("order id = %d, want 1", r.OrderID)
	}
	if f.ex.OrderCount() != 1 {
		t.Errorf("order count = %d, want 1", f.ex.OrderCount())
	}
	if len(r.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(r.Events))
	}
	ev, ok := r.Events[0].Event.(OrderCreated)
	if !ok {
		t.Fatalf("event = %T, want OrderCreated", r.Events[0].Event)
	}
	if ev.ID != 1 || ev.Creator != user1 || ev.AssetGet != token1Addr || !ev.AmountGet.Eq(tokens(1)) ||
		ev.AssetGive != token0Addr || !ev.AmountGive.Eq(tokens(1)) || ev.Timestamp != 1_700_000_000 {
		t.Errorf("unexpected OrderCreated: %+v", ev)
	}

	o, err := f.ex.Order(1)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if o.Status != StatusOpen || o.CreatedAt != 1_700_000_000 {
		t.Errorf("unexpected stored order: %+v", o)
	}

	// Funds are not locked by an open order.
	expectBalance(t, f, token0Addr, user1, tokens(100))
}

func TestMakeOrderIDsIncrease(t *testing.T) {
	f := depositFixture(t)
	for want := uint64(1); want <= 3; want++ {
		r := mustReceipt(t)(f.ex.MakeOrder(user1, token1Addr, tokens(1), token0Addr, tokens(1)))
		if r.OrderID != want {
			t.Fatalf("order id = %d, want %d", r.OrderID, want)
		}
	}
}

func TestMakeOrderWithoutBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.ex.MakeOrder(user1, token1Addr, tokens(1), token0Addr, tokens(1))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if f.ex.OrderCount() != 0 {
		t.Errorf("order count = %d, want 0", f.ex.OrderCount())
	}
}

func TestCancelOrder(t *testing.T) {
	f := orderFixture(t)
	f.db.SetBlockContext(state.BlockContext{Height: 2, Time: 1_700_000_100})

	r := mustReceipt(t)(f.ex.CancelOrder(user1, 1))

	if !f.ex.IsOrderCancelled(1) {
		t.Errorf("order 1 should be cancelled")
	}
	if f.ex.IsOrderFilled(1) {
		t.Errorf("order 1 should not be filled")
	}
	ev, ok := r.Events[0].Event.(OrderCancelled)
	if !ok {
		t.Fatalf("event = %T, want OrderCancelled", r.Events[0].Event)
	}
	if ev.ID != 1 || ev.Creator != user1 || ev.Timestamp != 1_700_000_100 {
		t.Errorf("unexpected OrderCancelled: %+v", ev)
	}
	if f.ex.OrderCount() != 1 {
		t.Errorf("cancelled orders still count: got %d", f.ex.OrderCount())
	}
}

func TestCancelOrderFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture)
		caller common.Address
		id     uint64
		want   error
	}{
		{name: "invalid id", caller: user1, id: 999, want: ErrOrderNotFound},
		{name: "not the owner", caller: user2, id: 1, want: ErrNotOrderOwner},
		{
			name:   "already cancelled",
			caller: user1,
			id:     1,
			want:   ErrOrderCancelled,
			setup: func(t *testing.T, f *fixture) {
				mustReceipt(t)(f.ex.CancelOrder(user1, 1))
			},
		},
		{
			name:   "already filled",
			caller: user1,
			id:     1,
			want:   ErrOrderAlreadyFilled,
			setup: func(t *testing.T, f *fixture) {
				mustReceipt(t)(f.ex.FillOrder(user2, 1))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := orderFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			before := f.db.Hash()
			_, err := f.ex.CancelOrder(tt.caller, tt.id)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if f.db.Hash() != before {
				t.Errorf("failed cancel changed state")
			}
		})
	}
}

func TestOrdersFilter(t *testing.T) {
	f := depositFixture(t)
	mustReceipt(t)(f.ex.MakeOrder(user1, token1Addr, tokens(1), token0Addr, tokens(1)))
	mustReceipt(t)(f.ex.MakeOrder(user2, token0Addr, tokens(1), token1Addr, tokens(1)))
	mustReceipt(t)(f.ex.MakeOrder(user1, token1Addr, tokens(2), token0Addr, tokens(2)))
	mustReceipt(t)(f.ex.CancelOrder(user1, 3))

	all, err := f.ex.Orders(OrderFilter{})
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
		t.Fatalf("unexpected order listing: %d orders", len(all))
	}

	byUser1, _ := f.ex.Orders(OrderFilter{Creator: user1})
	if len(byUser1) != 2 {
		t.Errorf("user1 orders = %d, want 2", len(byUser1))
	}

	open := StatusOpen
	openOrders, _ := f.ex.Orders(OrderFilter{Status: &open})
	if len(openOrders) != 2 {
		t.Errorf("open orders = %d, want 2", len(openOrders))
	}
}

func TestOrderStatusText(t *testing.T) {
	for _, s := range []OrderStatus{StatusOpen, StatusCancelled, StatusFilled} {
		parsed, err := ParseOrderStatus(s.String())
		if err != nil || parsed != s {
			t.Errorf("ParseOrderStatus(%s) = %v, %v", s, parsed, err)
		}
	}
	if _, err := ParseOrderStatus("partial"); err == nil {
		t.Errorf("expected error for unknown status")
	}
}
