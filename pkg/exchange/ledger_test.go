package exchange

import (
	"errors"
	"testing"

	"github.com/uhyunpark/flashdex/pkg/asset"
)

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	mustOK(t, f.token0.Approve(user1, exAddr, tokens(100)))

	r := mustReceipt(t)(f.ex.Deposit(user1, token0Addr, tokens(100)))

	if got := f.token0.BalanceOf(exAddr); !got.Eq(tokens(100)) {
		t.Errorf("exchange wallet = %s, want 100 tokens", got)
	}
	expectBalance(t, f, token0Addr, user1, tokens(100))
	if !f.ex.Custody(token0Addr).Eq(tokens(100)) {
		t.Errorf("custody = %s", f.ex.Custody(token0Addr))
	}

	// Transfer from the token, then the ledger event.
	if len(r.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(r.Events))
	}
	if _, ok := r.Events[0].Event.(asset.Transfer); !ok {
		t.Errorf("first event = %T, want asset.Transfer", r.Events[0].Event)
	}
	ev, ok := r.Events[1].Event.(TokensDeposited)
	if !ok {
		t.Fatalf("second event = %T, want TokensDeposited", r.Events[1].Event)
	}
	if ev.Asset != token0Addr || ev.Owner != user1 || !ev.Amount.Eq(tokens(100)) || !ev.Balance.Eq(tokens(100)) {
		t.Errorf("unexpected deposit event: %+v", ev)
	}
	if r.Events[1].Emitter != exAddr {
		t.Errorf("emitter = %s", r.Events[1].Emitter.Hex())
	}
}

func TestDepositWithoutApprovalFails(t *testing.T) {
	f := newFixture(t)
	before := f.db.Hash()

	_, err := f.ex.Deposit(user1, token0Addr, tokens(100))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want ErrInsufficientAllowance", err)
	}
	if !errors.Is(err, asset.ErrInsufficientAllowance) {
		t.Errorf("asset cause not preserved: %v", err)
	}
	if f.db.Hash() != before {
		t.Errorf("failed deposit changed state")
	}
}

func TestDepositUnknownAsset(t *testing.T) {
	f := newFixture(t)
	_, err := f.ex.Deposit(user1, deployer, tokens(1))
	if !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("err = %v, want ErrUnknownAsset", err)
	}
}

func TestWithdraw(t *testing.T) {
	f := depositFixture(t)

	r := mustReceipt(t)(f.ex.Withdraw(user1, token0Addr, tokens(100)))

	if got := f.token0.BalanceOf(exAddr); !got.IsZero() {
		t.Errorf("exchange wallet = %s, want 0", got)
	}
	if got := f.token0.BalanceOf(user1); !got.Eq(tokens(100)) {
		t.Errorf("user1 wallet = %s, want 100 tokens", got)
	}
	expectBalance(t, f, token0Addr, user1, tokens(0))

	last := r.Events[len(r.Events)-1]
	ev, ok := last.Event.(TokensWithdrawn)
	if !ok {
		t.Fatalf("last event = %T, want TokensWithdrawn", last.Event)
	}
	if ev.Asset != token0Addr || ev.Owner != user1 || !ev.Amount.Eq(tokens(100)) || !ev.Balance.IsZero() {
		t.Errorf("unexpected withdraw event: %+v", ev)
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	before := f.db.Hash()

	_, err := f.ex.Withdraw(user1, token0Addr, tokens(100))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if f.db.Hash() != before {
		t.Errorf("failed withdraw changed state")
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	mustOK(t, f.token0.Approve(user1, exAddr, tokens(50)))
	walletBefore := f.token0.BalanceOf(user1)

	mustReceipt(t)(f.ex.Deposit(user1, token0Addr, tokens(50)))
	mustReceipt(t)(f.ex.Withdraw(user1, token0Addr, tokens(50)))

	if got := f.token0.BalanceOf(user1); !got.Eq(walletBefore) {
		t.Errorf("wallet after round trip = %s, want %s", got, walletBefore)
	}
	expectBalance(t, f, token0Addr, user1, tokens(0))
	if err := f.ex.CheckSolvency(token0Addr); err != nil {
		t.Errorf("solvency: %v", err)
	}
}

func TestReserveExcludesCustody(t *testing.T) {
	f := depositFixture(t)
	mustOK(t, f.token0.Transfer(deployer, exAddr, tokens(500)))

	reserve, err := f.ex.Reserve(token0Addr)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !reserve.Eq(tokens(500)) {
		t.Errorf("reserve = %s, want 500 tokens", reserve)
	}
}
