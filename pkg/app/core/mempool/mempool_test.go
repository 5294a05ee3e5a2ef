package mempool

import (
	"errors"
	"fmt"
	"testing"
)

func TestMempool_FIFO(t *testing.T) {
	m := NewMempool()

	txs := []string{
		`{"type":"make_order","nonce":"1","signature":"0x1111"}`,
		`{"type":"cancel_order","nonce":"2","signature":"0x2222"}`,
		`{"type":"deposit","nonce":"1","signature":"0x3333"}`,
		`{"type":"fill_order","nonce":"2","signature":"0x4444"}`,
	}
	for _, tx := range txs {
		if err := m.PushRaw([]byte(tx)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	got := m.SelectForProposal(10000)
	if len(got) != len(txs) {
		t.Fatalf("expected %d txs, got %d", len(txs), len(got))
	}
	for i, want := range txs {
		if string(got[i]) != want {
			t.Errorf("tx[%d] mismatch\ngot:  %q\nwant: %q", i, string(got[i]), want)
		}
	}
	if m.Len() != 0 {
		t.Errorf("expected empty mempool, got %d", m.Len())
	}
}

func TestMempool_MaxBytes(t *testing.T) {
	m := NewMempool()

	_ = m.PushRaw([]byte("N:1")) // 3 bytes
	_ = m.PushRaw([]byte("N:2"))
	_ = m.PushRaw([]byte("N:3"))

	txs := m.SelectForProposal(6)
	if len(txs) != 2 {
		t.Errorf("expected 2 txs with maxBytes=6, got %d", len(txs))
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 tx remaining, got %d", m.Len())
	}
}

func TestMempool_OversizedHeadDoesNotStall(t *testing.T) {
	m := NewMempool()
	_ = m.PushRaw([]byte("0123456789"))
	_ = m.PushRaw([]byte("x"))

	txs := m.SelectForProposal(4)
	if len(txs) != 1 || string(txs[0]) != "0123456789" {
		t.Fatalf("expected oversized head alone, got %q", txs)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 tx remaining, got %d", m.Len())
	}
}

func TestMempool_Rejects(t *testing.T) {
	m := NewMempoolWithLimit(2)

	if err := m.PushRaw(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty push err = %v", err)
	}
	if err := m.PushRaw([]byte("a")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := m.PushRaw([]byte("a")); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate push err = %v", err)
	}
	if err := m.PushRaw([]byte("b")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := m.PushRaw([]byte("c")); !errors.Is(err, ErrFull) {
		t.Errorf("full push err = %v", err)
	}

	// Once selected, the same bytes may be submitted again.
	m.SelectForProposal(0)
	if err := m.PushRaw([]byte("a")); err != nil {
		t.Errorf("re-push after select: %v", err)
	}
}

func TestMempool_ConcurrentPush(t *testing.T) {
	m := NewMempool()
	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func(w int) {
			for i := 0; i < 50; i++ {
				_ = m.PushRaw([]byte(fmt.Sprintf("w%d-%d", w, i)))
			}
			done <- struct{}{}
		}(w)
	}
	for w := 0; w < 4; w++ {
		<-done
	}
	if m.Len() != 200 {
		t.Errorf("expected 200 pending, got %d", m.Len())
	}
}
