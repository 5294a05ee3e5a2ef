package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTx(t *testing.T) {
	m := New()
	m.ObserveTx("deposit", "ok")
	m.ObserveTx("deposit", "ok")
	m.ObserveTx("fill_order", "order_cancelled")
	m.ObserveTx("flash_loan", "ok")
	m.ObserveTx("flash_loan", "flash_loan_not_repaid")

	if got := testutil.ToFloat64(m.Operations.WithLabelValues("deposit", "ok")); got != 2 {
		t.Errorf("deposit ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FlashLoans.WithLabelValues("repaid")); got != 1 {
		t.Errorf("repaid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FlashLoans.WithLabelValues("reverted")); got != 1 {
		t.Errorf("reverted = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveBlock(42, 3)
	m.SetMempoolSize(5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"flashdex_block_height 42", "flashdex_mempool_size 5", "flashdex_block_txs_count 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
