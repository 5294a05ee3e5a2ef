package abci

import (
	"errors"
	"testing"
	"time"

	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

type recordingApp struct {
	pending  [][]byte
	maxBytes int64
	last     RequestFinalizeBlock
	fail     error
}

func (a *recordingApp) PrepareProposal(req RequestPrepareProposal) ResponsePrepareProposal {
	a.maxBytes = req.MaxTxBytes
	txs := a.pending
	a.pending = nil
	return ResponsePrepareProposal{Txs: txs}
}

func (a *recordingApp) FinalizeBlock(req RequestFinalizeBlock) (ResponseFinalizeBlock, error) {
	a.last = req
	if a.fail != nil {
		return ResponseFinalizeBlock{}, a.fail
	}
	return ResponseFinalizeBlock{AppHash: sequencer.Hash{byte(req.Height), byte(len(req.Txs))}}, nil
}

func TestPayloadFraming(t *testing.T) {
	txs := [][]byte{[]byte(`{"type":"deposit"}`), []byte(`{"type":"fill_order"}`)}
	payload := JoinPayload(txs)

	got := SplitPayload(payload)
	if len(got) != 2 {
		t.Fatalf("expected 2 txs, got %d", len(got))
	}
	for i := range txs {
		if string(got[i]) != string(txs[i]) {
			t.Errorf("tx[%d] = %q, want %q", i, got[i], txs[i])
		}
	}

	if len(SplitPayload(nil)) != 0 {
		t.Error("empty payload should split into no txs")
	}
	if got := SplitPayload([]byte("a\x00\x00b")); len(got) != 2 {
		t.Errorf("consecutive delimiters: got %d txs", len(got))
	}
}

func TestBridge(t *testing.T) {
	app := &recordingApp{pending: [][]byte{[]byte("tx1"), []byte("tx2")}}
	bridge := &Bridge{App: app}

	payload := bridge.PreparePayload(sequencer.GenesisBlock(), 1)
	if app.maxBytes != DefaultMaxTxBytes {
		t.Errorf("max bytes = %d, want default", app.maxBytes)
	}

	blk := sequencer.Block{Height: 1, Payload: payload, Time: time.Unix(1_700_000_000, 0)}
	hash, err := bridge.OnCommit(blk)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if hash[0] != 1 || hash[1] != 2 {
		t.Errorf("unexpected app hash %s", hash)
	}
	if app.last.Timestamp != 1_700_000_000 || len(app.last.Txs) != 2 {
		t.Errorf("unexpected finalize request: %+v", app.last)
	}

	app.fail = errors.New("boom")
	if _, err := bridge.OnCommit(blk); err == nil {
		t.Error("finalize error should propagate")
	}
}
