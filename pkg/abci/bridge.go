package abci

import (
	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

// DefaultMaxTxBytes bounds a block payload when the bridge is not configured.
const DefaultMaxTxBytes = 1 << 24

type RequestPrepareProposal struct{ Height, MaxTxBytes int64 }
type ResponsePrepareProposal struct{ Txs [][]byte }

type RequestFinalizeBlock struct {
	Height    int64
	Timestamp int64 // Unix timestamp in seconds
	Txs       [][]byte
}

// ExecTxResult summarizes one executed transaction.
// Code is "ok" on success, otherwise a stable error code.
type ExecTxResult struct {
	Code  string
	Error string
}

type ResponseFinalizeBlock struct {
	TxResults []ExecTxResult
	AppHash   sequencer.Hash // Hash of application state after execution
}

type Application interface {
	PrepareProposal(RequestPrepareProposal) ResponsePrepareProposal
	FinalizeBlock(RequestFinalizeBlock) (ResponseFinalizeBlock, error)
}

// Bridge adapts an Application to the sequencer's AppHook.
// Block payloads are transactions joined with a 0x00 delimiter; signed
// transactions are JSON and never contain a NUL byte.
type Bridge struct {
	App        Application
	MaxTxBytes int64
}

func (b *Bridge) PreparePayload(_ sequencer.Block, next sequencer.Height) []byte {
	maxBytes := b.MaxTxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTxBytes
	}
	resp := b.App.PrepareProposal(RequestPrepareProposal{Height: int64(next), MaxTxBytes: maxBytes})
	return JoinPayload(resp.Txs)
}

func (b *Bridge) OnCommit(committed sequencer.Block) (sequencer.Hash, error) {
	resp, err := b.App.FinalizeBlock(RequestFinalizeBlock{
		Height:    int64(committed.Height),
		Timestamp: committed.Time.Unix(),
		Txs:       SplitPayload(committed.Payload),
	})
	if err != nil {
		return sequencer.Hash{}, err
	}
	return resp.AppHash, nil
}

func JoinPayload(txs [][]byte) []byte {
	var payload []byte
	for _, tx := range txs {
		payload = append(payload, tx...)
		payload = append(payload, 0x00)
	}
	return payload
}

func SplitPayload(p []byte) [][]byte {
	var out [][]byte
	cur := make([]byte, 0, len(p))
	for _, b := range p {
		if b == 0x00 {
			if len(cur) > 0 {
				out = append(out, append([]byte(nil), cur...))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, b)
	}
	if len(cur) > 0 {
		out = append(out, append([]byte(nil), cur...))
	}
	return out
}

var _ sequencer.AppHook = (*Bridge)(nil)
