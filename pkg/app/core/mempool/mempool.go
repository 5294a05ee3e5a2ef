package mempool

import (
	"crypto/sha256"
	"errors"
	"sync"
)

var (
	ErrFull      = errors.New("mempool: full")
	ErrDuplicate = errors.New("mempool: duplicate transaction")
	ErrEmpty     = errors.New("mempool: empty transaction")
)

// DefaultMaxPending bounds the queue when no limit is configured.
const DefaultMaxPending = 10_000

// Mempool is a FIFO queue of raw signed transactions.
// Admission order is execution order: per-sender nonces and
// first-come fills both depend on it, so nothing is reordered.
type Mempool struct {
	mu         sync.Mutex
	queue      [][]byte
	pending    map[[32]byte]struct{}
	maxPending int
}

func NewMempool() *Mempool {
	return NewMempoolWithLimit(DefaultMaxPending)
}

func NewMempoolWithLimit(maxPending int) *Mempool {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Mempool{
		pending:    make(map[[32]byte]struct{}),
		maxPending: maxPending,
	}
}

// PushRaw enqueues a copy of b. Identical bytes already pending are rejected.
func (m *Mempool) PushRaw(b []byte) error {
	if len(b) == 0 {
		return ErrEmpty
	}
	key := sha256.Sum256(b)
	cp := append([]byte(nil), b...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.pending[key]; dup {
		return ErrDuplicate
	}
	if len(m.queue) >= m.maxPending {
		return ErrFull
	}
	m.pending[key] = struct{}{}
	m.queue = append(m.queue, cp)
	return nil
}

// SelectForProposal returns up to maxBytes worth of txs in admission order,
// removing them from the mempool. maxBytes <= 0 means no limit. A tx larger
// than maxBytes on its own is still taken when it is first in line so the
// queue cannot stall.
func (m *Mempool) SelectForProposal(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	for len(m.queue) > 0 {
		tx := m.queue[0]
		n := int64(len(tx))
		if maxBytes > 0 && used+n > maxBytes && len(out) > 0 {
			break
		}
		out = append(out, tx)
		used += n
		m.queue = m.queue[1:]
		delete(m.pending, sha256.Sum256(tx))
		if maxBytes > 0 && used >= maxBytes {
			break
		}
	}
	return out
}

// Len returns total pending txs.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
