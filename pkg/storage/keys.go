package storage

import (
	"encoding/binary"

	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

// Key schema:
//
//	b:<8-byte height>  → Block (gob), big-endian so iteration follows height
//	cm                 → committed height
//	s:<state key>      → committed state value
//	sh                 → height of the last applied change set
const (
	prefixBlock = "b:"
	prefixState = "s:"
)

func kBlock(h sequencer.Height) []byte { return append([]byte(prefixBlock), heightKey(uint64(h))...) }
func kCommitted() []byte              { return []byte("cm") }
func kState(key string) []byte        { return append([]byte(prefixState), key...) }
func kStateHeight() []byte            { return []byte("sh") }

func heightKey(h uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], h)
	return k[:]
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
