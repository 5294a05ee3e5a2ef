package sequencer

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

type Height uint64

type Hash [32]byte

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

type Block struct {
	Height   Height
	Parent   Hash
	AppHash  Hash // state after executing this block
	Payload  []byte
	Proposer string
	Time     time.Time
}

func GenesisBlock() Block {
	return Block{Height: 0, Proposer: "genesis", Time: time.Unix(0, 0)}
}

// HashOfBlock commits to the ordering data only: height, parent, payload,
// proposer and time. AppHash is excluded; it is produced by executing the
// block and recorded alongside it.
func HashOfBlock(b Block) Hash {
	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(b.Height))
	h.Write(buf[:])

	h.Write(b.Parent[:])
	h.Write(b.Payload)
	h.Write([]byte(b.Proposer))

	binary.BigEndian.PutUint64(buf[:], uint64(b.Time.UnixNano()))
	h.Write(buf[:])

	return sha256.Sum256(h.Sum(nil))
}

// ---- Storage/WAL interfaces (impl in pkg/storage) ----

type BlockStore interface {
	SaveBlock(b Block) error
	GetBlock(h Height) (Block, bool, error)
	SetCommitted(h Height) error
	GetCommitted() (Height, bool, error)
	// IterateBlocks calls fn for every stored block in height order.
	IterateBlocks(fn func(Block) error) error
}

type WAL interface {
	Append(line string)
}

// AppHook is the execution side of block production.
type AppHook interface {
	PreparePayload(parent Block, next Height) []byte
	OnCommit(committed Block) (Hash, error) // returns AppHash after executing block
}
