package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BlockContext carries the logical clock operations observe.
// Time is a Unix timestamp in seconds, set once per block by the host.
type BlockContext struct {
	Height uint64
	Time   int64
}

// Event is anything a component emits into the ordered log.
type Event interface {
	EventName() string
}

// Log is one emitted event tagged with its emitter.
type Log struct {
	Emitter common.Address
	Event   Event
}

type journalKind uint8

const (
	journalKV journalKind = iota
	journalLog
)

type journalEntry struct {
	kind    journalKind
	key     string
	prev    []byte
	existed bool
}

type revision struct {
	id           int
	journalIndex int
}

// StateDB is a journaled key-value store with nested snapshots.
//
// Every mutation since the last Commit is recorded in the journal so a
// snapshot can be rolled back exactly, including the event log.
// StateDB is not safe for concurrent use; the host serializes access.
type StateDB struct {
	data  map[string][]byte
	dirty map[string]struct{}
	logs  []Log

	journal        []journalEntry
	validRevisions []revision
	nextRevisionID int

	block BlockContext
}

func New() *StateDB {
	return &StateDB{
		data:  make(map[string][]byte),
		dirty: make(map[string]struct{}),
	}
}

// NewFromEntries restores a committed key space without journaling it.
func NewFromEntries(entries map[string][]byte) *StateDB {
	s := New()
	for k, v := range entries {
		s.data[k] = append([]byte(nil), v...)
	}
	return s
}

func (s *StateDB) SetBlockContext(ctx BlockContext) { s.block = ctx }
func (s *StateDB) BlockContext() BlockContext     { return s.block }

// Get returns the stored value. The returned slice must not be modified.
func (s *StateDB) Get(key string) ([]byte, bool) {
	v, ok := s.data[key]
	return v, ok
}

func (s *StateDB) Set(key string, value []byte) {
	prev, existed := s.data[key]
	s.journal = append(s.journal, journalEntry{kind: journalKV, key: key, prev: prev, existed: existed})
	s.data[key] = append([]byte(nil), value...)
	s.dirty[key] = struct{}{}
}

func (s *StateDB) Delete(key string) {
	prev, existed := s.data[key]
	if !existed {
		return
	}
	s.journal = append(s.journal, journalEntry{kind: journalKV, key: key, prev: prev, existed: true})
	delete(s.data, key)
	s.dirty[key] = struct{}{}
}

// GetUint reads a 32-byte big-endian amount; missing keys read as zero.
func (s *StateDB) GetUint(key string) *uint256.Int {
	v, ok := s.data[key]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).SetBytes(v)
}

// SetUint stores an amount. Zero deletes the key so the key space stays canonical.
func (s *StateDB) SetUint(key string, v *uint256.Int) {
	if v.IsZero() {
		s.Delete(key)
		return
	}
	b := v.Bytes32()
	s.Set(key, b[:])
}

// Range visits every key with the given prefix in ascending order.
func (s *StateDB) Range(prefix string, fn func(key string, value []byte) bool) {
	keys := make([]string, 0)
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, s.data[k]) {
			return
		}
	}
}

// AddLog appends an event to the ordered log.
func (s *StateDB) AddLog(emitter common.Address, ev Event) {
	s.journal = append(s.journal, journalEntry{kind: journalLog})
	s.logs = append(s.logs, Log{Emitter: emitter, Event: ev})
}

// LogCount is a mark usable with LogsSince.
func (s *StateDB) LogCount() int { return len(s.logs) }

func (s *StateDB) LogsSince(mark int) []Log {
	if mark >= len(s.logs) {
		return nil
	}
	out := make([]Log, len(s.logs)-mark)
	copy(out, s.logs[mark:])
	return out
}

// Snapshot returns an identifier for the current revision.
func (s *StateDB) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{id: id, journalIndex: len(s.journal)})
	return id
}

// RevertToSnapshot undoes every change made after the snapshot was taken.
func (s *StateDB) RevertToSnapshot(revid int) {
	idx := sort.Search(len(s.validRevisions), func(i int) bool {
		return s.validRevisions[i].id >= revid
	})
	if idx == len(s.validRevisions) || s.validRevisions[idx].id != revid {
		panic(fmt.Errorf("revision id %v cannot be reverted", revid))
	}
	snapshot := s.validRevisions[idx].journalIndex

	for i := len(s.journal) - 1; i >= snapshot; i-- {
		e := s.journal[i]
		switch e.kind {
		case journalKV:
			if e.existed {
				s.data[e.key] = e.prev
			} else {
				delete(s.data, e.key)
			}
		case journalLog:
			s.logs = s.logs[:len(s.logs)-1]
		}
	}
	s.journal = s.journal[:snapshot]
	s.validRevisions = s.validRevisions[:idx]
}

// Change is one committed write. Value is nil for deletions.
type Change struct {
	Key   string
	Value []byte
}

// Commit returns the writes made since the previous commit, sorted by key,
// and resets the journal and event log.
func (s *StateDB) Commit() []Change {
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		v, ok := s.data[k]
		if !ok {
			changes = append(changes, Change{Key: k})
			continue
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		changes = append(changes, Change{Key: k, Value: cp})
	}

	s.dirty = make(map[string]struct{})
	s.journal = s.journal[:0]
	s.validRevisions = s.validRevisions[:0]
	s.logs = nil
	return changes
}

// Hash is a SHA-256 over the length-prefixed, key-sorted contents.
func (s *StateDB) Hash() [32]byte {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	var lenBuf [4]byte
	for _, k := range keys {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		h.Write(lenBuf[:])
		h.Write([]byte(k))
		v := s.data[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		h.Write(lenBuf[:])
		h.Write(v)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Equal reports whether two stores hold identical key spaces.
func (s *StateDB) Equal(other *StateDB) bool {
	if len(s.data) != len(other.data) {
		return false
	}
	for k, v := range s.data {
		ov, ok := other.data[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}
