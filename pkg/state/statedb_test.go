package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type testEvent string

func (e testEvent) EventName() string { return string(e) }

func TestSnapshotRevert(t *testing.T) {
	s := New()
	s.Set("a", []byte("1"))

	snap := s.Snapshot()
	s.Set("a", []byte("2"))
	s.Set("b", []byte("x"))
	s.Delete("a")

	s.RevertToSnapshot(snap)

	if v, ok := s.Get("a"); !ok || string(v) != "1" {
		t.Fatalf("a = %q (ok=%v), want 1", v, ok)
	}
	if _, ok := s.Get("b"); ok {
		t.Fatalf("b should not exist after revert")
	}
}

func TestNestedSnapshots(t *testing.T) {
	s := New()
	outer := s.Snapshot()
	s.SetUint("bal", uint256.NewInt(10))

	inner := s.Snapshot()
	s.SetUint("bal", uint256.NewInt(3))
	s.RevertToSnapshot(inner)

	if got := s.GetUint("bal"); got.Uint64() != 10 {
		t.Fatalf("after inner revert bal = %d, want 10", got.Uint64())
	}

	s.RevertToSnapshot(outer)
	if got := s.GetUint("bal"); !got.IsZero() {
		t.Fatalf("after outer revert bal = %d, want 0", got.Uint64())
	}
}

func TestRevertTruncatesLogs(t *testing.T) {
	s := New()
	emitter := common.HexToAddress("0xAA00000000000000000000000000000000000001")

	s.AddLog(emitter, testEvent("kept"))
	mark := s.LogCount()
	snap := s.Snapshot()
	s.AddLog(emitter, testEvent("dropped"))
	s.AddLog(emitter, testEvent("dropped"))

	if got := len(s.LogsSince(mark)); got != 2 {
		t.Fatalf("logs since mark = %d, want 2", got)
	}

	s.RevertToSnapshot(snap)
	if s.LogCount() != 1 {
		t.Fatalf("log count = %d, want 1", s.LogCount())
	}
	if s.LogsSince(mark) != nil {
		t.Fatalf("expected no logs since mark")
	}
}

func TestSetUintZeroDeletes(t *testing.T) {
	s := New()
	s.SetUint("k", uint256.NewInt(5))
	s.SetUint("k", new(uint256.Int))
	if _, ok := s.Get("k"); ok {
		t.Fatalf("zero amount should delete key")
	}
}

func TestCommitChangeSet(t *testing.T) {
	s := New()
	s.Set("b", []byte("2"))
	s.Set("a", []byte("1"))
	first := s.Commit()
	if len(first) != 2 || first[0].Key != "a" || first[1].Key != "b" {
		t.Fatalf("unexpected change set: %+v", first)
	}

	s.Delete("a")
	second := s.Commit()
	if len(second) != 1 || second[0].Key != "a" || second[0].Value != nil {
		t.Fatalf("expected deletion of a, got %+v", second)
	}
	if len(s.Commit()) != 0 {
		t.Fatalf("empty commit should produce no changes")
	}
}

func TestHashDeterministic(t *testing.T) {
	a := New()
	a.Set("x", []byte("1"))
	a.Set("y", []byte("2"))

	b := New()
	b.Set("y", []byte("2"))
	b.Set("x", []byte("1"))

	if a.Hash() != b.Hash() {
		t.Fatalf("insertion order must not change the hash")
	}

	b.Set("y", []byte("3"))
	if a.Hash() == b.Hash() {
		t.Fatalf("different contents produced the same hash")
	}
}

func TestRangeOrdered(t *testing.T) {
	s := New()
	s.Set("p:2", []byte("b"))
	s.Set("p:1", []byte("a"))
	s.Set("q:1", []byte("z"))

	var keys []string
	s.Range("p:", func(k string, _ []byte) bool {
		keys = append(keys, k)
		return true
	})
	if len(keys) != 2 || keys[0] != "p:1" || keys[1] != "p:2" {
		t.Fatalf("range keys = %v", keys)
	}
}
