package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/uhyunpark/flashdex/pkg/sequencer"
	"github.com/uhyunpark/flashdex/pkg/state"
)

func openPebble(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleBlock(h sequencer.Height) sequencer.Block {
	return sequencer.Block{
		Height:   h,
		Parent:   sequencer.Hash{byte(h - 1)},
		AppHash:  sequencer.Hash{0xAA, byte(h)},
		Payload:  []byte(`{"type":"deposit"}` + "\x00"),
		Proposer: "sequencer",
		Time:     time.Unix(1_700_000_000+int64(h), 0).UTC(),
	}
}

type blockStoreWithState interface {
	sequencer.BlockStore
	ApplyChangeSet(height uint64, changes []state.Change) error
	LoadState() (map[string][]byte, error)
}

func stores(t *testing.T) map[string]blockStoreWithState {
	return map[string]blockStoreWithState{
		"pebble": openPebble(t),
		"memory": NewInMemoryBlockStore(),
	}
}

func TestBlockStore(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.GetCommitted(); ok || err != nil {
				t.Fatalf("fresh store committed = %v, %v", ok, err)
			}

			// Save out of order; iteration must follow height.
			for _, h := range []sequencer.Height{3, 1, 2, 256} {
				if err := s.SaveBlock(sampleBlock(h)); err != nil {
					t.Fatalf("save %d: %v", h, err)
				}
			}
			if err := s.SetCommitted(256); err != nil {
				t.Fatalf("set committed: %v", err)
			}

			got, ok, err := s.GetBlock(2)
			if err != nil || !ok {
				t.Fatalf("get block: ok=%v err=%v", ok, err)
			}
			want := sampleBlock(2)
			if sequencer.HashOfBlock(got) != sequencer.HashOfBlock(want) || got.AppHash != want.AppHash {
				t.Errorf("block round trip mismatch: %+v", got)
			}
			if _, ok, _ := s.GetBlock(99); ok {
				t.Error("missing block reported present")
			}

			var heights []sequencer.Height
			if err := s.IterateBlocks(func(b sequencer.Block) error {
				heights = append(heights, b.Height)
				return nil
			}); err != nil {
				t.Fatalf("iterate: %v", err)
			}
			wantHeights := []sequencer.Height{1, 2, 3, 256}
			if len(heights) != len(wantHeights) {
				t.Fatalf("heights = %v", heights)
			}
			for i := range wantHeights {
				if heights[i] != wantHeights[i] {
					t.Errorf("heights = %v, want %v", heights, wantHeights)
					break
				}
			}

			stop := errors.New("stop")
			if err := s.IterateBlocks(func(sequencer.Block) error { return stop }); !errors.Is(err, stop) {
				t.Errorf("iterate should surface callback error, got %v", err)
			}

			h, ok, err := s.GetCommitted()
			if err != nil || !ok || h != 256 {
				t.Errorf("committed = %d, %v, %v", h, ok, err)
			}
		})
	}
}

func TestChangeSets(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			db := state.New()
			db.Set("a", []byte("1"))
			db.Set("b", []byte("2"))
			if err := s.ApplyChangeSet(0, db.Commit()); err != nil {
				t.Fatalf("apply: %v", err)
			}

			db.Delete("a")
			db.Set("c", []byte("3"))
			if err := s.ApplyChangeSet(1, db.Commit()); err != nil {
				t.Fatalf("apply: %v", err)
			}

			loaded, err := s.LoadState()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			restored := state.NewFromEntries(loaded)
			if !restored.Equal(db) {
				t.Errorf("restored state differs: %v", loaded)
			}
			if restored.Hash() != db.Hash() {
				t.Error("restored hash differs")
			}
		})
	}
}

func TestStateHeight(t *testing.T) {
	s := openPebble(t)
	if _, ok, _ := s.StateHeight(); ok {
		t.Fatal("fresh store should have no state height")
	}
	if err := s.ApplyChangeSet(7, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if h, ok, err := s.StateHeight(); err != nil || !ok || h != 7 {
		t.Errorf("state height = %d, %v, %v", h, ok, err)
	}
}

func TestPebbleReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.SaveBlock(sampleBlock(1))
	_ = s.SetCommitted(1)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if h, ok, _ := s.GetCommitted(); !ok || h != 1 {
		t.Errorf("committed after reopen = %d, %v", h, ok)
	}
	if _, ok, _ := s.GetBlock(1); !ok {
		t.Error("block lost after reopen")
	}
}

func TestDecodeBlockRejectsUnknownVersion(t *testing.T) {
	val, err := encodeBlock(sequencer.Block{Height: 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if b, err := decodeBlock(val); err != nil || b.Height != 7 {
		t.Fatalf("decode = %+v, %v", b, err)
	}
	val[0] = blockCodecV1 + 1
	if _, err := decodeBlock(val); err == nil {
		t.Error("expected error for unknown codec version")
	}
	if _, err := decodeBlock(nil); err == nil {
		t.Error("expected error for empty record")
	}
}
