package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

type NopWAL struct{}

func NewNopWAL() *NopWAL          { return &NopWAL{} }
func (w *NopWAL) Append(_ string) {}

// FileWAL is an append-only, human-readable commit journal. The sequencer
// writes one "commit height=N apphash=0x.. bytes=N" line per block.
type FileWAL struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileWAL(path string) (*FileWAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f}, nil
}

func (w *FileWAL) Append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.f, line)
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// CommitRecord is one parsed commit line.
type CommitRecord struct {
	Height  uint64
	AppHash string
	Bytes   int
}

// ErrEmptyWAL is returned by LastCommit when the journal has no commit lines.
var ErrEmptyWAL = errors.New("wal: no commit records")

// LastCommit scans the journal at path and returns its final commit record.
// Lines that are not commit records are skipped.
func LastCommit(path string) (CommitRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return CommitRecord{}, err
	}
	defer f.Close()

	var (
		last  CommitRecord
		found bool
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec CommitRecord
		if _, err := fmt.Sscanf(sc.Text(), "commit height=%d apphash=%s bytes=%d", &rec.Height, &rec.AppHash, &rec.Bytes); err != nil {
			continue
		}
		last, found = rec, true
	}
	if err := sc.Err(); err != nil {
		return CommitRecord{}, fmt.Errorf("failed to scan wal %s: %w", path, err)
	}
	if !found {
		return CommitRecord{}, ErrEmptyWAL
	}
	return last, nil
}

var _ sequencer.WAL = (*NopWAL)(nil)
var _ sequencer.WAL = (*FileWAL)(nil)
