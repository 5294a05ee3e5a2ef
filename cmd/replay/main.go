package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/uhyunpark/flashdex/params"
	"github.com/uhyunpark/flashdex/pkg/app/dex"
	"github.com/uhyunpark/flashdex/pkg/state"
	"github.com/uhyunpark/flashdex/pkg/storage"
	"github.com/uhyunpark/flashdex/pkg/util"
)

// replay re-executes a stopped node's block log from genesis, checks every
// block's app hash and compares the result with the persisted state.
func main() {
	envFile := flag.String("env", "", "path to .env file; genesis must match the node")
	dataDir := flag.String("data", "", "node data directory (default: DATA_DIR)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	cfg, err := params.LoadFromEnv(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dataDir != "" {
		cfg.Node.DataDir = *dataDir
	}

	logger, err := util.NewLogger(*verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "chain"))
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer store.Close()

	committed, _, err := store.GetCommitted()
	if err != nil {
		sugar.Fatalw("read_committed_failed", "err", err)
	}
	stateHeight, _, err := store.StateHeight()
	if err != nil {
		sugar.Fatalw("read_state_height_failed", "err", err)
	}
	persisted, err := store.LoadState()
	if err != nil {
		sugar.Fatalw("load_state_failed", "err", err)
	}

	// No state store: the persisted state is what we verify against.
	app, err := dex.NewApp(cfg, dex.WithLogger(logger))
	if err != nil {
		sugar.Fatalw("genesis_failed", "err", err)
	}
	res, err := app.Replay(store)
	if err != nil {
		sugar.Fatalw("replay_failed", "err", err)
	}

	replayedHash := app.StateHash()
	persistedHash := state.NewFromEntries(persisted).Hash()

	sugar.Infow("replay_done",
		"blocks", res.Blocks,
		"height", res.Head.Height,
		"committed", committed,
		"state_height", stateHeight,
		"apphash", "0x"+app.AppHash().String())

	ok := true
	if uint64(res.Head.Height) != uint64(committed) {
		sugar.Errorw("head_mismatch", "replayed", res.Head.Height, "committed", committed)
		ok = false
	}
	if stateHeight != uint64(committed) {
		sugar.Errorw("state_height_mismatch", "state_height", stateHeight, "committed", committed)
		ok = false
	}
	if replayedHash != persistedHash {
		sugar.Errorw("state_mismatch",
			"replayed", fmt.Sprintf("0x%x", replayedHash),
			"persisted", fmt.Sprintf("0x%x", persistedHash),
			"persisted_keys", len(persisted))
		ok = false
	}

	// The commit journal is optional; a node without DATA_DIR never wrote one.
	walPath := filepath.Join(cfg.Node.DataDir, "commits.wal")
	switch rec, err := storage.LastCommit(walPath); {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, storage.ErrEmptyWAL):
		sugar.Infow("wal_skipped", "path", walPath)
	case err != nil:
		sugar.Errorw("wal_read_failed", "err", err)
		ok = false
	case rec.Height < uint64(res.Head.Height):
		// The journal line follows the block save, so a crash can leave it one behind.
		sugar.Warnw("wal_behind", "wal_height", rec.Height, "replayed_height", res.Head.Height)
	case rec.Height > uint64(res.Head.Height) || rec.AppHash != "0x"+app.AppHash().String():
		sugar.Errorw("wal_mismatch",
			"wal_height", rec.Height, "wal_apphash", rec.AppHash,
			"replayed_height", res.Head.Height, "replayed_apphash", "0x"+app.AppHash().String())
		ok = false
	}

	if !ok {
		os.Exit(1)
	}
	sugar.Infow("state_verified", "keys", len(persisted), "state_hash", fmt.Sprintf("0x%x", replayedHash))
}
