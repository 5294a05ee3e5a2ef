package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uhyunpark/flashdex/params"
	"github.com/uhyunpark/flashdex/pkg/abci"
	"github.com/uhyunpark/flashdex/pkg/api"
	"github.com/uhyunpark/flashdex/pkg/app/dex"
	"github.com/uhyunpark/flashdex/pkg/metrics"
	"github.com/uhyunpark/flashdex/pkg/sequencer"
	"github.com/uhyunpark/flashdex/pkg/storage"
	"github.com/uhyunpark/flashdex/pkg/util"
)

func main() {
	envFile := flag.String("env", "", "path to .env file (default: ./.env if present)")
	flag.Parse()

	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, closeLog, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Storage ----
	var (
		blocks sequencer.BlockStore
		states dex.StateStore
		wal    sequencer.WAL = storage.NewNopWAL()
	)
	if cfg.Node.DataDir != "" {
		pebbleStore, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "chain"))
		if err != nil {
			sugar.Fatalw("storage_open_failed", "dir", cfg.Node.DataDir, "err", err)
		}
		defer pebbleStore.Close()
		blocks, states = pebbleStore, pebbleStore

		fileWAL, err := storage.NewFileWAL(filepath.Join(cfg.Node.DataDir, "commits.wal"))
		if err != nil {
			sugar.Fatalw("wal_open_failed", "err", err)
		}
		defer fileWAL.Close()
		wal = fileWAL
	} else {
		mem := storage.NewInMemoryBlockStore()
		blocks, states = mem, mem
		sugar.Warn("data_dir_unset - chain is kept in memory only")
	}

	// ---- App: exchange ----
	m := metrics.New()
	app, err := dex.NewApp(cfg,
		dex.WithLogger(logger),
		dex.WithMetrics(m),
		dex.WithStateStore(states),
	)
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}

	// Rebuild state from the block log
	replayed, err := app.Replay(blocks)
	if err != nil {
		sugar.Fatalw("replay_failed", "err", err)
	}
	sugar.Infow("replay_done", "blocks", replayed.Blocks, "height", replayed.Head.Height)

	bridge := &abci.Bridge{App: app, MaxTxBytes: cfg.Node.MaxBlockBytes}

	// ---- Sequencer ----
	seq := sequencer.New(bridge, blocks, util.RealClock{}, cfg.Node.BlockTime)
	seq.Logger = sugar
	seq.WAL = wal
	seq.VerboseLogging = cfg.Node.Verbose
	if replayed.Blocks > 0 {
		seq.SetHead(replayed.Head)
	}

	sugar.Infow("block_time_config", "block_time_ms", cfg.Node.BlockTime.Milliseconds())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(app, api.Options{
		Logger:   logger,
		Metrics:  m,
		TxLogDir: cfg.Node.TxLogDir,
	})
	defer apiServer.Close()

	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// Hook API server to the app and sequencer: stream receipts and blocks
	app.OnReceipts = apiServer.BroadcastReceipts
	seq.OnBlockCommit = func(b sequencer.Block) {
		apiServer.BroadcastBlock(b, len(abci.SplitPayload(b.Payload)))
	}

	// ---- Transaction Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true TXGEN_MODE=default|high
	if cfg.Node.EnableTxGen {
		txCfg := dex.DefaultFeederConfig()
		if os.Getenv("TXGEN_MODE") == "high" {
			txCfg = dex.HighLoadConfig()
		}
		// A restarted chain has already run the seed scenario.
		txCfg.SkipSeed = app.Height() > 0
		cancelFeeder, err := dex.StartTxFeeder(ctx, app, txCfg, logger)
		if err != nil {
			sugar.Fatalw("txgen_failed", "err", err)
		}
		defer cancelFeeder()
		sugar.Infow("txgen_enabled", "batch", txCfg.BatchSize, "interval", txCfg.Interval, "seed", !txCfg.SkipSeed)
	} else {
		sugar.Info("txgen_disabled")
	}

	sugar.Infow("node_starting",
		"exchange", app.ExchangeAddress().Hex(),
		"fee_account", app.FeeAccount().Hex(),
		"fee_percent", app.FeePercent(),
		"height", app.Height(),
		"api", cfg.Node.APIAddr)

	go func() {
		if err := seq.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Fatalw("sequencer_failed", "err", err)
		}
	}()

	// Logging control: log every N blocks to reduce noise
	logInterval := sequencer.Height(100)
	lastLoggedHeight := seq.Height()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Infow("node_stopping", "height", seq.Height())
			return
		case <-ticker.C:
			h := seq.Height()
			if h-lastLoggedHeight >= logInterval || (h != lastLoggedHeight && h <= 5) {
				sugar.Infow("chain_progress",
					"height", h,
					"mempool", app.MempoolSize(),
					"blocks_since_last_log", h-lastLoggedHeight)
				lastLoggedHeight = h
			}
		}
	}
}
