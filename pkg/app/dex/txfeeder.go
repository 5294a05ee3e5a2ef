package dex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TxFeederConfig controls transaction generation rate
type TxFeederConfig struct {
	BatchSize   int           // Number of txs to generate per batch
	Interval    time.Duration // How often to generate batches
	NumAccounts int           // Number of simulated traders (at least 2)
	Seed        int64         // rng seed for the random traffic
	SkipSeed    bool          // skip the initial seed scenario
}

// DefaultFeederConfig returns reasonable defaults for a devnet
func DefaultFeederConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   5,
		Interval:    500 * time.Millisecond,
		NumAccounts: 2,
		Seed:        time.Now().UnixNano(),
	}
}

// HighLoadConfig returns config for stress testing
func HighLoadConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   100,
		Interval:    100 * time.Millisecond,
		NumAccounts: 2,
		Seed:        time.Now().UnixNano(),
	}
}

// StartTxFeeder submits the seed scenario and then feeds random signed
// traffic into the app's mempool until ctx is done or the returned cancel
// func is called.
func StartTxFeeder(ctx context.Context, app *App, cfg TxFeederConfig, logger *zap.Logger) (context.CancelFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gen, err := NewSignedTxGenerator(app, cfg.NumAccounts, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create tx generator: %w", err)
	}

	if !cfg.SkipSeed {
		seed, err := gen.SeedTxs()
		if err != nil {
			return nil, fmt.Errorf("failed to build seed txs: %w", err)
		}
		for _, tx := range seed {
			if _, err := app.PushTx(tx); err != nil {
				return nil, fmt.Errorf("failed to submit seed tx: %w", err)
			}
		}
		logger.Info("txfeeder_seeded", zap.Int("txs", len(seed)))
	}

	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		startTime := time.Now()
		totalTxs, dropped := 0, 0

		logger.Info("txfeeder_started", zap.Int("batch", cfg.BatchSize), zap.Duration("interval", cfg.Interval))

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(startTime)
				logger.Info("txfeeder_stopped",
					zap.Int("total", totalTxs),
					zap.Int("dropped", dropped),
					zap.Float64("tx_per_sec", float64(totalTxs)/elapsed.Seconds()),
				)
				return

			case <-ticker.C:
				for _, tx := range gen.GenerateBatch(cfg.BatchSize) {
					if _, err := app.PushTx(tx); err != nil {
						dropped++
						continue
					}
					totalTxs++
				}
			}
		}
	}()

	return cancel, nil
}
