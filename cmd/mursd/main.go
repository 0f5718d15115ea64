package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/colinxiong/MURS/internal/api"
	"github.com/colinxiong/MURS/internal/config"
	"github.com/colinxiong/MURS/internal/governor"
	"github.com/colinxiong/MURS/internal/store"
)

// sampleEvery is how many ticks pass between sampling-signal broadcasts.
const sampleEvery = 10

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("mursd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"tick_interval", cfg.TickInterval.String(),
		"total_budget", cfg.TotalBudget,
		"yellow_line", cfg.YellowLine(),
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	pool := newSimPool(cfg.TotalBudget)
	sampler := newSimSampler()

	gov := governor.New(pool, governor.RuntimeHeapSource{}, sampler, db, logger, governor.Tunables{
		MinRunning:    cfg.MinRunning,
		StopCount:     cfg.StopCount,
		EstimateMul:   cfg.EstimateMul,
		ProtectResult: cfg.ProtectResult,
	})
	gov.Configure(cfg.TotalBudget, cfg.YellowLine())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runTicks(ctx, gov, cfg.TickInterval)

	sim := newSimulation(gov, sampler, pool, logger)
	go sim.run(ctx)

	srv := api.NewServer(cfg.ListenAddr, gov, db, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	gov.Broker().Close()
}

// runTicks drives the governor decision cycle on the configured cadence and
// periodically asks all tasks for fresh metrics.
func runTicks(ctx context.Context, gov *governor.Governor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			if n%sampleEvery == 0 {
				gov.RequestSampleAll()
			}
			gov.Tick(ctx)
		}
	}
}
