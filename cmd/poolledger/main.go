package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PoolLedger/internal/access"
	"PoolLedger/internal/config"
	"PoolLedger/internal/core"
	"PoolLedger/internal/gateway"
	"PoolLedger/internal/ledger"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/persistence"
	"PoolLedger/internal/query"
	"PoolLedger/internal/server"
	"PoolLedger/internal/stream"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("PoolLedger starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("Postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- NATS ---
	nc, js, err := stream.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := stream.EnsureRecordStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure record stream")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Engine ---
	persistChan := make(chan core.Output, cfg.PersistChanSize)
	streamChan := make(chan core.Output, cfg.StreamChanSize)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	led := ledger.New(cfg.LedgerConfig())
	reg := access.NewRegistry(cfg.OwnerUUID())
	gw := gateway.NewNATSGateway(nc, 5*time.Second)

	engine := core.NewEngine(
		led, reg, gw, dbChecker, metrics,
		cfg.PoolUUID(), cfg.AssetCode,
		persistChan, streamChan,
	)

	// --- Recovery: snapshot restore + record replay ---
	snapMgr := persistence.NewSnapshotManager(db)
	if err := recoverState(ctx, log, engine, snapMgr, dbChecker, metrics); err != nil {
		log.Fatal().Err(err).Msg("recovery")
	}

	// --- Services ---
	queryService := query.NewQueryService(db, metrics)
	httpServer := server.NewServer(cfg.HTTPAddr, engine, queryService, health)
	persistWorker := persistence.NewWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout(), metrics)
	publisher := stream.NewRecordPublisher(js, streamChan, metrics)

	errChan := make(chan error, 8)

	go func() { errChan <- persistWorker.Run(ctx) }()
	go func() { errChan <- publisher.Run(ctx) }()
	go func() { errChan <- httpServer.Start(ctx) }()
	go func() { errChan <- serveMetrics(ctx, cfg.MetricsAddr) }()
	go runPeriodicSnapshots(ctx, log, engine, snapMgr, cfg.SnapshotInterval, metrics)

	health.SetReady(true)
	log.Info().
		Int64("sequence", engine.Sequence()).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("PoolLedger ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("component failed, shutting down")
		}
	}

	cancel()

	// Give the persistence worker time for its final flush, then snapshot.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	time.Sleep(200 * time.Millisecond)

	if err := takeSnapshot(shutdownCtx, engine, snapMgr, metrics); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Msg("final snapshot saved")
	}

	log.Info().Msg("PoolLedger shutdown complete")
}

// recoverState restores the engine from the latest snapshot and replays every
// record after it. On a cold start with no snapshot it replays the whole log.
func recoverState(
	ctx context.Context,
	log zerolog.Logger,
	engine *core.Engine,
	snapMgr *persistence.SnapshotManager,
	dbChecker *persistence.PostgresIdempotencyChecker,
	metrics *observability.Metrics,
) error {
	startSequence := int64(0)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		state, err := snap.ToEngineState()
		if err != nil {
			return err
		}
		if err := engine.RestoreFromSnapshot(state); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		startSequence = snap.Sequence + 1
		log.Info().Int64("sequence", snap.Sequence).Msg("restored from snapshot")
	} else {
		log.Info().Msg("no snapshot, cold start from sequence 0")
		keys, err := dbChecker.RecentRequestKeys(100_000)
		if err != nil {
			log.Warn().Err(err).Msg("warm idempotency LRU")
		} else if len(keys) > 0 {
			engine.WarmLRU(keys)
		}
	}

	const batchSize = 1000
	var replayed int64
	for {
		rows, err := snapMgr.LoadRecordsFrom(ctx, startSequence, batchSize)
		if err != nil {
			return fmt.Errorf("load records from %d: %w", startSequence, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			env, err := persistence.EnvelopeFromRow(row)
			if err != nil {
				return err
			}
			if err := engine.ReplayRecord(env); err != nil {
				return err
			}
			replayed++
			metrics.ReplayRecordsTotal.Inc()
		}
		startSequence = rows[len(rows)-1].Sequence + 1
	}

	if replayed > 0 {
		log.Info().Int64("records", replayed).Int64("sequence", engine.Sequence()).Msg("replay complete")
	} else if snap != nil {
		// No records after the snapshot: the hash chain tip must match.
		var expected [32]byte
		copy(expected[:], snap.StateHash)
		if engine.StateHash() != expected {
			return fmt.Errorf("state hash mismatch after restore at sequence %d", snap.Sequence)
		}
	}
	return nil
}

func runPeriodicSnapshots(
	ctx context.Context,
	log zerolog.Logger,
	engine *core.Engine,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := engine.Sequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := engine.Sequence()
			if currentSeq-lastSnapshotSeq < interval {
				continue
			}
			if err := takeSnapshot(ctx, engine, snapMgr, metrics); err != nil {
				log.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			lastSnapshotSeq = currentSeq
			log.Info().Int64("sequence", currentSeq).Msg("periodic snapshot")
		}
	}
}

func takeSnapshot(
	ctx context.Context,
	engine *core.Engine,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	state := engine.CreateSnapshotState()
	snap := persistence.FromEngineState(state, time.Now())

	if err := snapMgr.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	// Created from live state, so verified by construction.
	if err := snapMgr.MarkVerified(ctx, snap.Sequence); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	metrics.SnapshotTaken.Inc()
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	return nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
