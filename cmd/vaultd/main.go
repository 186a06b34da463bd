package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"StrategyVault/internal/access"
	"StrategyVault/internal/command"
	"StrategyVault/internal/config"
	"StrategyVault/internal/core"
	"StrategyVault/internal/ingestion"
	"StrategyVault/internal/observability"
	"StrategyVault/internal/persistence"
	"StrategyVault/internal/projection"
	"StrategyVault/internal/query"
	"StrategyVault/internal/server"
	"StrategyVault/internal/strategy"
	"StrategyVault/internal/token"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// replayPage is how many input-log entries are read per replay query.
const replayPage = 1000

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level := observability.ParseLogLevel(cfg.LogLevel)
	logger := observability.NewLoggerWithLevel("vaultd", level)
	componentLogger := func(name string) zerolog.Logger {
		return observability.NewLoggerWithLevel(name, level)
	}

	logger.Info().
		Str("vault_id", cfg.VaultID.String()).
		Str("denom", cfg.AssetDenom).
		Bool("async", cfg.AsyncWithdrawals).
		Msg("StrategyVault starting")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("Postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, persistence.Migrations(), componentLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Asset, roles, strategies ---
	asset := token.NewMemoryAsset(cfg.AssetDenom, cfg.AssetDecimals)

	roles := access.NewRegistry()
	for _, admin := range cfg.Admins {
		roles.Grant(access.RoleAdmin, admin)
	}
	if len(cfg.Admins) == 0 {
		logger.Warn().Msg("no VAULT_ADMINS configured, every privileged command will be refused")
	}

	strategies := strategy.NewRegistry()
	for _, id := range cfg.Strategies {
		if err := strategies.Register(strategy.NewMemoryStrategy(id, asset, cfg.VaultID)); err != nil {
			logger.Fatal().Err(err).Str("strategy", id.String()).Msg("register strategy")
		}
	}

	// --- Channels ---
	// Persist blocks (backpressure); projection and publish drop when full.
	persistChan := make(chan command.Output, cfg.PersistChanSize)
	projectionChan := make(chan command.Output, cfg.ProjectionChanSize)
	publishChan := make(chan command.Output, cfg.PublishChanSize)
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.PersistChanSize)

	// --- Runner ---
	runnerLogger := componentLogger("runner")
	dedup := command.NewIdempotencyChecker(
		cfg.IdempotencyLRUCapacity,
		persistence.NewPostgresDedupStore(db),
		metrics,
		runnerLogger,
	)

	runner, err := command.NewRunner(command.Config{
		Vault: core.Config{
			ID:             cfg.VaultID,
			Asset:          asset,
			DecimalsOffset: cfg.DecimalsOffset,
			Async:          cfg.AsyncWithdrawals,
			Authorizer:     roles,
		},
		Strategies: strategies,
		Dedup:      dedup,
		Output:     command.NewChannelOutput(persistChan, projectionChan, publishChan, metrics),
		Metrics:    metrics,
		Logger:     runnerLogger,
		QueueSize:  cfg.IngestChanSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create runner")
	}

	// --- Persistence ---
	// The persist path runs on its own context so it drains after ctx is
	// cancelled; it stops when persistChan is closed.
	persistLogger := componentLogger("persistence")
	persistWorker := persistence.NewPersistenceWorker(
		db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, persistLogger)

	var persistWG sync.WaitGroup
	persistWG.Add(2)
	go func() {
		defer persistWG.Done()
		bridgeCoreOutputs(persistChan, persistWorkerChan, persistLogger)
	}()
	go func() {
		defer persistWG.Done()
		if err := persistWorker.Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			persistLogger.Error().Err(err).Msg("persistence worker stopped")
		}
	}()

	// --- Recovery: load checkpoint + replay the input log ---
	snapMgr := persistence.NewSnapshotManager(db)
	if err := recoverRunner(ctx, runner, snapMgr, metrics, logger); err != nil {
		logger.Fatal().Err(err).Msg("recovery failed")
	}

	// --- Projection worker ---
	projLogger := componentLogger("projection")
	projWorker := projection.NewProjectionWorker(db, projectionChan, metrics, projLogger)
	if err := projWorker.LoadWatermark(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load projection watermark")
	}
	if err := projWorker.CatchUp(ctx, 0); err != nil {
		projLogger.Warn().Err(err).Msg("initial projection catch-up failed")
	}

	// --- NATS ---
	natsLogger := componentLogger("nats")
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, natsLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	logger.Info().Msg("NATS connected")

	if err := ingestion.EnsureStreams(ctx, js, natsLogger); err != nil {
		logger.Fatal().Err(err).Msg("ensure NATS streams")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js, natsLogger); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	rawChan := make(chan ingestion.RawCommand, cfg.IngestChanSize)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawChan, metrics, natsLogger)
	ingestor := ingestion.NewIngestor(runner, rawChan, metrics, componentLogger("ingestion"))
	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan, metrics, componentLogger("publisher"))

	// --- gRPC + HTTP/JSON server ---
	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Engine:        runner,
		QueryService:  query.NewQueryService(db),
		Metrics:       metrics,
		StartTime:     time.Now(),
		HealthChecker: healthChecker,
		Logger:        componentLogger("server"),
	})

	// --- Start goroutines ---
	errChan := make(chan error, 10)

	// 1. Runner: the single writer. It gets its own context so shutdown
	// can stop intake first and the runner last.
	runnerCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Run(runnerCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("runner: %w", err)
		}
	}()

	// 2. Projection worker
	go func() {
		if err := projWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("projection worker: %w", err)
		}
	}()

	// 3. Outbound publisher
	go func() {
		if err := outboundPublisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("outbound publisher: %w", err)
		}
	}()

	// 4. NATS -> runner
	go func() {
		if err := ingestor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("ingestor: %w", err)
		}
	}()
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	// 5. gRPC server
	go func() {
		errChan <- grpcServer.StartGRPC(ctx)
	}()

	// 6. HTTP/JSON gateway
	go func() {
		errChan <- grpcServer.StartHTTPGateway(ctx)
	}()

	// 7. Periodic checkpoints
	go func() {
		runPeriodicCheckpoints(ctx, runner, snapMgr, cfg.SnapshotInterval, metrics, logger)
	}()

	// 8. Channel gauges
	go func() {
		sampleChannels(ctx, metrics, map[string]func() (int, int){
			"persist":    func() (int, int) { return len(persistChan), cap(persistChan) },
			"projection": func() (int, int) { return len(projectionChan), cap(projectionChan) },
			"publish":    func() (int, int) { return len(publishChan), cap(publishChan) },
			"ingest":     func() (int, int) { return len(rawChan), cap(rawChan) },
		})
	}()

	// 9. Prometheus metrics server
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			_ = metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.AddCheck("postgres", db.PingContext)
	healthChecker.AddCheck("nats", func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("nats %s", nc.Status())
		}
		return nil
	})

	// Mark service as ready after all goroutines started
	healthChecker.SetReady(true)
	grpcServer.SetServing(true)

	logger.Info().
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("StrategyVault ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	// Stop intake, stop the runner, drain persistence, then write a final
	// checkpoint that is immediately verifiable.
	healthChecker.SetReady(false)
	grpcServer.SetServing(false)
	natsSubscriber.Stop()
	cancel()

	stopRunner()
	<-runnerDone

	final, err := runner.CheckpointNow()
	if err != nil {
		logger.Error().Err(err).Msg("final checkpoint failed")
	}

	close(persistChan)
	persistWG.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if final != nil {
		if err := saveCheckpoint(shutdownCtx, snapMgr, final, time.Now(), metrics); err != nil {
			logger.Error().Err(err).Msg("final snapshot failed")
		} else {
			logger.Info().Int64("command_index", final.CommandIndex).Msg("final snapshot saved")
		}
	}

	logger.Info().Msg("StrategyVault shutdown complete")
}

// bridgeCoreOutputs converts runner outputs into persistence rows. It closes
// out when in is closed and drained.
func bridgeCoreOutputs(in <-chan command.Output, out chan<- persistence.CoreOutput, logger zerolog.Logger) {
	defer close(out)
	for o := range in {
		co, err := persistence.NewCoreOutput(o)
		if err != nil {
			// Only reachable if a payload cannot be marshalled, which would
			// also make it unreplayable.
			logger.Error().Err(err).Int64("command_index", o.Applied.Index).Msg("cannot encode output for persistence")
			continue
		}
		out <- co
	}
}

// recoverRunner restores the latest verified checkpoint and replays every
// command logged after it. Must run before runner.Run.
func recoverRunner(
	ctx context.Context,
	runner *command.Runner,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) error {
	state, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if state != nil {
		if err := runner.Restore(state, nil); err != nil {
			return err
		}
	} else {
		logger.Info().Msg("no snapshot found, cold start")
	}

	var (
		replayed int
		diverged int
	)
	from := runner.CommandIndex() + 1
	for {
		page, err := snapMgr.LoadCommandsFrom(ctx, from, replayPage)
		if err != nil {
			return fmt.Errorf("load commands from %d: %w", from, err)
		}
		for _, applied := range page {
			res := runner.Replay(ctx, applied)
			if (res.Err != nil) != (applied.Error != "") {
				diverged++
				logger.Warn().
					Int64("command_index", applied.Index).
					Str("command", string(applied.Command.Type)).
					Str("logged_error", applied.Error).
					AnErr("replay_error", res.Err).
					Msg("replay outcome differs from the log")
			}
			replayed++
			if metrics != nil {
				metrics.ReplayEventsTotal.Inc()
			}
			from = applied.Index + 1
		}
		if len(page) < replayPage {
			break
		}
	}

	if replayed > 0 || state != nil {
		logger.Info().
			Int("replayed", replayed).
			Int("diverged", diverged).
			Int64("command_index", runner.CommandIndex()).
			Msg("recovery complete")
	}

	if _, err := snapMgr.VerifyPersisted(ctx); err != nil {
		logger.Warn().Err(err).Msg("verify persisted snapshots")
	}
	return nil
}

// runPeriodicCheckpoints takes a checkpoint every interval commands.
func runPeriodicCheckpoints(
	ctx context.Context,
	runner *command.Runner,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	lastIndex := int64(-1)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Checkpoints taken while outputs were still in flight become
			// restorable once the log catches up.
			if _, err := snapMgr.VerifyPersisted(ctx); err != nil {
				logger.Warn().Err(err).Msg("verify persisted snapshots")
			}

			var index int64
			if err := runner.View(ctx, func(*core.Vault) error {
				index = runner.CommandIndex()
				return nil
			}); err != nil {
				continue
			}
			if lastIndex < 0 {
				lastIndex = index
			}
			if index-lastIndex < interval {
				continue
			}

			start := time.Now()
			state, err := runner.Checkpoint(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("periodic checkpoint failed")
				continue
			}
			if err := saveCheckpoint(ctx, snapMgr, state, start, metrics); err != nil {
				logger.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			lastIndex = state.CommandIndex
			logger.Info().Int64("command_index", state.CommandIndex).Msg("periodic snapshot")
		}
	}
}

// saveCheckpoint persists state and marks it verified if its commands are
// already durable.
func saveCheckpoint(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	state *command.State,
	start time.Time,
	metrics *observability.Metrics,
) error {
	size, err := snapMgr.SaveSnapshot(ctx, state)
	if err != nil {
		return err
	}
	if _, err := snapMgr.VerifyPersisted(ctx); err != nil {
		return fmt.Errorf("verify snapshot: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotSizeBytes.Set(float64(size))
		metrics.SnapshotLastSeq.Set(float64(state.Vault.Sequence))
	}
	return nil
}

func sampleChannels(ctx context.Context, metrics *observability.Metrics, channels map[string]func() (int, int)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, sample := range channels {
				size, capacity := sample()
				metrics.SetChannelMetrics(name, size, capacity)
			}
		}
	}
}
