// Package main is the entry point for the Wagerline recommendation engine.
// It wires the quote store, edge evaluator, parlay builder, staking engine
// and issuance tracker together, then runs evaluation cycles on a schedule
// and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oddstack/wagerline/internal/clients/modelprob"
	"github.com/oddstack/wagerline/internal/clients/oddsfeed"
	"github.com/oddstack/wagerline/internal/config"
	"github.com/oddstack/wagerline/internal/cycle"
	"github.com/oddstack/wagerline/internal/database"
	"github.com/oddstack/wagerline/internal/events"
	"github.com/oddstack/wagerline/internal/modules/backtest"
	"github.com/oddstack/wagerline/internal/modules/bankroll"
	"github.com/oddstack/wagerline/internal/modules/correlation"
	"github.com/oddstack/wagerline/internal/modules/dedup"
	"github.com/oddstack/wagerline/internal/modules/edge"
	"github.com/oddstack/wagerline/internal/modules/movement"
	"github.com/oddstack/wagerline/internal/modules/notify"
	"github.com/oddstack/wagerline/internal/modules/parlay"
	"github.com/oddstack/wagerline/internal/modules/quotes"
	"github.com/oddstack/wagerline/internal/modules/staking"
	"github.com/oddstack/wagerline/internal/scheduler"
	"github.com/oddstack/wagerline/internal/server"
	"github.com/oddstack/wagerline/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Wagerline")

	// Two-database layout: the issuance and bankroll ledgers need durable
	// synchronous writes, quote history is append-heavy and tolerates
	// relaxed durability.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	historyRepo, err := quotes.NewHistoryRepository(historyDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize quote history")
	}
	recRepo, err := dedup.NewRepository(ledgerDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize issuance ledger")
	}
	bankrollRepo, err := bankroll.NewRepository(ledgerDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize bankroll ledger")
	}

	em := events.NewManager(log)
	store := quotes.NewStore()
	evaluator := edge.New(cfg.Cycle, log)
	builder := parlay.New(cfg.Cycle, correlation.New(cfg.Cycle), log)
	engine := staking.New(cfg.Cycle, log)
	tracker := dedup.NewTracker(recRepo, cfg.Cycle.DedupWindow, log)
	monitor := movement.NewMonitor(cfg.Cycle, em, log)
	runner := backtest.NewRunner(cfg.Cycle, evaluator, engine, log)

	feed := oddsfeed.NewClient(cfg.OddsAPIBaseURL, cfg.OddsAPIKey, log)
	models := modelprob.NewClient(cfg.ModelProviderURL, log)

	// Warm the snapshot store from the last persisted quotes so movement
	// references survive restarts.
	if persisted, err := historyRepo.LoadLatest(); err != nil {
		log.Warn().Err(err).Msg("Failed to warm quote store from history")
	} else {
		for _, q := range persisted {
			store.Upsert(q)
		}
		log.Info().Int("quotes", len(persisted)).Msg("Quote store warmed from history")
	}

	svc := cycle.NewService(cfg.Cycle, cfg.CycleTimeout, cycle.Deps{
		Store:     store,
		History:   historyRepo,
		Feed:      feed,
		Models:    models,
		Evaluator: evaluator,
		Builder:   builder,
		Engine:    engine,
		Tracker:   tracker,
		Monitor:   monitor,
		Ledger:    bankrollRepo,
		Channels:  []notify.Channel{notify.NewConsole(log)},
		Events:    em,
	}, log)

	scanner := cycle.NewScanner(cfg.Cycle, cfg.CycleTimeout, store, historyRepo, feed, monitor, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Streaming feed, when configured. Scheduled polling stays on either
	// way and acts as the fallback path.
	if cfg.OddsFeedWSURL != "" {
		stream := oddsfeed.NewStream(cfg.OddsFeedWSURL, scanner.Ingest, log)
		stream.Start(ctx)
		defer stream.Stop()
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.CycleSchedule, scheduler.NewEvaluationJob(svc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register evaluation job")
	}
	if err := sched.AddJob(cfg.MovementSchedule, scheduler.NewMovementScanJob(scanner)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register movement scan job")
	}
	if err := sched.AddJob("@daily", scheduler.NewIssuanceGCJob(tracker)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register issuance GC job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:      log,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
		Cycle:    svc,
		Store:    store,
		History:  historyRepo,
		RecRepo:  recRepo,
		Monitor:  monitor,
		Bankroll: bankrollRepo,
		Engine:   engine,
		Backtest: runner,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
