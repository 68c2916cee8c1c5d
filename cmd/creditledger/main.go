package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	generatoradapter "github.com/careerforge/creditledger/internal/adapter/driven/generator"
	sqliteadapter "github.com/careerforge/creditledger/internal/adapter/driven/sqlite"
	httphandler "github.com/careerforge/creditledger/internal/adapter/driving/http"
	"github.com/careerforge/creditledger/internal/application"
	"github.com/careerforge/creditledger/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"cache_ttl", cfg.CacheTTL,
		"idempotency_ttl", cfg.IdempotencyTTL,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	ledgerStore := sqliteadapter.NewLedgerRepo(db)
	spendStore := sqliteadapter.NewSpendRepo(db)
	activityStore := sqliteadapter.NewActivityRepo(db)
	statsStore := sqliteadapter.NewStatsRepo(db)

	// 6. Create application services.
	cache := application.NewBalanceCache(cfg.CacheTTL)
	spendSvc := application.NewSpendService(ledgerStore, spendStore, cache, cfg.SpendMaxAttempts)

	var generateSvc *application.GenerateService
	if cfg.GeneratorURL != "" {
		generateSvc = application.NewGenerateService(spendSvc, generatoradapter.NewClient(cfg.GeneratorURL))
		slog.Info("content generator configured", "url", cfg.GeneratorURL)
	} else {
		slog.Info("no generator URL configured, metered generation endpoint disabled")
	}

	// 7. Start the idempotency key janitor.
	janitor := application.NewJanitor(spendStore, cfg.IdempotencyTTL, cfg.JanitorInterval)
	go janitor.Start(ctx)

	// 8. Create HTTP handler and router.
	apiHandler := httphandler.NewHandler(spendSvc, generateSvc, activityStore, statsStore, slog.Default())
	router := httphandler.NewRouter(apiHandler, slog.Default(), cfg.MetricsEnabled)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("creditledger started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
