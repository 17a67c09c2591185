package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fundvault/native/fund"
	"fundvault/observability/logging"
	"fundvault/services/fundd/config"
	"fundvault/services/fundd/server"
	"fundvault/services/fundd/settlement"
	"fundvault/services/fundd/storage"
	"fundvault/services/fundd/sweeper"
)

// auditEmitter persists engine events on the audit trail. Emission failures
// are logged, never propagated: the operation already committed.
type auditEmitter struct {
	store *storage.Store
	log   *slog.Logger
}

func (a *auditEmitter) Emit(event fund.Event) {
	if err := a.store.AppendAudit(event); err != nil {
		a.log.Error("audit append failed", "type", event.Type, "fund", event.FundID, "error", err)
		return
	}
	a.log.Info("fund event", "type", event.Type, "fund", event.FundID)
}

func main() {
	var (
		configPath = flag.String("config", "/etc/fundd/config.yaml", "path to fundd configuration")
		env        = flag.String("env", "dev", "deployment environment label")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.SetupWithOptions("fundd", *env, logging.Options{
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	engine := fund.NewEngine()
	engine.SetState(store)
	engine.SetEmitter(&auditEmitter{store: store, log: logger})
	engine.SetProposalTTL(cfg.Engine.ProposalTTL.Duration)
	engine.SetLockWait(cfg.Engine.LockWait.Duration)

	settle, err := settlement.NewHTTPClient(settlement.Config{
		Endpoint: cfg.Settlement.Endpoint,
		Timeout:  cfg.Settlement.Timeout.Duration,
	})
	if err != nil {
		logger.Error("settlement client", "error", err)
		os.Exit(1)
	}

	if !cfg.Sweeper.Disabled {
		sw := sweeper.New(engine, store, logger)
		if err := sw.Start(cfg.Sweeper.Schedule); err != nil {
			logger.Error("start sweeper", "error", err)
			os.Exit(1)
		}
		defer sw.Stop()
	}

	srv := server.New(server.Config{
		Engine:          engine,
		Store:           store,
		Settlement:      settle,
		Log:             logger,
		JWTSecret:       cfg.Auth.JWTSecret,
		DisplayDecimals: cfg.Display.Decimals,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("fundd listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
