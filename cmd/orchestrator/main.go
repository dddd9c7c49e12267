package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/skylarbarrera/whim/internal/config"
	"github.com/skylarbarrera/whim/internal/dispatcher"
	"github.com/skylarbarrera/whim/internal/filelock"
	"github.com/skylarbarrera/whim/internal/httpapi"
	"github.com/skylarbarrera/whim/internal/observability"
	"github.com/skylarbarrera/whim/internal/queue"
	"github.com/skylarbarrera/whim/internal/retry"
	"github.com/skylarbarrera/whim/internal/specgen"
	"github.com/skylarbarrera/whim/internal/storage/memstore"
	"github.com/skylarbarrera/whim/internal/storage/postgres"
	"github.com/skylarbarrera/whim/internal/store"
	"github.com/skylarbarrera/whim/internal/workerreg"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOrchestratorConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	dbCfg := cfg.Database

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	providers, err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.OTelEnabled,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shut down observability providers", "error", err)
		}
	}()
	slog.SetDefault(providers.Logger)

	slog.InfoContext(ctx, "starting whim orchestrator", "driver", dbCfg.Driver)

	s, closeStore, err := newStore(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer closeStore()

	retryPolicy := retry.Policy{
		Cap:       cfg.Retry.Cap,
		BaseDelay: cfg.Retry.BaseDelay,
		MaxDelay:  cfg.Retry.MaxDelay,
	}

	queueMgr := queue.New(s)
	registry := workerreg.New(s, retryPolicy)
	locks := filelock.New(s)
	specgenMgr := specgen.New(s, specgen.ExecInvoker{Command: cfg.SpecGen.Command}, specgen.Config{
		Timeout:     cfg.SpecGen.Timeout,
		MaxAttempts: cfg.SpecGen.MaxAttempts,
		ScratchRoot: cfg.SpecGen.ScratchRoot,
	})

	holderID := uuid.NewString()
	sweeper := workerreg.NewSweeper(registry, s, workerreg.SweeperConfig{
		HolderID:          holderID,
		Interval:          cfg.Sweeper.Interval,
		MaxStartupJitter:  5 * time.Second,
		StaleWindow:       cfg.Sweeper.StaleWindow,
		RegistrationGrace: cfg.Sweeper.RegistrationGrace,
		LeaseDuration:     cfg.Sweeper.LeaseDuration,
	})

	dispatch := dispatcher.New(queueMgr, registry, dispatcher.ExecSpawner{
		Command:         cfg.Dispatcher.WorkerCommand,
		OrchestratorURL: "http://" + cfg.HTTP.Host + ":" + cfg.HTTP.Port,
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		WorkDirRoot:     cfg.SpecGen.ScratchRoot,
	}, dispatcher.Config{
		Capacity:     cfg.Dispatcher.Capacity,
		PollInterval: cfg.Dispatcher.PollInterval,
		DailyBudget:  cfg.Dispatcher.DailyBudget,
	})

	handler := httpapi.NewHandler(queueMgr, registry, locks, specgenMgr, s)
	server := httpapi.NewServer(handler, httpapi.ServerConfig{
		Host:              cfg.HTTP.Host,
		Port:              cfg.HTTP.Port,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
	})

	errResult := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errResult <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := dispatch.Run(ctx); err != nil && ctx.Err() == nil {
			errResult <- fmt.Errorf("dispatcher: %w", err)
		}
	}()
	go func() {
		if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			errResult <- fmt.Errorf("sweeper: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shut down HTTP server cleanly", "error", err)
		}
		return nil
	case err := <-errResult:
		return err
	}
}

// newStore builds the Persistence Layer backend selected by
// cfg.Driver. The "memory" driver backs local/dev use; it cannot
// honor the claim-next and staleness-sweep semantics
// under true concurrency the way the PostgreSQL backend does, so it is
// not meant for multi-instance production deployment.
func newStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.Driver == "memory" {
		return memstore.New(), func() {}, nil
	}

	s, err := postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTime) * time.Second,
		AutoMigrate:     cfg.AutoMigrate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	slog.InfoContext(ctx, "storage initialized", "dsn", maskPassword(cfg.DSN))
	return s, s.Close, nil
}

// maskPassword redacts a DSN's password for safe logging.
func maskPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "[REDACTED]"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxxx")
		}
	}
	return u.String()
}
