package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/jury/internal/adapters/http/api"
	"github.com/okian/jury/internal/adapters/repository"
	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/config"
	"github.com/okian/jury/internal/domain/roster"
	"github.com/okian/jury/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout          = 10 * time.Second
	writeTimeout         = 10 * time.Second
	idleTimeout          = 60 * time.Second
	readHeaderTimeout    = 5 * time.Second
	shutdownTimeout      = 30 * time.Second
	statsRefreshInterval = 10 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	var store repository.Store
	switch cfg.Store {
	case config.StoreSQLite:
		sqliteStore, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			os.Stderr.WriteString("failed to open sqlite store: " + err.Error() + "\n")
			return
		}
		defer func() { _ = sqliteStore.Close() }()
		store = sqliteStore
		log.Info(ctx, "using sqlite store", logger.String("path", cfg.SQLitePath))
	default:
		store = repository.NewMemStore()
		log.Info(ctx, "using in-memory store")
	}

	resolver := roster.NewInMemoryResolver()
	if cfg.RosterPath != "" {
		seed, err := roster.LoadSeed(cfg.RosterPath)
		if err != nil {
			os.Stderr.WriteString("failed to load roster: " + err.Error() + "\n")
			return
		}
		resolver = seed.Resolver()
		log.Info(ctx, "roster loaded",
			logger.String("path", cfg.RosterPath),
			logger.Int("formations", len(seed.Formations)),
			logger.Int("assignments", len(seed.Assignments)),
		)
	} else {
		log.Warn(ctx, "no roster_path configured; starting with an empty roster")
	}

	svc := service.New(
		service.WithStore(store),
		service.WithResolver(resolver),
		service.WithCatalog(resolver),
		service.WithLogger(log),
	)

	// Keep document gauges fresh.
	go startStatsUpdater(ctx, svc)

	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startStatsUpdater refreshes service metrics on a fixed interval.
func startStatsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(statsRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
