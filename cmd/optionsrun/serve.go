package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/optionsrun/infra/breakers"
	"github.com/sawpanic/optionsrun/internal/cache"
	"github.com/sawpanic/optionsrun/internal/config"
	httpserver "github.com/sawpanic/optionsrun/internal/interfaces/http"
	"github.com/sawpanic/optionsrun/internal/net/ratelimit"
	"github.com/sawpanic/optionsrun/internal/persistence/postgres"
	"github.com/sawpanic/optionsrun/internal/secrets"
)

const cacheConnectTimeout = 10 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		Long:  "Serves the engine over JSON/HTTP and websocket with /health and /metrics; the report cache and decision journal are used when enabled in config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address override, e.g. :8080")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions) error {
	cfg := opts.cfg

	limiter := ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.RunEvictor(ctx, cfg.RateLimit.GetIdleEvict())

	deps := httpserver.Deps{
		Engine:  opts.engine(),
		Limiter: limiter,
		Metrics: httpserver.NewMetricsRegistry(),
	}

	// Sinks are optional: a failed connection leaves the service running without them
	if cfg.Redis.Enabled {
		reportCache, err := cache.Connect(ctx, cache.Options{
			Addr:           cfg.Redis.Addr,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			TTL:            cfg.Redis.GetCacheTTL(),
			ConnectTimeout: cacheConnectTimeout,
		})
		if err != nil {
			log.Warn().Str("addr", cfg.Redis.Addr).Str("error", secrets.Redact(err.Error())).Msg("Report cache unavailable, serving without it")
		} else {
			deps.Cache = reportCache
		}
	}

	if cfg.Database.Enabled {
		dsn := secrets.Redact(cfg.Database.DSN)
		manager, err := postgres.Connect(ctx, journalConfig(cfg.Database))
		if err != nil {
			log.Warn().Str("dsn", dsn).Str("error", secrets.Redact(err.Error())).Msg("Decision journal unavailable, serving without it")
		} else {
			defer manager.Close()
			deps.Journal = manager.Journal()
			deps.JournalHealth = manager
			log.Info().Str("dsn", dsn).Msg("Decision journal connected")
		}
	}

	read, write, shutdown := cfg.Server.Timeouts()
	serverConfig := httpserver.DefaultServerConfig()
	serverConfig.Addr = cfg.Server.Addr
	serverConfig.ReadTimeout = read
	serverConfig.WriteTimeout = write
	serverConfig.Version = version
	serverConfig.Breaker = breakers.Settings{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		OpenTimeout:      cfg.Circuit.GetOpenTimeout(),
	}

	server := httpserver.NewServer(serverConfig, deps)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("health", fmt.Sprintf("http://%s/health", server.GetAddress())).
			Str("metrics", fmt.Sprintf("http://%s/metrics", server.GetAddress())).
			Bool("cache", deps.Cache != nil).
			Bool("journal", deps.Journal != nil).
			Msg("Service endpoints available")
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	log.Info().Msg("Service shutdown complete")
	return nil
}

func journalConfig(db config.DatabaseConfig) postgres.Config {
	pgConfig := postgres.DefaultConfig()
	pgConfig.DSN = db.DSN
	if db.MaxOpenConns > 0 {
		pgConfig.MaxOpenConns = db.MaxOpenConns
	}
	if db.MaxIdleConns > 0 {
		pgConfig.MaxIdleConns = db.MaxIdleConns
	}
	if timeout := db.GetConnectTimeout(); timeout > 0 {
		pgConfig.ConnectTimeout = timeout
	}
	return pgConfig
}
