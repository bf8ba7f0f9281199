package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vatchain/config"
	"vatchain/core/events"
	"vatchain/core/sequencer"
	"vatchain/gateway/middleware"
	"vatchain/gateway/routes"
	"vatchain/indexer"
	nativecommon "vatchain/native/common"
	"vatchain/observability"
	"vatchain/observability/logging"
	telemetry "vatchain/observability/otel"
	"vatchain/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "Path to the vatd configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.SetupWithOptions("vatd", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("vatd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing := cfg.Telemetry.Metrics || cfg.Telemetry.Traces
	if tracing {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "vatd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	db, err := storage.Open(cfg.StorageEngine, cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	pauses := nativecommon.NewPauseSet(cfg.Pauses...)
	ledger, err := sequencer.OpenLedger(db, sequencer.Options{
		Emitter: events.Fanout{observability.Events()},
		Pauses:  pauses,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	genesis, err := cfg.Genesis.Parse()
	if err != nil {
		return err
	}
	if _, err := ledger.ApplyGenesis(cfg.DeployerAddress(), genesis); err != nil {
		return err
	}

	seq, err := sequencer.New(ledger, nativecommon.Quota{
		MaxRequestsPerEpoch: cfg.Quota.MaxRequestsPerEpoch,
		EpochSeconds:        cfg.Quota.EpochSeconds,
	})
	if err != nil {
		return err
	}
	logger.Info("auth configured",
		"enabled", !cfg.Auth.Disabled,
		"issuer", cfg.Auth.Issuer,
		logging.MaskField("hmacSecret", cfg.Auth.HMACSecret),
	)
	logger.Info("ledger opened",
		"engine", cfg.StorageEngine,
		"sequence", seq.Sequence(),
		"collateral", ledger.CollateralIDs(),
		"paused", pauses.Paused(),
	)

	var ix *indexer.Indexer
	if cfg.Index.DSN != "" {
		ix, err = indexer.Open(cfg.Index.DSN, logger)
		if err != nil {
			return err
		}
		defer ix.Close()
		go func() {
			if err := ix.Run(ctx, seq); err != nil {
				logger.Error("receipt indexer stopped", "error", err)
			}
		}()
	}

	limit := middleware.RateLimit{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute, Burst: cfg.RateLimit.Burst}
	router := routes.New(routes.Config{
		Sequencer: seq,
		Indexer:   ix,
		Logger:    logger,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        !cfg.Auth.Disabled,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
			ClockSkew:      cfg.Auth.ClockSkew,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.RouteReads: limit,
			routes.RouteTx:    limit,
		}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "vatd",
			LogRequests: true,
			Enabled:     true,
		}, logger),
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", middleware.CallerHeader},
		},
	})

	handler := router
	if tracing {
		handler = otelhttp.NewHandler(router, "vatd")
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", listener.Addr().String(), "auth", !cfg.Auth.Disabled)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	logger.Info("vatd stopped", "sequence", seq.Sequence())
	return nil
}
