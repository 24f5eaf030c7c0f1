package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"depenses/internal/backend"
	"depenses/internal/cli"
	"depenses/internal/heartbeat"
	apphttp "depenses/internal/http"
	"depenses/internal/log"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentApp, os.Stdout), "Failed to load .env", err)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentApp, os.Stdout), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp, os.Stdout)
	logger.Info("Starting depenses", "port", cfg.Port, "backend", cfg.DataBackend)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(res.Service, apphttp.ServerConfig{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SessionTTL:         cfg.SessionTTL,
		SessionCapacity:    cfg.SessionCapacity,
		Logger:             logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.HeartbeatEnabled {
		pinger, err := heartbeat.NewPinger(cfg.AppURL, cfg.HeartbeatInterval(), logger)
		if err != nil {
			cli.Fatal(logger, "Invalid heartbeat configuration", err)
		}
		g.Go(func() error { return pinger.Run(gctx) })
	} else {
		logger.Info("Heartbeat disabled")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
