// Command chatrelay serves the Gemini chat relay over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/chatrelay/internal/config"
	"github.com/jonwraymond/chatrelay/observe"
)

const pruneInterval = time.Minute

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *envFile, *isDebug); err != nil {
		slog.Error("chatrelay failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, envFile string, debug bool) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Observe.Logging.Level = "debug"
	}

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	logger := app.logger
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.server.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "listening", observe.Field{Key: "addr", Value: cfg.Server.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Open event streams end when the hub closes.
		_ = app.hub.Close()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				app.prune(gctx)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info(context.Background(), "stopped")
	return nil
}
