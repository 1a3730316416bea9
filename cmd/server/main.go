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

	"golang.org/x/sync/errgroup"

	"github.com/anyashankar/cargo-clash/config"
	"github.com/anyashankar/cargo-clash/engine"
	"github.com/anyashankar/cargo-clash/registry"
	"github.com/anyashankar/cargo-clash/repository/state"
	"github.com/anyashankar/cargo-clash/repository/state/memory"
	"github.com/anyashankar/cargo-clash/repository/state/sqlite"
	"github.com/anyashankar/cargo-clash/server"
	"github.com/anyashankar/cargo-clash/server/handler"
	"github.com/anyashankar/cargo-clash/utils"
)

func main() {
	configPath := flag.String("config", utils.GetEnvDefault("CARGO_CLASH_CONFIG", ""), "path to config YAML")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	st, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open state store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	reg := registry.NewRegistry(logger)
	eng := engine.New(st, reg, logger, engineCfg)

	accept := handler.NewAcceptHandler(st, reg, eng, logger)
	srv := server.NewServer(cfg.Addr, server.Route(accept))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return eng.Run(ctx)
	})
	eg.Go(func() error {
		logger.InfoContext(ctx, "server listening", "addr", cfg.Addr)
		if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.InfoContext(ctx, "shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			return srv.Close()
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

// openStore は設定に応じて SQLite かインメモリのストアを開き、
// 空であれば初期ワールドを投入する。
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (state.GameState, func(), error) {
	if cfg.DBPath == "" {
		snap, err := cfg.World.Snapshot(time.Now().UTC())
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using in-memory state store")
		return memory.NewConcurrentStore(memory.NewStore(snap)), func() {}, nil
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close state store", "error", err)
		}
	}

	empty, err := store.Empty(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if empty {
		snap, err := cfg.World.Snapshot(time.Now().UTC())
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := store.Seed(ctx, snap); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("seeded initial world", "path", cfg.DBPath,
			"locations", len(snap.Locations), "players", len(snap.Players))
	}
	logger.Info("using sqlite state store", "path", cfg.DBPath)
	return store, cleanup, nil
}

func logLevel() slog.Level {
	switch utils.GetEnvDefault("CARGO_CLASH_LOG_LEVEL", "info") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
