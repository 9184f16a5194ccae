package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacksonlee411/recordhub/internal/config"
	"github.com/jacksonlee411/recordhub/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/app.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := server.NewLogger(os.Stdout, cfg.GetString(config.KeyLogLevel, "info"), cfg.GetString(config.KeyLogFormat, "json"))
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pool, err := server.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	h, err := server.NewHandlerWithOptions(ctx, server.HandlerOptions{
		Config: cfg,
		Store:  store,
		Pool:   pool,
		Logger: logger,
	})
	if err != nil {
		logger.Error("build handler", slog.Any("err", err))
		os.Exit(1)
	}

	addr := cfg.GetString(config.KeyHTTPAddr, ":8080")
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", slog.String("addr", addr), slog.String("store", cfg.StoreDriver()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("stopped")
}
