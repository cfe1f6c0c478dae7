package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"disposal-bot/api/internal/config"
	"disposal-bot/api/internal/handle"
	"disposal-bot/api/internal/httpserver"
	"disposal-bot/api/internal/predict/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(log)

	engines, err := registry.Build(cfg, nil, log)
	if err != nil {
		log.Error("engines", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	handle.New(engines, log.With("component", "handle")).Routes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := httpserver.Serve(ctx, ":"+cfg.Port, mux, log); err != nil {
		log.Error("disposal-proxy stopped", "err", err)
		os.Exit(1)
	}
}
