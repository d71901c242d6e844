package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alias1177/StockPredictor/internal/config"
	"github.com/Alias1177/StockPredictor/internal/ledger"
	"github.com/Alias1177/StockPredictor/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		log.Logger = log.Level(lvl)
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	policy, err := server.ParseEmptyPolicy(cfg.EmptyLedgerPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := ledger.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer l.Close()

	srv := server.New(l, server.Options{
		EmptyPolicy:    policy,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		log.Error().Err(err).Msg("Server stopped")
	}
}
