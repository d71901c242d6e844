package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Alias1177/StockPredictor/internal/analyze"
	"github.com/Alias1177/StockPredictor/internal/api/exchangerate"
	"github.com/Alias1177/StockPredictor/internal/api/twelvedata"
	"github.com/Alias1177/StockPredictor/internal/calculate"
	"github.com/Alias1177/StockPredictor/internal/config"
	"github.com/Alias1177/StockPredictor/internal/currency"
	"github.com/Alias1177/StockPredictor/internal/forecast"
	"github.com/Alias1177/StockPredictor/internal/ledger"
	"github.com/Alias1177/StockPredictor/internal/notify"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg     *config.Config
	ledger  ledger.Ledger
	closers []func() error
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
}

// openApp loads configuration and opens the ledger. A read-only app never changes storage.
func openApp(ctx context.Context, readOnly bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogger(cfg.LogLevel)

	open := ledger.Open
	if readOnly {
		open = ledger.OpenReadOnly
	}
	l, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, ledger: l}
	a.closers = append(a.closers, l.Close)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *app) marketData() (*twelvedata.Client, error) {
	if a.cfg.TwelveAPIKey == "" {
		return nil, errors.New("TWELVE_API_KEY is not set")
	}
	return twelvedata.NewClient(twelvedata.ClientOptions{
		APIKey:           a.cfg.TwelveAPIKey,
		BaseURL:          a.cfg.TwelveBaseURL,
		IntradayInterval: a.cfg.IntradayInterval,
		RequestTimeout:   a.cfg.RequestTimeout,
		RequestsPerSec:   a.cfg.RequestsPerSec,
		MaxRetries:       a.cfg.MaxRetries,
	}), nil
}

func (a *app) converter(ctx context.Context) *currency.Converter {
	fx := exchangerate.NewClient(exchangerate.ClientOptions{
		BaseURL:        a.cfg.FXBaseURL,
		RequestTimeout: a.cfg.RequestTimeout,
		RequestsPerSec: a.cfg.RequestsPerSec,
		MaxRetries:     a.cfg.MaxRetries,
	})

	var cache *redis.Client
	if a.cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		if err := cache.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", a.cfg.RedisAddr).Msg("Rate cache unavailable, continuing without it")
			_ = cache.Close()
			cache = nil
		} else {
			a.closers = append(a.closers, cache.Close)
		}
	}

	return currency.NewConverter(fx, currency.Options{
		From:     a.cfg.SourceCurrency,
		To:       a.cfg.DisplayCurrency,
		Fallback: decimal.NewFromFloat(a.cfg.FallbackRate),
		Cache:    cache,
		CacheTTL: a.cfg.RateCacheTTL,
	})
}

// notifier builds the configured channels. A channel that fails to start is logged and skipped.
func (a *app) notifier() notify.Notifier {
	var multi notify.Multi
	if a.cfg.TelegramToken != "" && a.cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(a.cfg.TelegramToken, a.cfg.TelegramChatID, "")
		if err != nil {
			log.Warn().Err(err).Msg("Telegram notifications disabled")
		} else {
			multi = append(multi, tg)
		}
	}
	if len(a.cfg.KafkaBrokers) > 0 {
		multi = append(multi, notify.NewKafka(a.cfg.KafkaBrokers, a.cfg.KafkaTopic))
	}
	a.closers = append(a.closers, multi.Close)
	return multi
}

func (a *app) orchestrator(source *twelvedata.Client, conv analyze.Converter, forceRetrain bool) *analyze.Orchestrator {
	return analyze.NewOrchestrator(source, a.ledger, conv, analyze.Options{
		LookbackDays: a.cfg.LookbackDays,
		MinLookback:  a.cfg.MinLookback,
		Horizon:      a.cfg.Horizon,
		Model:        a.cfg.Model,
		ModelParams: forecast.Params{
			Window:       a.cfg.SequenceWindow,
			Trees:        a.cfg.Trees,
			HoldoutRatio: a.cfg.HoldoutRatio,
		},
		Features:      calculate.DefaultFeatureParams(),
		ModelDir:      a.cfg.ModelDir,
		RetrainEvery:  a.cfg.RetrainEvery,
		ForceRetrain:  forceRetrain,
		AlwaysTrading: a.cfg.IsAlwaysTrading,
	})
}
