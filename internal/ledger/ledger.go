// Package ledger stores prediction records. Records are appended once and later
// resolved in place exactly once; they are never reordered or removed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Alias1177/StockPredictor/internal/config"
	"github.com/Alias1177/StockPredictor/internal/database"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateKey    = errors.New("prediction already recorded")
	ErrNotFound        = errors.New("prediction not found")
	ErrAlreadyResolved = errors.New("prediction already resolved")
	ErrCorrupt         = errors.New("ledger storage corrupt")
)

// Ledger is the durable prediction store.
type Ledger interface {
	// Append adds a new Pending record. It is durable once Append returns.
	Append(ctx context.Context, rec models.PredictionRecord) error
	// Pending yields the records still awaiting reconciliation from a fresh read of storage.
	Pending(ctx context.Context) (iter.Seq[models.PredictionRecord], error)
	// Resolve records the observed price and the resulting outcome.
	Resolve(ctx context.Context, key models.RecordKey, actual decimal.Decimal, resolvedAt time.Time) (models.PredictionRecord, error)
	// All returns every record in insertion order.
	All(ctx context.Context) ([]models.PredictionRecord, error)
	Close() error
}

// Open selects the backend named by cfg.LedgerBackend, creating the SQL schema if needed.
func Open(ctx context.Context, cfg *config.Config) (Ledger, error) {
	return open(ctx, cfg, false)
}

// OpenReadOnly opens the ledger for reading. No DDL is run against a SQL backend.
func OpenReadOnly(ctx context.Context, cfg *config.Config) (Ledger, error) {
	return open(ctx, cfg, true)
}

func open(ctx context.Context, cfg *config.Config, readOnly bool) (Ledger, error) {
	policy, err := NewTolerancePolicy(cfg.ToleranceMode, decimal.NewFromFloat(cfg.ToleranceValue))
	if err != nil {
		return nil, err
	}

	switch cfg.LedgerBackend {
	case "csv":
		return NewCSV(cfg.LedgerPath, policy), nil
	case database.DriverPostgres, database.DriverSQLite:
		db, err := openDatabase(ctx, cfg, readOnly)
		if err != nil {
			return nil, fmt.Errorf("opening %s ledger: %w", cfg.LedgerBackend, err)
		}
		return NewSQL(db, policy), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
}

func openDatabase(ctx context.Context, cfg *config.Config, readOnly bool) (*database.DB, error) {
	if cfg.LedgerBackend == database.DriverPostgres && cfg.DatabaseDSN == "" {
		params := database.ConnectionParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}
		if readOnly {
			return database.Connect(ctx, database.DriverPostgres, params.DSN())
		}
		return database.New(ctx, params)
	}
	if readOnly {
		return database.Connect(ctx, cfg.LedgerBackend, cfg.DatabaseDSN)
	}
	return database.Open(ctx, cfg.LedgerBackend, cfg.DatabaseDSN)
}

// resolve applies the reconciliation fields to a Pending record.
func resolve(rec models.PredictionRecord, actual decimal.Decimal, resolvedAt time.Time, policy TolerancePolicy) (models.PredictionRecord, error) {
	if !rec.IsPending() {
		return rec, fmt.Errorf("%s: %w", rec.Key(), ErrAlreadyResolved)
	}
	actual = actual.Round(2)
	at := resolvedAt.UTC().Truncate(time.Second)

	rec.ActualPrice = decimal.NewNullDecimal(actual)
	rec.ActualPriceConverted = decimal.NewNullDecimal(models.Convert(actual, rec.ConversionRate))
	rec.ResolvedAt = &at
	rec.Outcome = policy.Classify(rec.PredictedPrice, actual)
	return rec, nil
}

func sameKey(rec models.PredictionRecord, key models.RecordKey) bool {
	return rec.Symbol == key.Symbol && rec.CreatedAt.Equal(key.CreatedAt)
}

func pendingOf(records []models.PredictionRecord) iter.Seq[models.PredictionRecord] {
	return func(yield func(models.PredictionRecord) bool) {
		for _, rec := range records {
			if !rec.IsPending() {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}
