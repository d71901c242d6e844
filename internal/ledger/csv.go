package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CSVLedger keeps the ledger in a single CSV file. Every mutation rewrites the whole
// file through a temporary file and a rename, so readers see either the old or the
// new contents. A missing file is an empty ledger.
type CSVLedger struct {
	path   string
	policy TolerancePolicy
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewCSV creates a ledger backed by the file at path.
func NewCSV(path string, policy TolerancePolicy) *CSVLedger {
	return &CSVLedger{
		path:   path,
		policy: policy,
		logger: log.With().Str("component", "csv_ledger").Str("path", path).Logger(),
	}
}

func (l *CSVLedger) Append(ctx context.Context, rec models.PredictionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read()
	if err != nil {
		return err
	}
	key := rec.Key()
	if slices.ContainsFunc(records, func(r models.PredictionRecord) bool { return sameKey(r, key) }) {
		return fmt.Errorf("%s: %w", key, ErrDuplicateKey)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.write(append(records, rec)); err != nil {
		return err
	}
	l.logger.Debug().Str("key", key.String()).Msg("Appended prediction")
	return nil
}

func (l *CSVLedger) Pending(ctx context.Context) (iter.Seq[models.PredictionRecord], error) {
	records, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	return pendingOf(records), nil
}

func (l *CSVLedger) Resolve(ctx context.Context, key models.RecordKey, actual decimal.Decimal, resolvedAt time.Time) (models.PredictionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read()
	if err != nil {
		return models.PredictionRecord{}, err
	}
	idx := slices.IndexFunc(records, func(r models.PredictionRecord) bool { return sameKey(r, key) })
	if idx < 0 {
		return models.PredictionRecord{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	updated, err := resolve(records[idx], actual, resolvedAt, l.policy)
	if err != nil {
		return updated, err
	}
	if err := ctx.Err(); err != nil {
		return models.PredictionRecord{}, err
	}

	records[idx] = updated
	if err := l.write(records); err != nil {
		return models.PredictionRecord{}, err
	}
	return updated, nil
}

func (l *CSVLedger) All(ctx context.Context) ([]models.PredictionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *CSVLedger) Close() error { return nil }

func (l *CSVLedger) read() ([]models.PredictionRecord, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Columns)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s header: %w", ErrCorrupt, l.path, err)
	}
	if !slices.Equal(header, Columns) {
		return nil, fmt.Errorf("%w: %s: unexpected header %v", ErrCorrupt, l.path, header)
	}

	var records []models.PredictionRecord
	for line := 2; ; line++ {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, l.path, err)
		}
		rec, err := decodeRecord(cells)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %w", ErrCorrupt, l.path, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (l *CSVLedger) write(records []models.PredictionRecord) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Columns); err != nil {
		tmp.Close()
		return err
	}
	for _, rec := range records {
		if err := w.Write(encodeRecord(rec)); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), l.path)
}
