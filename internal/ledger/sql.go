package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/Alias1177/StockPredictor/internal/database"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SQLLedger keeps the ledger in the predictions table. Values are stored as text in the
// same encoding as the CSV backend; seq preserves insertion order.
type SQLLedger struct {
	db     *database.DB
	policy TolerancePolicy
	logger zerolog.Logger
}

// NewSQL creates a ledger on an open database.
func NewSQL(db *database.DB, policy TolerancePolicy) *SQLLedger {
	return &SQLLedger{
		db:     db,
		policy: policy,
		logger: log.With().Str("component", "sql_ledger").Str("driver", db.Driver).Logger(),
	}
}

var selectColumns = strings.Join(Columns, ", ")

func (l *SQLLedger) Append(ctx context.Context, rec models.PredictionRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM predictions`).Scan(&seq); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	cells := encodeRecord(rec)
	args := make([]any, 0, len(cells)+1)
	args = append(args, seq)
	for i, c := range cells {
		if c == "" && i >= 7 && i <= 9 {
			args = append(args, nil)
			continue
		}
		args = append(args, c)
	}

	query := l.db.Rebind(`INSERT INTO predictions (seq, ` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", rec.Key(), ErrDuplicateKey)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", rec.Key(), ErrDuplicateKey)
		}
		return err
	}

	l.logger.Debug().Str("key", rec.Key().String()).Int64("seq", seq).Msg("Appended prediction")
	return nil
}

func (l *SQLLedger) Pending(ctx context.Context) (iter.Seq[models.PredictionRecord], error) {
	records, err := l.query(ctx, l.db, `WHERE outcome = ?`, string(models.OutcomePending))
	if err != nil {
		return nil, err
	}
	return pendingOf(records), nil
}

func (l *SQLLedger) Resolve(ctx context.Context, key models.RecordKey, actual decimal.Decimal, resolvedAt time.Time) (models.PredictionRecord, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PredictionRecord{}, err
	}
	defer tx.Rollback()

	createdAt := key.CreatedAt.UTC().Format(time.RFC3339)
	records, err := l.query(ctx, tx, `WHERE symbol = ? AND created_at = ?`, key.Symbol, createdAt)
	if err != nil {
		return models.PredictionRecord{}, err
	}
	if len(records) == 0 {
		return models.PredictionRecord{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	updated, err := resolve(records[0], actual, resolvedAt, l.policy)
	if err != nil {
		return updated, err
	}

	cells := encodeRecord(updated)
	res, err := tx.ExecContext(ctx, l.db.Rebind(`
		UPDATE predictions
		SET actual_price = ?, actual_price_converted = ?, resolved_at = ?, outcome = ?
		WHERE symbol = ? AND created_at = ? AND outcome = ?`),
		cells[7], cells[8], cells[9], cells[10], key.Symbol, createdAt, string(models.OutcomePending))
	if err != nil {
		return models.PredictionRecord{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.PredictionRecord{}, fmt.Errorf("%s: %w", key, ErrAlreadyResolved)
	}
	if err := tx.Commit(); err != nil {
		return models.PredictionRecord{}, err
	}
	return updated, nil
}

func (l *SQLLedger) All(ctx context.Context) ([]models.PredictionRecord, error) {
	return l.query(ctx, l.db, "")
}

func (l *SQLLedger) Close() error {
	return l.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (l *SQLLedger) query(ctx context.Context, q queryer, where string, args ...any) ([]models.PredictionRecord, error) {
	rows, err := q.QueryContext(ctx, l.db.Rebind(`SELECT `+selectColumns+` FROM predictions `+where+` ORDER BY seq`), args...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer rows.Close()

	var records []models.PredictionRecord
	for rows.Next() {
		var actual, actualConverted, resolvedAt sql.NullString
		cells := make([]string, len(Columns))
		if err := rows.Scan(&cells[0], &cells[1], &cells[2], &cells[3], &cells[4], &cells[5], &cells[6],
			&actual, &actualConverted, &resolvedAt, &cells[10]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		cells[7], cells[8], cells[9] = actual.String, actualConverted.String, resolvedAt.String

		rec, err := decodeRecord(cells)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return records, nil
}
