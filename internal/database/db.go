package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DB represents a database connection
type DB struct {
	*sql.DB
	Driver string
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the parameters as a lib/pq connection string.
func (p ConnectionParams) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

// New creates a new PostgreSQL database connection
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	return Open(ctx, DriverPostgres, params.DSN())
}

// Open connects with the given driver, checks the connection and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	d, err := Connect(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	if err := d.createTables(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return d, nil
}

// Connect opens and checks a connection without touching the schema.
func Connect(ctx context.Context, driver, dsn string) (*DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// One writer; keeps transactions from tripping over SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	// Check connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, Driver: driver}, nil
}

// createTables creates the necessary tables if they don't exist
func (db *DB) createTables(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS predictions (
			seq BIGINT NOT NULL,
			symbol TEXT NOT NULL,
			created_at TEXT NOT NULL,
			target_date TEXT NOT NULL,
			model TEXT NOT NULL,
			predicted_price TEXT NOT NULL,
			predicted_price_converted TEXT NOT NULL,
			conversion_rate TEXT NOT NULL,
			actual_price TEXT,
			actual_price_converted TEXT,
			resolved_at TEXT,
			outcome TEXT NOT NULL,
			PRIMARY KEY (symbol, created_at)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS predictions_outcome_idx ON predictions (outcome)`)
	return err
}

// Rebind rewrites ? placeholders into the driver's native form.
func (db *DB) Rebind(query string) string {
	if db.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a primary key or unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
