package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "csv", cfg.LedgerBackend)
	assert.Equal(t, "predictions.csv", cfg.LedgerPath)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0.78, cfg.FallbackRate)
	assert.Equal(t, "sequence", cfg.Model)
	assert.Equal(t, 1, cfg.Horizon)
	assert.Equal(t, 7*24*time.Hour, cfg.RetrainEvery)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "AAPL, MSFT,,BTC-USD")
	t.Setenv("LEDGER_BACKEND", "SQLite3")
	t.Setenv("DATABASE_DSN", "file:test.db")
	t.Setenv("TOLERANCE_MODE", "percent")
	t.Setenv("TOLERANCE_VALUE", "2.5")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, []string{"AAPL", "MSFT", "BTC-USD"}, cfg.Symbols)
	assert.Equal(t, "sqlite3", cfg.LedgerBackend)
	assert.Equal(t, 2.5, cfg.ToleranceValue)
	assert.Equal(t, 3, cfg.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.LedgerBackend = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.LedgerBackend = "postgres" }},
		{"sqlite without dsn", func(c *Config) { c.LedgerBackend = "sqlite3" }},
		{"unknown model", func(c *Config) { c.Model = "lstm" }},
		{"unknown tolerance mode", func(c *Config) { c.ToleranceMode = "relative" }},
		{"negative tolerance", func(c *Config) { c.ToleranceValue = -1 }},
		{"unknown policy", func(c *Config) { c.EmptyLedgerPolicy = "teapot" }},
		{"zero horizon", func(c *Config) { c.Horizon = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPostgresFromDiscreteSettings(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "predictor")
	t.Setenv("DB_NAME", "ledger")

	cfg := FromEnv()

	assert.Empty(t, cfg.DatabaseDSN)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "disable", cfg.DBSSLMode)
	require.NoError(t, cfg.Validate())
}

func TestIsAlwaysTrading(t *testing.T) {
	cfg := FromEnv()

	tests := []struct {
		symbol string
		want   bool
	}{
		{"BTC-USD", true},
		{"eth-usdt", true},
		{"BTC/USD", true},
		{"eth/usd", true},
		{"ADA/USDT", true},
		{"ETH/BTC", true},
		{"EUR/USD", false},
		{"AAPL", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.IsAlwaysTrading(tt.symbol), tt.symbol)
	}

	cfg.AlwaysTradingSymbols = []string{"EUR/USD"}
	assert.True(t, cfg.IsAlwaysTrading("eur/usd"))
}
