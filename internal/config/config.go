package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Market data
	TwelveAPIKey     string        `env:"TWELVE_API_KEY"`
	TwelveBaseURL    string        `env:"TWELVE_BASE_URL" envDefault:"https://api.twelvedata.com"`
	IntradayInterval string        `env:"INTRADAY_INTERVAL" envDefault:"1h"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30"` // seconds
	RequestsPerSec   int           `env:"REQUESTS_PER_SEC" envDefault:"5"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"3"`

	// Ledger
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"csv"`
	LedgerPath    string `env:"LEDGER_PATH" envDefault:"predictions.csv"`
	DatabaseDSN   string `env:"DATABASE_DSN"`
	// Discrete PostgreSQL settings, used when DATABASE_DSN is empty
	DBHost     string `env:"DB_HOST"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// Tolerance
	ToleranceMode  string  `env:"TOLERANCE_MODE" envDefault:"absolute"`
	ToleranceValue float64 `env:"TOLERANCE_VALUE" envDefault:"5"`

	// Symbols
	SymbolsFile           string   `env:"SYMBOLS_FILE" envDefault:"stocks.csv"`
	Symbols               []string `env:"SYMBOLS"`
	AlwaysTradingSymbols  []string `env:"ALWAYS_TRADING_SYMBOLS" envDefault:"BTC/USD,ETH/USD,SOL/USD,XRP/USD,DOGE/USD,LTC/USD"`
	AlwaysTradingSuffixes []string `env:"ALWAYS_TRADING_SUFFIXES" envDefault:"-USD,-USDT,/USDT,/BTC"`

	// Currency
	FXBaseURL       string        `env:"FX_BASE_URL" envDefault:"https://open.er-api.com/v6/latest"`
	SourceCurrency  string        `env:"SOURCE_CURRENCY" envDefault:"USD"`
	DisplayCurrency string        `env:"DISPLAY_CURRENCY" envDefault:"GBP"`
	FallbackRate    float64       `env:"FALLBACK_RATE" envDefault:"0.78"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RateCacheTTL    time.Duration `env:"RATE_CACHE_TTL" envDefault:"3600"` // seconds

	// Forecasting
	Model          string        `env:"MODEL" envDefault:"sequence"`
	SequenceWindow int           `env:"SEQUENCE_WINDOW" envDefault:"10"`
	Trees          int           `env:"TREES" envDefault:"50"`
	Horizon        int           `env:"HORIZON" envDefault:"1"`
	LookbackDays   int           `env:"LOOKBACK_DAYS" envDefault:"730"`
	MinLookback    int           `env:"MIN_LOOKBACK" envDefault:"60"`
	HoldoutRatio   float64       `env:"HOLDOUT_RATIO" envDefault:"0.2"`
	ModelDir       string        `env:"MODEL_DIR" envDefault:"models"`
	RetrainEvery   time.Duration `env:"RETRAIN_EVERY" envDefault:"168"` // hours

	// Query endpoint
	ListenAddr        string   `env:"LISTEN_ADDR" envDefault:":8080"`
	AllowedOrigins    []string `env:"ALLOWED_ORIGINS" envDefault:"*"`
	EmptyLedgerPolicy string   `env:"EMPTY_LEDGER_POLICY" envDefault:"empty"`

	// Notifications
	TelegramToken  string   `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64    `env:"TELEGRAM_CHAT_ID"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS"`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"predictions"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration from the process environment without validating it.
func FromEnv() *Config {
	var cfg Config

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")

	cfg.TwelveAPIKey = os.Getenv("TWELVE_API_KEY")
	cfg.TwelveBaseURL = getEnvWithDefault("TWELVE_BASE_URL", "https://api.twelvedata.com")
	cfg.IntradayInterval = getEnvWithDefault("INTRADAY_INTERVAL", "1h")
	cfg.RequestTimeout = time.Duration(getEnvIntWithDefault("REQUEST_TIMEOUT", 30)) * time.Second
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)
	cfg.MaxRetries = getEnvIntWithDefault("MAX_RETRIES", 3)

	cfg.LedgerBackend = strings.ToLower(getEnvWithDefault("LEDGER_BACKEND", "csv"))
	cfg.LedgerPath = getEnvWithDefault("LEDGER_PATH", "predictions.csv")
	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	cfg.DBHost = os.Getenv("DB_HOST")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = os.Getenv("DB_USER")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.ToleranceMode = strings.ToLower(getEnvWithDefault("TOLERANCE_MODE", "absolute"))
	cfg.ToleranceValue = getEnvFloatWithDefault("TOLERANCE_VALUE", 5)

	cfg.SymbolsFile = getEnvWithDefault("SYMBOLS_FILE", "stocks.csv")
	cfg.Symbols = getEnvListWithDefault("SYMBOLS", nil)
	// Twelve Data names crypto and forex pairs alike (BTC/USD, EUR/USD), so /USD crypto
	// pairs are listed by name and only unambiguous quote suffixes are matched.
	cfg.AlwaysTradingSymbols = getEnvListWithDefault("ALWAYS_TRADING_SYMBOLS",
		[]string{"BTC/USD", "ETH/USD", "SOL/USD", "XRP/USD", "DOGE/USD", "LTC/USD"})
	cfg.AlwaysTradingSuffixes = getEnvListWithDefault("ALWAYS_TRADING_SUFFIXES", []string{"-USD", "-USDT", "/USDT", "/BTC"})

	cfg.FXBaseURL = getEnvWithDefault("FX_BASE_URL", "https://open.er-api.com/v6/latest")
	cfg.SourceCurrency = strings.ToUpper(getEnvWithDefault("SOURCE_CURRENCY", "USD"))
	cfg.DisplayCurrency = strings.ToUpper(getEnvWithDefault("DISPLAY_CURRENCY", "GBP"))
	cfg.FallbackRate = getEnvFloatWithDefault("FALLBACK_RATE", 0.78)
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RateCacheTTL = time.Duration(getEnvIntWithDefault("RATE_CACHE_TTL", 3600)) * time.Second

	cfg.Model = strings.ToLower(getEnvWithDefault("MODEL", "sequence"))
	cfg.SequenceWindow = getEnvIntWithDefault("SEQUENCE_WINDOW", 10)
	cfg.Trees = getEnvIntWithDefault("TREES", 50)
	cfg.Horizon = getEnvIntWithDefault("HORIZON", 1)
	cfg.LookbackDays = getEnvIntWithDefault("LOOKBACK_DAYS", 730)
	cfg.MinLookback = getEnvIntWithDefault("MIN_LOOKBACK", 60)
	cfg.HoldoutRatio = getEnvFloatWithDefault("HOLDOUT_RATIO", 0.2)
	cfg.ModelDir = getEnvWithDefault("MODEL_DIR", "models")
	cfg.RetrainEvery = time.Duration(getEnvIntWithDefault("RETRAIN_EVERY", 168)) * time.Hour

	cfg.ListenAddr = getEnvWithDefault("LISTEN_ADDR", ":8080")
	cfg.AllowedOrigins = getEnvListWithDefault("ALLOWED_ORIGINS", []string{"*"})
	cfg.EmptyLedgerPolicy = strings.ToLower(getEnvWithDefault("EMPTY_LEDGER_POLICY", "empty"))

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = int64(getEnvIntWithDefault("TELEGRAM_CHAT_ID", 0))
	cfg.KafkaBrokers = getEnvListWithDefault("KAFKA_BROKERS", nil)
	cfg.KafkaTopic = getEnvWithDefault("KAFKA_TOPIC", "predictions")

	return &cfg
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	var errs []error

	switch c.LedgerBackend {
	case "csv":
		if c.LedgerPath == "" {
			errs = append(errs, errors.New("LEDGER_PATH is required for the csv backend"))
		}
	case "postgres":
		if c.DatabaseDSN == "" && c.DBHost == "" {
			errs = append(errs, errors.New("DATABASE_DSN or DB_HOST is required for the postgres backend"))
		}
	case "sqlite3":
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for the sqlite3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend))
	}

	switch c.ToleranceMode {
	case "absolute", "percent":
	default:
		errs = append(errs, fmt.Errorf("unknown TOLERANCE_MODE %q", c.ToleranceMode))
	}
	if c.ToleranceValue < 0 {
		errs = append(errs, errors.New("TOLERANCE_VALUE must not be negative"))
	}

	switch c.Model {
	case "sequence", "boosted_trees":
	default:
		errs = append(errs, fmt.Errorf("unknown MODEL %q", c.Model))
	}

	switch c.EmptyLedgerPolicy {
	case "empty", "not_found":
	default:
		errs = append(errs, fmt.Errorf("unknown EMPTY_LEDGER_POLICY %q", c.EmptyLedgerPolicy))
	}

	if c.Horizon < 1 {
		errs = append(errs, errors.New("HORIZON must be at least 1"))
	}
	if c.HoldoutRatio < 0 || c.HoldoutRatio >= 1 {
		errs = append(errs, errors.New("HOLDOUT_RATIO must be in [0, 1)"))
	}
	if c.FallbackRate <= 0 {
		errs = append(errs, errors.New("FALLBACK_RATE must be positive"))
	}

	return errors.Join(errs...)
}

// IsAlwaysTrading reports whether the symbol trades every calendar day.
func (c *Config) IsAlwaysTrading(symbol string) bool {
	upper := strings.ToUpper(symbol)
	for _, s := range c.AlwaysTradingSymbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	for _, suffix := range c.AlwaysTradingSuffixes {
		if suffix != "" && strings.HasSuffix(upper, strings.ToUpper(suffix)) {
			return true
		}
	}
	return false
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
