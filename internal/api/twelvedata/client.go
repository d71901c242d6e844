package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	httpClient "github.com/Alias1177/StockPredictor/internal/platform/http"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://api.twelvedata.com"
	requestLayout  = "2006-01-02 15:04:05"
)

// Client is the TwelveData API client
type Client struct {
	apiKey           string
	baseURL          string
	intradayInterval string
	httpClient       *httpClient.Client
	logger           zerolog.Logger
}

// ClientOptions holds options for creating a new TwelveData client
type ClientOptions struct {
	APIKey           string
	BaseURL          string
	IntradayInterval string
	RequestTimeout   time.Duration
	RequestsPerSec   int
	MaxRetries       int
	MaxRetryTimeout  time.Duration
	// RetryInterval overrides the first backoff delay.
	RetryInterval time.Duration
}

// NewClient creates a new TwelveData API client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.ClientOptions{
		Timeout:         options.RequestTimeout,
		RequestsPerSec:  options.RequestsPerSec,
		MaxRetries:      options.MaxRetries,
		MaxRetryTimeout: options.MaxRetryTimeout,
		InitialInterval: options.RetryInterval,
	}

	// Apply defaults if not set
	if httpOpts.Timeout == 0 {
		httpOpts.Timeout = 30 * time.Second
	}
	if httpOpts.RequestsPerSec == 0 {
		httpOpts.RequestsPerSec = 5
	}
	if options.BaseURL == "" {
		options.BaseURL = defaultBaseURL
	}
	if options.IntradayInterval == "" {
		options.IntradayInterval = "1h"
	}

	return &Client{
		apiKey:           options.APIKey,
		baseURL:          strings.TrimRight(options.BaseURL, "/"),
		intradayInterval: options.IntradayInterval,
		httpClient:       httpClient.NewClient(httpOpts),
		logger:           log.With().Str("component", "twelvedata_client").Logger(),
	}
}

// DailyCandles fetches daily candles between start and end, oldest first.
func (c *Client) DailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	return c.GetCandles(ctx, symbol, "1day", start, end)
}

// IntradayCandles fetches candles at the configured intraday interval between start and end, oldest first.
func (c *Client) IntradayCandles(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	return c.GetCandles(ctx, symbol, c.intradayInterval, start, end)
}

// GetCandles fetches candle data from Twelve Data API.
// An empty series or a "no data" API error yields models.ErrNoData.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Candle, error) {
	days := int(end.Sub(start).Hours()/24) + 1

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	query.Set("start_date", start.UTC().Format(requestLayout))
	query.Set("end_date", end.UTC().Format(requestLayout))
	query.Set("timezone", "UTC")
	query.Set("order", "ASC")
	query.Set("outputsize", fmt.Sprint(models.CalculateOutputSize(interval, days)))
	query.Set("apikey", c.apiKey)

	endpoint := c.baseURL + "/time_series?" + query.Encode()

	c.logger.Debug().Str("symbol", symbol).Str("interval", interval).
		Time("start", start).Time("end", end).Msg("Fetching candles")

	// Create a new request with context
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("twelve data %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", models.ErrExternalService, err)
	}

	var data models.TwelveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Str("response", truncate(body)).Msg("Error parsing JSON")
		return nil, fmt.Errorf("%w: parsing JSON: %w", models.ErrExternalService, err)
	}

	if data.Status == "error" {
		if isNoDataMessage(data.Message) {
			c.logger.Debug().Str("symbol", symbol).Str("message", data.Message).Msg("No data for range")
			return nil, fmt.Errorf("twelve data %s: %w", symbol, models.ErrNoData)
		}
		c.logger.Error().Int("code", data.Code).Str("message", data.Message).Msg("Twelve Data API error")
		return nil, fmt.Errorf("%w: twelve data %s: %d %s", models.ErrExternalService, symbol, data.Code, data.Message)
	}

	if len(data.Values) == 0 {
		c.logger.Warn().Str("symbol", symbol).Msg("No candles in response")
		return nil, fmt.Errorf("twelve data %s: %w", symbol, models.ErrNoData)
	}

	candles := make([]models.Candle, 0, len(data.Values))
	for _, v := range data.Values {
		ts, err := parseDatetime(v.Datetime)
		if err != nil {
			return nil, fmt.Errorf("%w: twelve data %s: %w", models.ErrExternalService, symbol, err)
		}
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      v.Open,
			High:      v.High,
			Low:       v.Low,
			Close:     v.Close,
			Volume:    v.Volume,
		})
	}

	// Sort candles by datetime (oldest first for proper calculations)
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	c.logger.Debug().Str("symbol", symbol).Int("count", len(candles)).Msg("Fetched candles")
	return candles, nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range []string{requestLayout, models.DateLayout, time.RFC3339} {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
}

func isNoDataMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "no data") || strings.Contains(msg, "not found")
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
