package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	httpClient "github.com/Alias1177/StockPredictor/internal/platform/http"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://open.er-api.com/v6/latest"

// latestResponse is the body of GET {base}/{currency}.
type latestResponse struct {
	Result    string                     `json:"result"`
	BaseCode  string                     `json:"base_code"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	ErrorType string                     `json:"error-type,omitempty"`
}

// Client fetches spot rates from an open exchange-rate API.
type Client struct {
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new exchange-rate client
type ClientOptions struct {
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerSec int
	MaxRetries     int
	RetryInterval  time.Duration
}

// NewClient creates a new exchange-rate client
func NewClient(options ClientOptions) *Client {
	if options.BaseURL == "" {
		options.BaseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(options.BaseURL, "/"),
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         options.RequestTimeout,
			RequestsPerSec:  options.RequestsPerSec,
			MaxRetries:      options.MaxRetries,
			InitialInterval: options.RetryInterval,
		}),
		logger: log.With().Str("component", "exchangerate_client").Logger(),
	}
}

// Rate returns how many units of `to` one unit of `from` buys.
func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+from, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchange rate %s/%s: %w", from, to, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: reading response body: %w", models.ErrExternalService, err)
	}

	var data latestResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, fmt.Errorf("%w: parsing JSON: %w", models.ErrExternalService, err)
	}
	if data.Result != "success" {
		return decimal.Zero, fmt.Errorf("%w: exchange rate %s: %s", models.ErrExternalService, from, data.ErrorType)
	}

	rate, ok := data.Rates[to]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: exchange rate %s/%s missing", models.ErrExternalService, from, to)
	}

	c.logger.Debug().Str("from", from).Str("to", to).Str("rate", rate.String()).Msg("Fetched rate")
	return rate, nil
}
