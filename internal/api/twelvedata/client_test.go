package twelvedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(ClientOptions{
		APIKey:         "test-key",
		BaseURL:        url,
		RequestTimeout: 2 * time.Second,
		RequestsPerSec: 100,
		MaxRetries:     1,
		RetryInterval:  time.Millisecond,
	})
}

func TestDailyCandles(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time_series", r.URL.Path)
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{
			"meta": {"symbol": "AAPL", "interval": "1day", "currency": "USD"},
			"values": [
				{"datetime": "2024-03-06", "open": "170.0", "high": "172.0", "low": "169.5", "close": "171.25", "volume": "1200"},
				{"datetime": "2024-03-05", "open": "168.0", "high": "170.5", "low": "167.0", "close": "169.90", "volume": "1000"}
			],
			"status": "ok"
		}`))
	}))
	defer srv.Close()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	candles, err := newTestClient(srv.URL).DailyCandles(context.Background(), "AAPL", start, end)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, "1day", query["interval"])
	assert.Equal(t, "AAPL", query["symbol"])
	assert.Equal(t, "UTC", query["timezone"])
	assert.Equal(t, "2024-03-01 00:00:00", query["start_date"])
	assert.Equal(t, "test-key", query["apikey"])

	// oldest first
	assert.True(t, candles[0].Timestamp.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 169.90, candles[0].Close)
	assert.Equal(t, int64(1200), candles[1].Volume)
}

func TestIntradayCandlesParsesTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		w.Write([]byte(`{"values": [{"datetime": "2024-03-06 15:00:00", "open": "1", "high": "1", "low": "1", "close": "104.00"}], "status": "ok"}`))
	}))
	defer srv.Close()

	day := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	candles, err := newTestClient(srv.URL).IntradayCandles(context.Background(), "AAPL", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.True(t, candles[0].Timestamp.Equal(day.Add(15*time.Hour)))
}

func TestGetCandlesErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"no data message", http.StatusOK, `{"code": 400, "message": "No data is available on the specified dates", "status": "error"}`, models.ErrNoData},
		{"empty values", http.StatusOK, `{"values": [], "status": "ok"}`, models.ErrNoData},
		{"api error", http.StatusOK, `{"code": 401, "message": "apikey is incorrect", "status": "error"}`, models.ErrExternalService},
		{"bad json", http.StatusOK, `not json`, models.ErrExternalService},
		{"server error", http.StatusInternalServerError, ``, models.ErrExternalService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			now := time.Now()
			_, err := newTestClient(srv.URL).DailyCandles(context.Background(), "AAPL", now.AddDate(0, 0, -5), now)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
