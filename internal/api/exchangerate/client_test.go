package exchangerate

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
		BaseURL:        url,
		RequestTimeout: 2 * time.Second,
		RequestsPerSec: 100,
		RetryInterval:  time.Millisecond,
	})
}

func TestRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/USD", r.URL.Path)
		w.Write([]byte(`{"result": "success", "base_code": "USD", "rates": {"USD": 1, "GBP": 0.7912, "EUR": 0.92}}`))
	}))
	defer srv.Close()

	rate, err := newTestClient(srv.URL).Rate(context.Background(), "usd", "gbp")
	require.NoError(t, err)
	assert.Equal(t, "0.7912", rate.String())
}

func TestRateSameCurrency(t *testing.T) {
	rate, err := newTestClient("http://127.0.0.1:0").Rate(context.Background(), "USD", "USD")
	require.NoError(t, err)
	assert.Equal(t, "1", rate.String())
}

func TestRateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unsupported code", http.StatusOK, `{"result": "error", "error-type": "unsupported-code"}`},
		{"missing target", http.StatusOK, `{"result": "success", "rates": {"EUR": 0.92}}`},
		{"garbage", http.StatusOK, `<html>`},
		{"not found", http.StatusNotFound, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Rate(context.Background(), "USD", "GBP")
			assert.ErrorIs(t, err, models.ErrExternalService)
		})
	}
}
