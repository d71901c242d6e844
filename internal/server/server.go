// Package server exposes the prediction ledger over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Alias1177/StockPredictor/internal/ledger"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// EmptyPolicy decides how an empty result is reported.
type EmptyPolicy string

const (
	EmptyAsList     EmptyPolicy = "empty"
	EmptyAsNotFound EmptyPolicy = "not_found"
)

// ParseEmptyPolicy validates a policy name.
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch p := EmptyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case EmptyAsList, EmptyAsNotFound:
		return p, nil
	case "":
		return EmptyAsList, nil
	}
	return "", fmt.Errorf("unknown empty ledger policy %q", s)
}

// Options configures the HTTP server.
type Options struct {
	EmptyPolicy    EmptyPolicy
	AllowedOrigins []string
}

// Server serves read-only views of the ledger.
type Server struct {
	ledger ledger.Ledger
	opts   Options
	router *gin.Engine
	logger zerolog.Logger
}

// New builds the router.
func New(l ledger.Ledger, opts Options) *Server {
	if opts.EmptyPolicy == "" {
		opts.EmptyPolicy = EmptyAsList
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		ledger: l,
		opts:   opts,
		router: gin.New(),
		logger: log.With().Str("component", "server").Logger(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger(), cors(opts.AllowedOrigins))
	s.router.GET("/predictions", s.listPredictions)
	s.router.GET("/health", s.health)
	s.router.HEAD("/health", s.health)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// PredictionResponse is the wire form of a record. Prices are JSON numbers; unresolved fields are null.
type PredictionResponse struct {
	Symbol                  string       `json:"symbol"`
	CreatedAt               string       `json:"created_at"`
	TargetDate              string       `json:"target_date"`
	Model                   string       `json:"model"`
	PredictedPrice          json.Number  `json:"predicted_price"`
	PredictedPriceConverted json.Number  `json:"predicted_price_converted"`
	ConversionRate          json.Number  `json:"conversion_rate"`
	ActualPrice             *json.Number `json:"actual_price"`
	ActualPriceConverted    *json.Number `json:"actual_price_converted"`
	ResolvedAt              *string      `json:"resolved_at"`
	Outcome                 string       `json:"outcome"`
}

func toResponse(rec models.PredictionRecord) PredictionResponse {
	resp := PredictionResponse{
		Symbol:                  rec.Symbol,
		CreatedAt:               rec.CreatedAt.UTC().Format(time.RFC3339),
		TargetDate:              rec.TargetDate.Format(models.DateLayout),
		Model:                   rec.Model,
		PredictedPrice:          json.Number(rec.PredictedPrice.StringFixed(2)),
		PredictedPriceConverted: json.Number(rec.PredictedPriceConverted.StringFixed(2)),
		ConversionRate:          json.Number(rec.ConversionRate.String()),
		ActualPrice:             nullNumber(rec.ActualPrice),
		ActualPriceConverted:    nullNumber(rec.ActualPriceConverted),
		Outcome:                 string(rec.Outcome),
	}
	if rec.ResolvedAt != nil {
		at := rec.ResolvedAt.UTC().Format(time.RFC3339)
		resp.ResolvedAt = &at
	}
	return resp
}

func nullNumber(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.StringFixed(2))
	return &n
}

func (s *Server) listPredictions(c *gin.Context) {
	var outcome models.Outcome
	if raw := c.Query("outcome"); raw != "" {
		o, err := models.ParseOutcome(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outcome = o
	}
	symbol := strings.TrimSpace(c.Query("symbol"))

	records, err := s.ledger.All(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read predictions"})
		return
	}

	out := make([]PredictionResponse, 0, len(records))
	for _, rec := range records {
		if symbol != "" && !strings.EqualFold(rec.Symbol, symbol) {
			continue
		}
		if outcome != "" && rec.Outcome != outcome {
			continue
		}
		out = append(out, toResponse(rec))
	}

	if len(out) == 0 && s.opts.EmptyPolicy == EmptyAsNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "no predictions available"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request served")
	}
}

// cors answers preflight requests and tags responses for allowed origins.
func cors(origins []string) gin.HandlerFunc {
	wildcard := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
