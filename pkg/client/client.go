// Package client provides the DIRBS core system imei-batch client with
// request pacing, error classification and metrics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/logging"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// BatchPath is the core system endpoint for bulk IMEI lookups.
const BatchPath = "/imei-batch"

// Prometheus metrics for core system calls.
var (
	coreRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drs_core_requests_total",
		Help: "Total core imei-batch requests by status",
	}, []string{"status"})

	coreRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drs_core_request_duration_seconds",
		Help:    "Core imei-batch request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	coreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drs_core_errors_total",
		Help: "Total core imei-batch errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the core system API, e.g. "http://core:5000/api/v2" (REQUIRED)
	BaseURL string

	// Timeout bounds a single imei-batch call. Zero means no timeout.
	Timeout time.Duration

	// Limiter paces outgoing requests. Nil means unlimited.
	Limiter ratelimit.Limiter

	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration for the given core base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 120 * time.Second,
	}
}

// Client calls the core system imei-batch endpoint.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	endpoint   string
	logger     zerolog.Logger
}

// New creates a new core system client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("core base url is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("core base url must be http(s) (got %q)", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + BatchPath,
		logger:     logging.NewLogger("core-client"),
	}, nil
}

type batchRequest struct {
	IMEIs []string `json:"imeis"`
}

type batchResponse struct {
	Results []compliance.Record `json:"results"`
}

// FetchBatch posts one batch of IMEIs and returns the core records.
// Any non-200 response, transport error or undecodable body yields a *CoreError.
func (c *Client) FetchBatch(ctx context.Context, imeis []string) ([]compliance.Record, error) {
	if len(imeis) == 0 {
		return nil, ErrEmptyBatch
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.fail(&CoreError{Class: ErrorClassNetwork, Message: "rate limiter wait", Err: err})
	}

	body, err := json.Marshal(batchRequest{IMEIs: imeis})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("charset", "utf-8")
	req.Header.Set("keep_alive", "false")

	c.logger.Debug().
		Str("endpoint", c.endpoint).
		Int("imeis", len(imeis)).
		Msg("Executing imei-batch request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	coreRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		coreRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, c.fail(&CoreError{Class: ErrorClassNetwork, Message: "request failed", Err: err})
	}
	defer resp.Body.Close()

	coreRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, c.fail(&CoreError{
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		})
	}

	var decoded batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, c.fail(&CoreError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassMalformed,
			Message:    "decode results",
			Err:        err,
		})
	}

	c.logger.Debug().
		Int("imeis", len(imeis)).
		Int("records", len(decoded.Results)).
		Dur("duration", time.Since(start)).
		Msg("imei-batch request complete")

	return decoded.Results, nil
}

func (c *Client) fail(err *CoreError) error {
	coreErrorsTotal.WithLabelValues(string(err.Class)).Inc()
	c.logger.Warn().
		Str("endpoint", c.endpoint).
		Int("status", err.StatusCode).
		Str("error_class", string(err.Class)).
		Err(err.Err).
		Msg("Core request error")
	return err
}

// Endpoint returns the full imei-batch URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}
