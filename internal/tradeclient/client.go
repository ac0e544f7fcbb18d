// Package tradeclient is the HTTP client to the downstream trade
// execution service's bulk endpoint. It never retries a request: the
// orchestrator is the sole retry decision point, and the default policy
// for bulk submissions is zero retries to avoid duplicating a partially
// succeeded batch. The only retry inside this package is of the dial
// step (see retryingDialContext), before any request bytes are written.
package tradeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrRejected marks a downstream 400: a client-side mapping error in our
// request that is not retryable.
var ErrRejected = errors.New("tradeclient: downstream rejected the request")

// ErrTransient marks a downstream 5xx or network-level failure that is
// retryable at the orchestrator level (after rolling back reservations).
var ErrTransient = errors.New("tradeclient: downstream transient failure")

// Submission is one order offered to the downstream bulk endpoint.
type Submission struct {
	OrderID     int64
	Quantity    decimal.Decimal
	LimitPrice  *decimal.Decimal
	SecurityID  string
	PortfolioID string
	OrderType   string
}

// SubmissionResult is the downstream's per-submission outcome, in the
// same order as the request.
type SubmissionResult struct {
	OrderID      int64
	Success      bool
	TradeOrderID *int64
	Message      string
}

// AggregateStatus mirrors the downstream's own aggregate classification.
type AggregateStatus string

const (
	StatusAllOK     AggregateStatus = "all-ok"
	StatusPartial   AggregateStatus = "partial"
	StatusAllFailed AggregateStatus = "all-failed"
)

// BulkResponse is the parsed downstream response.
type BulkResponse struct {
	Status  AggregateStatus
	Results []SubmissionResult
}

// wire shapes -- kept separate from the domain-facing types above so
// this package owns exactly the downstream's JSON contract.

type wireSubmission struct {
	OrderID     int64            `json:"orderId"`
	Quantity    decimal.Decimal  `json:"quantity"`
	LimitPrice  *decimal.Decimal `json:"limitPrice,omitempty"`
	SecurityID  string           `json:"securityId"`
	PortfolioID string           `json:"portfolioId"`
	OrderType   string           `json:"orderType"`
}

type wireRequest struct {
	Submissions []wireSubmission `json:"submissions"`
}

type wireResult struct {
	OrderID      int64  `json:"orderId"`
	TradeOrderID *int64 `json:"tradeOrderId"`
	Message      string `json:"message"`
}

type wireResponse struct {
	Status         string       `json:"status"`
	TotalRequested int          `json:"totalRequested"`
	Successful     int          `json:"successful"`
	Failed         int          `json:"failed"`
	Results        []wireResult `json:"results"`
}

// Config controls connection bounds and timeouts per the design: connect
// <= 10s, total <= 60s, a small bounded number of concurrent connections.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
	MaxConnections int
}

// Client is the pooled HTTP client to the downstream bulk endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *zap.Logger
}

// New builds a Client with a bounded transport and the design's default
// timeouts applied when the config leaves them zero.
func New(cfg Config, logger *zap.Logger) *Client {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	totalTimeout := cfg.TotalTimeout
	if totalTimeout <= 0 {
		totalTimeout = 60 * time.Second
	}
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:         retryingDialContext(dialer, connectTimeout),
		MaxConnsPerHost:     maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		http:    &http.Client{Transport: transport, Timeout: totalTimeout},
		baseURL: cfg.BaseURL,
		logger:  logger,
	}
}

// retryingDialContext wraps dialer with a short exponential backoff over
// the TCP/TLS handshake only: up to 2 retries within the connect
// timeout. This never retries the request-response cycle itself, so it
// cannot cause a bulk submission to be sent twice; it only smooths over
// a transient refused-connection or DNS blip when first reaching the
// downstream host.
func retryingDialContext(dialer *net.Dialer, connectTimeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var conn net.Conn
		operation := func() error {
			c, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}

		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = connectTimeout
		policy := backoff.WithContext(backoff.WithMaxRetries(eb, 2), ctx)
		if err := backoff.Retry(operation, policy); err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// BulkSubmit offers submissions to the downstream bulk endpoint in a
// single call and returns per-submission results in request order.
// submissions must number at most 100; the caller (orchestrator) is
// responsible for that bound.
func (c *Client) BulkSubmit(ctx context.Context, submissions []Submission) (*BulkResponse, error) {
	wire := wireRequest{Submissions: make([]wireSubmission, len(submissions))}
	for i, s := range submissions {
		wire.Submissions[i] = wireSubmission{
			OrderID:     s.OrderID,
			Quantity:    s.Quantity,
			LimitPrice:  s.LimitPrice,
			SecurityID:  s.SecurityID,
			PortfolioID: s.PortfolioID,
			OrderType:   s.OrderType,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("tradeclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tradeOrders/bulk", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tradeclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusCreated:
		return parseSuccess(respBody, StatusAllOK)
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusMultiStatus:
		return parseSuccess(respBody, StatusPartial)
	case resp.StatusCode == http.StatusBadRequest:
		c.logger.Error("downstream rejected bulk submission",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return nil, fmt.Errorf("%w: %s", ErrRejected, string(respBody))
	case resp.StatusCode >= 500:
		c.logger.Error("downstream returned transient error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, string(respBody))
	default:
		c.logger.Error("downstream returned unexpected status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransient, resp.StatusCode)
	}
}

func parseSuccess(body []byte, fallbackStatus AggregateStatus) (*BulkResponse, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}

	status := AggregateStatus(wr.Status)
	if status == "" {
		status = fallbackStatus
	}

	results := make([]SubmissionResult, len(wr.Results))
	for i, r := range wr.Results {
		results[i] = SubmissionResult{
			OrderID:      r.OrderID,
			Success:      r.TradeOrderID != nil,
			TradeOrderID: r.TradeOrderID,
			Message:      r.Message,
		}
	}

	return &BulkResponse{Status: status, Results: results}, nil
}
