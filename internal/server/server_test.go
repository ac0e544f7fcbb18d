package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globeco/order-submission-service/internal/config"
	"github.com/globeco/order-submission-service/internal/domain/order"
	"github.com/globeco/order-submission-service/internal/gate"
	"github.com/globeco/order-submission-service/internal/handlers"
	"github.com/globeco/order-submission-service/internal/middleware"
	"github.com/globeco/order-submission-service/internal/orchestrator"
	"github.com/globeco/order-submission-service/internal/orderstore"
	"github.com/globeco/order-submission-service/internal/tradeclient"
)

// stubGate, stubBreaker, noopTradeClient, stubAudit and stubStore are a
// minimal wiring to exercise the router end to end without touching a
// database or the downstream trade service.

type stubGate struct{}

func (stubGate) Acquire(ctx context.Context) (gate.Release, error) { return func() {}, nil }

type stubBreaker struct{}

func (stubBreaker) Admit() error      { return nil }
func (stubBreaker) RecordResult(bool) {}

// noopTradeClient satisfies orchestrator.TradeClient but is never called by
// these tests, since LoadForSubmission always returns an empty map.
type noopTradeClient struct{}

func (noopTradeClient) BulkSubmit(ctx context.Context, submissions []tradeclient.Submission) (*tradeclient.BulkResponse, error) {
	return nil, nil
}

type stubAudit struct{}

func (stubAudit) CommitMismatch(orderID, tradeOrderID int64) {}
func (stubAudit) ReleaseMismatch(orderID int64)              {}

type stubStore struct{}

func (stubStore) LoadForSubmission(ctx context.Context, ids []int64) (map[int64]*order.Order, error) {
	return map[int64]*order.Order{}, nil
}
func (stubStore) ReserveBatch(ctx context.Context, ids []int64) ([]orderstore.ReservationOutcome, error) {
	return nil, nil
}
func (stubStore) ReleaseBatch(ctx context.Context, ids []int64, chunkSize int) ([]int64, error) {
	return nil, nil
}
func (stubStore) ReconcileBatch(ctx context.Context, items []orderstore.ReconcileItem, chunkSize int) ([]orderstore.ReconcileResult, error) {
	return nil, nil
}
func (stubStore) CreateOrder(ctx context.Context, draft *order.Order) (*order.Order, error) {
	return nil, order.ErrInvalidPortfolioID
}

func (stubStore) ListStatuses(ctx context.Context) ([]*order.Status, error)  { return nil, nil }
func (stubStore) GetStatus(ctx context.Context, id int64) (*order.Status, error) {
	return nil, order.ErrStatusNotFound
}
func (stubStore) CreateStatus(ctx context.Context, code, description string) (*order.Status, error) {
	return &order.Status{ID: 1, Code: code, Description: description, Version: 1}, nil
}
func (stubStore) UpdateStatus(ctx context.Context, id int64, description string, expectedVersion int64) (*order.Status, error) {
	return nil, order.ErrStatusNotFound
}
func (stubStore) DeleteStatus(ctx context.Context, id int64, expectedVersion int64) error {
	return order.ErrStatusNotFound
}

func (stubStore) ListOrderTypes(ctx context.Context) ([]*order.OrderType, error) { return nil, nil }
func (stubStore) GetOrderType(ctx context.Context, id int64) (*order.OrderType, error) {
	return nil, order.ErrStatusNotFound
}
func (stubStore) CreateOrderType(ctx context.Context, code, description string) (*order.OrderType, error) {
	return &order.OrderType{ID: 1, Code: code, Description: description, Version: 1}, nil
}
func (stubStore) UpdateOrderType(ctx context.Context, id int64, description string, expectedVersion int64) (*order.OrderType, error) {
	return nil, order.ErrStatusNotFound
}
func (stubStore) DeleteOrderType(ctx context.Context, id int64, expectedVersion int64) error {
	return order.ErrStatusNotFound
}

func (stubStore) ListBlotters(ctx context.Context) ([]*order.Blotter, error) { return nil, nil }
func (stubStore) GetBlotter(ctx context.Context, id int64) (*order.Blotter, error) {
	return nil, order.ErrStatusNotFound
}
func (stubStore) CreateBlotter(ctx context.Context, name string) (*order.Blotter, error) {
	return &order.Blotter{ID: 1, Name: name, Version: 1}, nil
}
func (stubStore) UpdateBlotter(ctx context.Context, id int64, name string, expectedVersion int64) (*order.Blotter, error) {
	return nil, order.ErrStatusNotFound
}
func (stubStore) DeleteBlotter(ctx context.Context, id int64, expectedVersion int64) error {
	return order.ErrStatusNotFound
}

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := stubStore{}
	orch := orchestrator.New(store, stubGate{}, stubBreaker{}, noopTradeClient{}, stubAudit{}, nil, orchestrator.Config{})
	services := &Services{
		OrderHandler:     handlers.NewOrderHandler(orch, nil),
		ReferenceHandler: handlers.NewReferenceHandler(store, nil),
	}

	srv := New(&config.Config{Port: 8080}, services, nil)
	srv.Setup()
	return srv
}

func TestHealthCheck(t *testing.T) {
	// Arrange
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()

	// Act
	srv.Router().ServeHTTP(resp, req)

	// Assert
	require.Equal(t, http.StatusOK, resp.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "healthy", out["status"])
}

func TestCorrelationIDPropagatesToResponseHeader(t *testing.T) {
	// Arrange
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.CorrelationIDHeader, "test-correlation-id")
	resp := httptest.NewRecorder()

	// Act
	srv.Router().ServeHTTP(resp, req)

	// Assert
	assert.Equal(t, "test-correlation-id", resp.Header().Get(middleware.CorrelationIDHeader))
}

func TestCorrelationIDGeneratedWhenAbsent(t *testing.T) {
	// Arrange
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()

	// Act
	srv.Router().ServeHTTP(resp, req)

	// Assert
	assert.NotEmpty(t, resp.Header().Get(middleware.CorrelationIDHeader))
}

func TestUnknownStatusReturns404(t *testing.T) {
	// Arrange
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/statuses/999", nil)
	resp := httptest.NewRecorder()

	// Act
	srv.Router().ServeHTTP(resp, req)

	// Assert
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
