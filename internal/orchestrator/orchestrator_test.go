package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globeco/order-submission-service/internal/apierr"
	"github.com/globeco/order-submission-service/internal/domain/order"
	"github.com/globeco/order-submission-service/internal/gate"
	"github.com/globeco/order-submission-service/internal/orderstore"
	"github.com/globeco/order-submission-service/internal/tradeclient"
)

// --- fakes ---

type fakeGate struct {
	failOnce bool
}

func (f *fakeGate) Acquire(ctx context.Context) (gate.Release, error) {
	if f.failOnce {
		f.failOnce = false
		return func() {}, gate.ErrTimeout
	}
	return func() {}, nil
}

type fakeBreaker struct {
	admitErr     error
	recordedWith []bool
}

func (f *fakeBreaker) Admit() error { return f.admitErr }
func (f *fakeBreaker) RecordResult(success bool) {
	f.recordedWith = append(f.recordedWith, success)
}

type fakeTradeClient struct {
	resp *tradeclient.BulkResponse
	err  error
}

func (f *fakeTradeClient) BulkSubmit(ctx context.Context, submissions []tradeclient.Submission) (*tradeclient.BulkResponse, error) {
	return f.resp, f.err
}

type fakeAudit struct {
	commitMismatches  []int64
	releaseMismatches []int64
}

func (f *fakeAudit) CommitMismatch(orderID, tradeOrderID int64) {
	f.commitMismatches = append(f.commitMismatches, orderID)
}
func (f *fakeAudit) ReleaseMismatch(orderID int64) {
	f.releaseMismatches = append(f.releaseMismatches, orderID)
}

type fakeStore struct {
	orders            map[int64]*order.Order
	reserveOutcomes   map[int64]bool
	releasedIDs       []int64
	reconcileCalls    [][]orderstore.ReconcileItem
	reconcileOverride func([]orderstore.ReconcileItem) []orderstore.ReconcileResult
	createErr         error
	nextID            int64
}

func (f *fakeStore) LoadForSubmission(ctx context.Context, ids []int64) (map[int64]*order.Order, error) {
	out := map[int64]*order.Order{}
	for _, id := range ids {
		if o, ok := f.orders[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (f *fakeStore) ReserveBatch(ctx context.Context, ids []int64) ([]orderstore.ReservationOutcome, error) {
	seen := map[int64]bool{}
	out := make([]orderstore.ReservationOutcome, len(ids))
	for i, id := range ids {
		reserved := f.reserveOutcomes[id] && !seen[id]
		seen[id] = true
		out[i] = orderstore.ReservationOutcome{OrderID: id, Reserved: reserved}
	}
	return out, nil
}

func (f *fakeStore) ReleaseBatch(ctx context.Context, ids []int64, chunkSize int) ([]int64, error) {
	f.releasedIDs = append(f.releasedIDs, ids...)
	return nil, nil
}

func (f *fakeStore) ReconcileBatch(ctx context.Context, items []orderstore.ReconcileItem, chunkSize int) ([]orderstore.ReconcileResult, error) {
	f.reconcileCalls = append(f.reconcileCalls, items)
	if f.reconcileOverride != nil {
		return f.reconcileOverride(items), nil
	}
	results := make([]orderstore.ReconcileResult, len(items))
	for i, it := range items {
		results[i] = orderstore.ReconcileResult{OrderID: it.OrderID, Success: it.Success, Matched: true, WasCommit: it.Success}
	}
	return results, nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, draft *order.Order) (*order.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if draft.PortfolioID == "" {
		return nil, order.ErrInvalidPortfolioID
	}
	f.nextID++
	created := *draft
	created.ID = f.nextID
	created.Version = 1
	return &created, nil
}

func newOrder(id int64, statusCode string, tradeOrderID *int64) *order.Order {
	return &order.Order{
		ID:           id,
		PortfolioID:  "PORT1",
		OrderTypeID:  1,
		SecurityID:   "AAPL",
		Quantity:     decimal.NewFromInt(10),
		TradeOrderID: tradeOrderID,
		Status:       &order.Status{Code: statusCode},
		OrderType:    &order.OrderType{Code: "MARKET"},
	}
}

func newTestOrchestrator(store *fakeStore, client TradeClient, breaker Breaker) *Orchestrator {
	return New(store, &fakeGate{}, breaker, client, &fakeAudit{}, nil, Config{})
}

// --- tests ---

func TestSubmitAllSuccess(t *testing.T) {
	store := &fakeStore{
		orders:          map[int64]*order.Order{1: newOrder(1, order.StatusCodeNew, nil), 2: newOrder(2, order.StatusCodeNew, nil)},
		reserveOutcomes: map[int64]bool{1: true, 2: true},
	}
	t1, t2 := int64(101), int64(102)
	client := &fakeTradeClient{resp: &tradeclient.BulkResponse{
		Status: tradeclient.StatusAllOK,
		Results: []tradeclient.SubmissionResult{
			{OrderID: 1, Success: true, TradeOrderID: &t1},
			{OrderID: 2, Success: true, TradeOrderID: &t2},
		},
	}}
	o := newTestOrchestrator(store, client, &fakeBreaker{})

	result, err := o.Submit(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, AggregateSuccess, result.Status)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int64(101), *result.Results[0].TradeOrderID)
}

func TestSubmitPartialNotFound(t *testing.T) {
	store := &fakeStore{
		orders:          map[int64]*order.Order{1: newOrder(1, order.StatusCodeNew, nil), 3: newOrder(3, order.StatusCodeNew, nil)},
		reserveOutcomes: map[int64]bool{1: true, 3: true},
	}
	t1, t3 := int64(101), int64(103)
	client := &fakeTradeClient{resp: &tradeclient.BulkResponse{
		Status: tradeclient.StatusAllOK,
		Results: []tradeclient.SubmissionResult{
			{OrderID: 1, Success: true, TradeOrderID: &t1},
			{OrderID: 3, Success: true, TradeOrderID: &t3},
		},
	}}
	o := newTestOrchestrator(store, client, &fakeBreaker{})

	result, err := o.Submit(context.Background(), []int64{1, 999, 3})
	require.NoError(t, err)
	assert.Equal(t, AggregatePartial, result.Status)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "Order not found", result.Results[1].Message)
	assert.Equal(t, 1, result.Results[1].RequestIndex)
}

func TestSubmitIneligibleStatus(t *testing.T) {
	store := &fakeStore{orders: map[int64]*order.Order{1: newOrder(1, order.StatusCodeSent, nil)}}
	o := newTestOrchestrator(store, &fakeTradeClient{}, &fakeBreaker{})

	result, err := o.Submit(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, AggregateFailure, result.Status)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Results[0].Message, "not eligible")
}

func TestSubmitOverLimitRejected(t *testing.T) {
	store := &fakeStore{}
	o := newTestOrchestrator(store, &fakeTradeClient{}, &fakeBreaker{})

	ids := make([]int64, 101)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	_, err := o.Submit(context.Background(), ids)
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestSubmitEmptyRejected(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{}, &fakeTradeClient{}, &fakeBreaker{})
	_, err := o.Submit(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestSubmitBreakerOpenShortCircuits(t *testing.T) {
	store := &fakeStore{orders: map[int64]*order.Order{1: newOrder(1, order.StatusCodeNew, nil)}}
	breakerErr := errors.New("breaker open")
	o := newTestOrchestrator(store, &fakeTradeClient{}, &fakeBreaker{admitErr: breakerErr})

	_, err := o.Submit(context.Background(), []int64{1})
	require.ErrorIs(t, err, breakerErr)
	assert.Empty(t, store.reconcileCalls)
}

func TestSubmitDownstreamTransientRollsBackReservations(t *testing.T) {
	store := &fakeStore{
		orders:          map[int64]*order.Order{1: newOrder(1, order.StatusCodeNew, nil)},
		reserveOutcomes: map[int64]bool{1: true},
	}
	breaker := &fakeBreaker{}
	o := newTestOrchestrator(store, &fakeTradeClient{err: tradeclient.ErrTransient}, breaker)

	_, err := o.Submit(context.Background(), []int64{1})
	require.Error(t, err)
	assert.Equal(t, []int64{1}, store.releasedIDs)
	assert.Equal(t, []bool{false}, breaker.recordedWith)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeDependency, apiErr.Code)
	assert.True(t, apiErr.Retryable)
}

func TestSubmitDuplicateOrderIDOnlyFirstReserveWins(t *testing.T) {
	store := &fakeStore{
		orders:          map[int64]*order.Order{7: newOrder(7, order.StatusCodeNew, nil)},
		reserveOutcomes: map[int64]bool{7: true},
	}
	tOrder := int64(701)
	client := &fakeTradeClient{resp: &tradeclient.BulkResponse{
		Status:  tradeclient.StatusAllOK,
		Results: []tradeclient.SubmissionResult{{OrderID: 7, Success: true, TradeOrderID: &tOrder}},
	}}
	o := newTestOrchestrator(store, client, &fakeBreaker{})

	result, err := o.Submit(context.Background(), []int64{7, 7})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
}

func TestSubmitCommitMismatchIsAuditedAndFailed(t *testing.T) {
	store := &fakeStore{
		orders:          map[int64]*order.Order{1: newOrder(1, order.StatusCodeNew, nil)},
		reserveOutcomes: map[int64]bool{1: true},
		reconcileOverride: func(items []orderstore.ReconcileItem) []orderstore.ReconcileResult {
			return []orderstore.ReconcileResult{{OrderID: 1, Success: true, Matched: false, WasCommit: true}}
		},
	}
	tOrder := int64(999)
	client := &fakeTradeClient{resp: &tradeclient.BulkResponse{
		Status:  tradeclient.StatusAllOK,
		Results: []tradeclient.SubmissionResult{{OrderID: 1, Success: true, TradeOrderID: &tOrder}},
	}}
	audit := &fakeAudit{}
	o := New(store, &fakeGate{}, &fakeBreaker{}, client, audit, nil, Config{})

	result, err := o.Submit(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []int64{1}, audit.commitMismatches)
}

func TestCreateBatchIndependentFailures(t *testing.T) {
	store := &fakeStore{}
	o := newTestOrchestrator(store, &fakeTradeClient{}, &fakeBreaker{})

	drafts := []*order.Order{
		{PortfolioID: "PORT1", OrderTypeID: 1, SecurityID: "AAPL", Quantity: decimal.NewFromInt(5)},
		{PortfolioID: "", OrderTypeID: 1, SecurityID: "MSFT", Quantity: decimal.NewFromInt(5)},
	}

	result, err := o.CreateBatch(context.Background(), drafts)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalRequested)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, AggregatePartial, result.Status)
}

func TestCreateBatchOverLimitRejected(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{}, &fakeTradeClient{}, &fakeBreaker{})
	drafts := make([]*order.Order, 1001)
	for i := range drafts {
		drafts[i] = &order.Order{PortfolioID: "P", OrderTypeID: 1, SecurityID: "X", Quantity: decimal.NewFromInt(1)}
	}
	_, err := o.CreateBatch(context.Background(), drafts)
	require.ErrorIs(t, err, ErrBatchTooLarge)
}
