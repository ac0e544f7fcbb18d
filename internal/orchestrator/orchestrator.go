// Package orchestrator implements the bulk submission and batch create
// pipelines: validation, reservation, the downstream bulk call, and
// reconciliation, coordinated without ever holding a database connection
// across network I/O.
package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/globeco/order-submission-service/internal/domain/order"
	"github.com/globeco/order-submission-service/internal/gate"
	"github.com/globeco/order-submission-service/internal/orderstore"
	"github.com/globeco/order-submission-service/internal/tradeclient"
)

// Gate is the bounded concurrency gate every database-touching step
// acquires before opening a transaction. Satisfied by *gate.Gate.
type Gate interface {
	Acquire(ctx context.Context) (gate.Release, error)
}

// Breaker is the circuit breaker consulted on admission and updated with
// the outcome of the downstream call. Satisfied by *breaker.Breaker.
type Breaker interface {
	Admit() error
	RecordResult(success bool)
}

// TradeClient is the downstream bulk submission endpoint. Satisfied by
// *tradeclient.Client.
type TradeClient interface {
	BulkSubmit(ctx context.Context, submissions []tradeclient.Submission) (*tradeclient.BulkResponse, error)
}

// ReconcileAudit records commit-after-success and release-mismatch
// inconsistencies durably. Satisfied by *reconcilelog.Logger.
type ReconcileAudit interface {
	CommitMismatch(orderID, tradeOrderID int64)
	ReleaseMismatch(orderID int64)
}

// Store is the subset of orderstore.Store the orchestrator depends on.
type Store interface {
	LoadForSubmission(ctx context.Context, ids []int64) (map[int64]*order.Order, error)
	ReserveBatch(ctx context.Context, ids []int64) ([]orderstore.ReservationOutcome, error)
	ReleaseBatch(ctx context.Context, ids []int64, chunkSize int) ([]int64, error)
	ReconcileBatch(ctx context.Context, items []orderstore.ReconcileItem, chunkSize int) ([]orderstore.ReconcileResult, error)
	CreateOrder(ctx context.Context, draft *order.Order) (*order.Order, error)
}

// Config controls batch-size limits and chunking, mirroring the design's
// submit.batch.max / create.batch.max / reconcile.chunk.size keys.
type Config struct {
	SubmitBatchMax     int
	CreateBatchMax     int
	ReconcileChunkSize int
}

// Orchestrator wires the gate, breaker, store, trade client and audit
// sink together into the submit and batch-create pipelines.
type Orchestrator struct {
	store   Store
	gate    Gate
	breaker Breaker
	client  TradeClient
	audit   ReconcileAudit
	logger  *zap.Logger
	cfg     Config
}

// New constructs an Orchestrator. Zero-valued Config fields fall back to
// the design's defaults (100 / 1000 / 50).
func New(store Store, g Gate, b Breaker, client TradeClient, audit ReconcileAudit, logger *zap.Logger, cfg Config) *Orchestrator {
	if cfg.SubmitBatchMax <= 0 {
		cfg.SubmitBatchMax = 100
	}
	if cfg.CreateBatchMax <= 0 {
		cfg.CreateBatchMax = 1000
	}
	if cfg.ReconcileChunkSize <= 0 {
		cfg.ReconcileChunkSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{store: store, gate: g, breaker: b, client: client, audit: audit, logger: logger, cfg: cfg}
}

// SubmitBatchMax reports the configured upper bound on a single Submit
// call, so HTTP handlers can reject oversized payloads with 413 before
// any work begins.
func (o *Orchestrator) SubmitBatchMax() int { return o.cfg.SubmitBatchMax }

// CreateBatchMax reports the configured upper bound on a single
// CreateBatch call.
func (o *Orchestrator) CreateBatchMax() int { return o.cfg.CreateBatchMax }
