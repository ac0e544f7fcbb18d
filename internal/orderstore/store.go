// Package orderstore is the relational persistence layer for orders and
// their reference data. It owns the reservation protocol's single-statement
// conditional updates and the eager-join batch loader the orchestrator
// depends on; everything else is thin CRUD behind a pgx pool.
package orderstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/globeco/order-submission-service/internal/domain/order"
	"github.com/globeco/order-submission-service/internal/poolhealth"
)

// ReadDeadline and WriteDeadline bound the transactions the store opens,
// per the design's per-transaction deadlines.
const (
	ReadDeadline  = 3 * time.Second
	WriteDeadline = 5 * time.Second
)

// Store is the PostgreSQL-backed order and reference-data repository.
type Store struct {
	pool *pgxpool.Pool

	sentStatus *cachedStatus
}

// New constructs a Store over an already-configured connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:       pool,
		sentStatus: newCachedStatus(order.StatusCodeSent),
	}
}

// PoolStat adapts the underlying pgxpool.Pool's counters to the
// poolhealth.StatProvider contract, keeping poolhealth independent of the
// pgx driver.
func (s *Store) PoolStat() poolhealth.Snapshot {
	stat := s.pool.Stat()
	return poolhealth.Snapshot{
		Active:  int(stat.AcquiredConns()),
		Idle:    int(stat.IdleConns()),
		Waiting: int(stat.EmptyAcquireCount()),
		Total:   int(stat.TotalConns()),
	}
}

func translateNoRows(err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return err
}

// withDeadline derives a child context bounded by d, unless the parent
// already carries an earlier deadline.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// GetOrder loads a single order by id with its status, order-type, and
// blotter eagerly joined.
func (s *Store) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectOrdersQuery+" WHERE o.id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("orderstore: get order: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("orderstore: get order: %w", err)
	}
	if len(orders) == 0 {
		return nil, order.ErrOrderNotFound
	}
	return orders[0], nil
}

// ListOrders returns orders in id order, bounded by limit/offset. Filtering
// and pagination over this surface are not part of the core design.
func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]*order.Order, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectOrdersQuery+" ORDER BY o.id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("orderstore: list orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// CreateOrder persists a single draft order with initial status NEW,
// version 1, and no trade-order id. Used by the batch-create orchestrator,
// one call per draft, each in its own transaction.
func (s *Store) CreateOrder(ctx context.Context, draft *order.Order) (*order.Order, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	newStatus, err := s.statusByCode(ctx, order.StatusCodeNew)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO "order" (blotter_id, status_id, portfolio_id, order_type_id, security_id, quantity, limit_price, trade_order_id, "timestamp", version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, 1)
		RETURNING id, version`

	ts := draft.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var id, version int64
	err = s.pool.QueryRow(ctx, q,
		draft.BlotterID, newStatus.ID, draft.PortfolioID, draft.OrderTypeID,
		draft.SecurityID, draft.Quantity, draft.LimitPrice, ts,
	).Scan(&id, &version)
	if err != nil {
		return nil, fmt.Errorf("orderstore: create order: %w", err)
	}

	created := *draft
	created.ID = id
	created.Version = version
	created.StatusID = newStatus.ID
	created.Status = newStatus
	created.Timestamp = ts
	return &created, nil
}

func validateDraft(d *order.Order) error {
	if len(d.PortfolioID) == 0 || len(d.PortfolioID) > order.MaxPortfolioIDLength {
		return order.ErrInvalidPortfolioID
	}
	if d.Quantity.Sign() <= 0 || !d.Quantity.Equal(d.Quantity.Truncate(8)) {
		return order.ErrInvalidQuantity
	}
	if d.LimitPrice != nil && d.LimitPrice.Sign() <= 0 {
		return order.ErrInvalidLimitPrice
	}
	return nil
}

// UpdateOrder persists changes to a mutable order field set under
// optimistic concurrency: the caller's expectedVersion must match the
// stored version or ErrVersionConflict is returned.
func (s *Store) UpdateOrder(ctx context.Context, id int64, expectedVersion int64, mutate func(*order.Order)) (*order.Order, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderstore: update order: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := s.getOrderTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, order.ErrVersionConflict
	}

	mutate(current)

	const q = `
		UPDATE "order"
		SET blotter_id = $2, status_id = $3, portfolio_id = $4, order_type_id = $5,
		    security_id = $6, quantity = $7, limit_price = $8, version = version + 1
		WHERE id = $1 AND version = $9`

	tag, err := tx.Exec(ctx, q,
		id, current.BlotterID, current.StatusID, current.PortfolioID, current.OrderTypeID,
		current.SecurityID, current.Quantity, current.LimitPrice, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("orderstore: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("orderstore: update order: commit: %w", err)
	}

	current.Version = expectedVersion + 1
	return current, nil
}

// DeleteOrder removes an order administratively, respecting version.
func (s *Store) DeleteOrder(ctx context.Context, id int64, expectedVersion int64) error {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM "order" WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("orderstore: delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetOrder(ctx, id); getErr != nil {
			return order.ErrOrderNotFound
		}
		return order.ErrVersionConflict
	}
	return nil
}

func (s *Store) getOrderTx(ctx context.Context, tx pgx.Tx, id int64) (*order.Order, error) {
	rows, err := tx.Query(ctx, selectOrdersQuery+" WHERE o.id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("orderstore: get order: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("orderstore: get order: %w", err)
	}
	if len(orders) == 0 {
		return nil, order.ErrOrderNotFound
	}
	return orders[0], nil
}
