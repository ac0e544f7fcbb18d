package orderstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/globeco/order-submission-service/internal/domain/order"
)

// LoadForSubmission loads every order in ids with its reference rows
// eagerly joined, within a single short read-only transaction. Missing
// ids are simply absent from the returned map; the caller distinguishes
// "not found" from "ineligible" by presence and IsEligibleForSubmission.
func (s *Store) LoadForSubmission(ctx context.Context, ids []int64) (map[int64]*order.Order, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("orderstore: load for submission: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, selectOrdersQuery+" WHERE o.id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("orderstore: load for submission: %w", err)
	}

	orders, err := scanOrders(rows)
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("orderstore: load for submission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("orderstore: load for submission: commit: %w", err)
	}

	out := make(map[int64]*order.Order, len(orders))
	for _, o := range orders {
		out[o.ID] = o
	}
	return out, nil
}

// ReservationOutcome records whether Reserve claimed the order's
// submission slot.
type ReservationOutcome struct {
	OrderID  int64
	Reserved bool
}

// ReserveBatch issues one conditional Reserve statement per order id
// within a single transaction. Rows-affected 0 for an id means the order
// is already in progress or no longer eligible; it is not an error.
func (s *Store) ReserveBatch(ctx context.Context, ids []int64) ([]ReservationOutcome, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderstore: reserve batch: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newStatusID, err := s.statusIDByCodeTx(ctx, tx, order.StatusCodeNew)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ReservationOutcome, len(ids))
	const q = `
		UPDATE "order"
		SET trade_order_id = -id
		WHERE id = $1 AND status_id = $2 AND trade_order_id IS NULL`

	for i, id := range ids {
		tag, err := tx.Exec(ctx, q, id, newStatusID)
		if err != nil {
			return nil, fmt.Errorf("orderstore: reserve order %d: %w", id, err)
		}
		outcomes[i] = ReservationOutcome{OrderID: id, Reserved: tag.RowsAffected() == 1}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("orderstore: reserve batch: commit: %w", err)
	}
	return outcomes, nil
}

// ReleaseBatch releases reservations for ids in bounded chunks, each
// chunk in its own transaction, to cap transaction length. Returns the
// ids for which Release affected zero rows (already repaired
// concurrently); callers log these but do not escalate.
func (s *Store) ReleaseBatch(ctx context.Context, ids []int64, chunkSize int) ([]int64, error) {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	var unmatched []int64
	for _, chunk := range chunkInt64(ids, chunkSize) {
		u, err := s.releaseChunk(ctx, chunk)
		if err != nil {
			return unmatched, err
		}
		unmatched = append(unmatched, u...)
	}
	return unmatched, nil
}

func (s *Store) releaseChunk(ctx context.Context, ids []int64) ([]int64, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderstore: release chunk: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `UPDATE "order" SET trade_order_id = NULL WHERE id = $1 AND trade_order_id = -id`

	var unmatched []int64
	for _, id := range ids {
		tag, err := tx.Exec(ctx, q, id)
		if err != nil {
			return nil, fmt.Errorf("orderstore: release order %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			unmatched = append(unmatched, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("orderstore: release chunk: commit: %w", err)
	}
	return unmatched, nil
}

// ReconcileItem is one order's downstream outcome to apply during
// reconciliation.
type ReconcileItem struct {
	OrderID      int64
	Success      bool
	TradeOrderID int64 // meaningful only when Success
}

// ReconcileResult reports, per order, whether the intended Commit/Release
// actually matched a row.
type ReconcileResult struct {
	OrderID   int64
	Success   bool
	Matched   bool // false => commit-after-success or release mismatch
	WasCommit bool
}

// ReconcileBatch applies Commit or Release per item, chunked to bound
// transaction length, and sets status to SENT on every successful Commit.
func (s *Store) ReconcileBatch(ctx context.Context, items []ReconcileItem, chunkSize int) ([]ReconcileResult, error) {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	var results []ReconcileResult
	for _, chunk := range chunkReconcile(items, chunkSize) {
		r, err := s.reconcileChunk(ctx, chunk)
		if err != nil {
			return results, err
		}
		results = append(results, r...)
	}
	return results, nil
}

func (s *Store) reconcileChunk(ctx context.Context, items []ReconcileItem) ([]ReconcileResult, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderstore: reconcile chunk: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sentStatusID, err := s.statusIDByCodeTx(ctx, tx, order.StatusCodeSent)
	if err != nil {
		return nil, err
	}

	const commitQ = `
		UPDATE "order"
		SET trade_order_id = $2, status_id = $3, version = version + 1
		WHERE id = $1 AND trade_order_id = -id`
	const releaseQ = `UPDATE "order" SET trade_order_id = NULL WHERE id = $1 AND trade_order_id = -id`

	results := make([]ReconcileResult, len(items))
	for i, item := range items {
		if item.Success {
			tag, err := tx.Exec(ctx, commitQ, item.OrderID, item.TradeOrderID, sentStatusID)
			if err != nil {
				return nil, fmt.Errorf("orderstore: commit order %d: %w", item.OrderID, err)
			}
			results[i] = ReconcileResult{OrderID: item.OrderID, Success: true, Matched: tag.RowsAffected() == 1, WasCommit: true}
		} else {
			tag, err := tx.Exec(ctx, releaseQ, item.OrderID)
			if err != nil {
				return nil, fmt.Errorf("orderstore: release order %d: %w", item.OrderID, err)
			}
			results[i] = ReconcileResult{OrderID: item.OrderID, Success: false, Matched: tag.RowsAffected() == 1, WasCommit: false}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("orderstore: reconcile chunk: commit: %w", err)
	}
	return results, nil
}

func chunkInt64(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func chunkReconcile(items []ReconcileItem, size int) [][]ReconcileItem {
	var out [][]ReconcileItem
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
