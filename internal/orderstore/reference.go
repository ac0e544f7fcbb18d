package orderstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/globeco/order-submission-service/internal/domain/order"
)

// cachedStatus is a read-through, double-checked-initialization cache for
// a single reference-data row whose code is effectively a runtime
// constant (the SENT status, in particular). It is not a general
// reference-data cache and must not be used for mutable rows.
type cachedStatus struct {
	code string

	mu    sync.RWMutex
	value *order.Status
}

func newCachedStatus(code string) *cachedStatus {
	return &cachedStatus{code: code}
}

func (c *cachedStatus) get(ctx context.Context, load func(context.Context, string) (*order.Status, error)) (*order.Status, error) {
	c.mu.RLock()
	if c.value != nil {
		v := c.value
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value != nil {
		return c.value, nil
	}

	v, err := load(ctx, c.code)
	if err != nil {
		return nil, err
	}
	c.value = v
	return v, nil
}

// statusByCode resolves a status row by code, using the cache for the
// SENT status and hitting storage directly for everything else.
func (s *Store) statusByCode(ctx context.Context, code string) (*order.Status, error) {
	if code == order.StatusCodeSent {
		return s.sentStatus.get(ctx, s.loadStatusByCode)
	}
	return s.loadStatusByCode(ctx, code)
}

func (s *Store) loadStatusByCode(ctx context.Context, code string) (*order.Status, error) {
	var st order.Status
	err := s.pool.QueryRow(ctx, `SELECT id, code, description, version FROM status WHERE code = $1`, code).
		Scan(&st.ID, &st.Code, &st.Description, &st.Version)
	if err != nil {
		return nil, translateNoRows(fmt.Errorf("orderstore: status by code %q: %w", code, err), order.ErrStatusNotFound)
	}
	return &st, nil
}

func (s *Store) statusIDByCodeTx(ctx context.Context, tx pgx.Tx, code string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM status WHERE code = $1`, code).Scan(&id)
	if err != nil {
		return 0, translateNoRows(fmt.Errorf("orderstore: status id by code %q: %w", code, err), order.ErrStatusNotFound)
	}
	return id, nil
}

// ListStatuses, GetStatus, CreateStatus, UpdateStatus, DeleteStatus and
// their OrderType/Blotter counterparts below are thin optimistic-
// concurrency CRUD over small reference tables; none of them carry core
// design content.

func (s *Store) ListStatuses(ctx context.Context) ([]*order.Status, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, code, description, version FROM status ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("orderstore: list statuses: %w", err)
	}
	defer rows.Close()

	var out []*order.Status
	for rows.Next() {
		var st order.Status
		if err := rows.Scan(&st.ID, &st.Code, &st.Description, &st.Version); err != nil {
			return nil, fmt.Errorf("orderstore: scan status: %w", err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, description string, expectedVersion int64) (*order.Status, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	var st order.Status
	err := s.pool.QueryRow(ctx, `
		UPDATE status SET description = $2, version = version + 1
		WHERE id = $1 AND version = $3
		RETURNING id, code, description, version`,
		id, description, expectedVersion,
	).Scan(&st.ID, &st.Code, &st.Description, &st.Version)
	if err != nil {
		if err := translateNoRows(err, order.ErrStatusNotFound); err == order.ErrStatusNotFound {
			if _, getErr := s.loadStatusByID(ctx, id); getErr != nil {
				return nil, order.ErrStatusNotFound
			}
			return nil, order.ErrVersionConflict
		}
		return nil, fmt.Errorf("orderstore: update status: %w", err)
	}
	return &st, nil
}

func (s *Store) loadStatusByID(ctx context.Context, id int64) (*order.Status, error) {
	var st order.Status
	err := s.pool.QueryRow(ctx, `SELECT id, code, description, version FROM status WHERE id = $1`, id).
		Scan(&st.ID, &st.Code, &st.Description, &st.Version)
	if err != nil {
		return nil, translateNoRows(err, order.ErrStatusNotFound)
	}
	return &st, nil
}

func (s *Store) DeleteStatus(ctx context.Context, id int64, expectedVersion int64) error {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM status WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return translateReferenceInUse(err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.loadStatusByID(ctx, id); getErr != nil {
			return order.ErrStatusNotFound
		}
		return order.ErrVersionConflict
	}
	return nil
}

func (s *Store) GetStatus(ctx context.Context, id int64) (*order.Status, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()
	return s.loadStatusByID(ctx, id)
}

func (s *Store) CreateStatus(ctx context.Context, code, description string) (*order.Status, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	var st order.Status
	err := s.pool.QueryRow(ctx, `
		INSERT INTO status (code, description, version) VALUES ($1, $2, 1)
		RETURNING id, code, description, version`,
		code, description,
	).Scan(&st.ID, &st.Code, &st.Description, &st.Version)
	if err != nil {
		return nil, fmt.Errorf("orderstore: create status: %w", err)
	}
	return &st, nil
}

func (s *Store) ListOrderTypes(ctx context.Context) ([]*order.OrderType, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, code, description, version FROM order_type ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("orderstore: list order types: %w", err)
	}
	defer rows.Close()

	var out []*order.OrderType
	for rows.Next() {
		var t order.OrderType
		if err := rows.Scan(&t.ID, &t.Code, &t.Description, &t.Version); err != nil {
			return nil, fmt.Errorf("orderstore: scan order type: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) GetOrderType(ctx context.Context, id int64) (*order.OrderType, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()

	var t order.OrderType
	err := s.pool.QueryRow(ctx, `SELECT id, code, description, version FROM order_type WHERE id = $1`, id).
		Scan(&t.ID, &t.Code, &t.Description, &t.Version)
	if err != nil {
		return nil, translateNoRows(err, order.ErrStatusNotFound)
	}
	return &t, nil
}

func (s *Store) CreateOrderType(ctx context.Context, code, description string) (*order.OrderType, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	var t order.OrderType
	err := s.pool.QueryRow(ctx, `
		INSERT INTO order_type (code, description, version) VALUES ($1, $2, 1)
		RETURNING id, code, description, version`,
		code, description,
	).Scan(&t.ID, &t.Code, &t.Description, &t.Version)
	if err != nil {
		return nil, fmt.Errorf("orderstore: create order type: %w", err)
	}
	return &t, nil
}

func (s *Store) UpdateOrderType(ctx context.Context, id int64, description string, expectedVersion int64) (*order.OrderType, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	var t order.OrderType
	err := s.pool.QueryRow(ctx, `
		UPDATE order_type SET description = $2, version = version + 1
		WHERE id = $1 AND version = $3
		RETURNING id, code, description, version`,
		id, description, expectedVersion,
	).Scan(&t.ID, &t.Code, &t.Description, &t.Version)
	if err != nil {
		if errors.Is(translateNoRows(err, order.ErrStatusNotFound), order.ErrStatusNotFound) {
			if _, getErr := s.GetOrderType(ctx, id); getErr != nil {
				return nil, order.ErrStatusNotFound
			}
			return nil, order.ErrVersionConflict
		}
		return nil, fmt.Errorf("orderstore: update order type: %w", err)
	}
	return &t, nil
}

func (s *Store) DeleteOrderType(ctx context.Context, id int64, expectedVersion int64) error {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM order_type WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return translateReferenceInUse(err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetOrderType(ctx, id); getErr != nil {
			return order.ErrStatusNotFound
		}
		return order.ErrVersionConflict
	}
	return nil
}

func (s *Store) ListBlotters(ctx context.Context) ([]*order.Blotter, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, name, version FROM blotter ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("orderstore: list blotters: %w", err)
	}
	defer rows.Close()

	var out []*order.Blotter
	for rows.Next() {
		var b order.Blotter
		if err := rows.Scan(&b.ID, &b.Name, &b.Version); err != nil {
			return nil, fmt.Errorf("orderstore: scan blotter: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *Store) GetBlotter(ctx context.Context, id int64) (*order.Blotter, error) {
	ctx, cancel := withDeadline(ctx, ReadDeadline)
	defer cancel()

	var b order.Blotter
	err := s.pool.QueryRow(ctx, `SELECT id, name, version FROM blotter WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.Version)
	if err != nil {
		return nil, translateNoRows(err, order.ErrStatusNotFound)
	}
	return &b, nil
}

func (s *Store) CreateBlotter(ctx context.Context, name string) (*order.Blotter, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	var b order.Blotter
	err := s.pool.QueryRow(ctx, `
		INSERT INTO blotter (name, version) VALUES ($1, 1)
		RETURNING id, name, version`,
		name,
	).Scan(&b.ID, &b.Name, &b.Version)
	if err != nil {
		return nil, fmt.Errorf("orderstore: create blotter: %w", err)
	}
	return &b, nil
}

func (s *Store) UpdateBlotter(ctx context.Context, id int64, name string, expectedVersion int64) (*order.Blotter, error) {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	var b order.Blotter
	err := s.pool.QueryRow(ctx, `
		UPDATE blotter SET name = $2, version = version + 1
		WHERE id = $1 AND version = $3
		RETURNING id, name, version`,
		id, name, expectedVersion,
	).Scan(&b.ID, &b.Name, &b.Version)
	if err != nil {
		if errors.Is(translateNoRows(err, order.ErrStatusNotFound), order.ErrStatusNotFound) {
			if _, getErr := s.GetBlotter(ctx, id); getErr != nil {
				return nil, order.ErrStatusNotFound
			}
			return nil, order.ErrVersionConflict
		}
		return nil, fmt.Errorf("orderstore: update blotter: %w", err)
	}
	return &b, nil
}

func (s *Store) DeleteBlotter(ctx context.Context, id int64, expectedVersion int64) error {
	ctx, cancel := withDeadline(ctx, WriteDeadline)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM blotter WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return translateReferenceInUse(err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrVersionConflict
	}
	return nil
}

// translateReferenceInUse maps a foreign-key-restrict violation to the
// domain's reference-in-use error; any other error passes through
// wrapped.
func translateReferenceInUse(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return order.ErrReferenceInUse
	}
	return fmt.Errorf("orderstore: delete reference row: %w", err)
}
