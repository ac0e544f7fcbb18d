package orderstore

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/globeco/order-submission-service/internal/domain/order"
)

// selectOrdersQuery eagerly joins status, order-type, and blotter so the
// loader never needs a second round trip for submission-time validation.
const selectOrdersQuery = `
	SELECT
		o.id, o.blotter_id, o.status_id, o.portfolio_id, o.order_type_id,
		o.security_id, o.quantity, o.limit_price, o.trade_order_id, o."timestamp", o.version,
		s.id, s.code, s.description, s.version,
		t.id, t.code, t.description, t.version,
		b.id, b.name, b.version
	FROM "order" o
	JOIN status s ON s.id = o.status_id
	JOIN order_type t ON t.id = o.order_type_id
	LEFT JOIN blotter b ON b.id = o.blotter_id`

func scanOrders(rows pgx.Rows) ([]*order.Order, error) {
	var out []*order.Order
	for rows.Next() {
		o := &order.Order{Status: &order.Status{}, OrderType: &order.OrderType{}}
		var blotterID *int64
		var blotterName *string
		var blotterVersion *int64

		err := rows.Scan(
			&o.ID, &o.BlotterID, &o.StatusID, &o.PortfolioID, &o.OrderTypeID,
			&o.SecurityID, &o.Quantity, &o.LimitPrice, &o.TradeOrderID, &o.Timestamp, &o.Version,
			&o.Status.ID, &o.Status.Code, &o.Status.Description, &o.Status.Version,
			&o.OrderType.ID, &o.OrderType.Code, &o.OrderType.Description, &o.OrderType.Version,
			&blotterID, &blotterName, &blotterVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		if blotterID != nil {
			o.Blotter = &order.Blotter{ID: *blotterID, Name: derefString(blotterName), Version: derefInt64(blotterVersion)}
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return out, nil
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
