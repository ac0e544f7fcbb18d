// Package order holds the Order aggregate and its reference-data
// companions (status, order type, blotter).
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a caller's intent to trade a quantity of a security,
// associated with a portfolio. See Invariants 1-5 in the design notes
// for the constraints enforced at the storage layer.
type Order struct {
	ID           int64
	BlotterID    *int64
	StatusID     int64
	PortfolioID  string
	OrderTypeID  int64
	SecurityID   string
	Quantity     decimal.Decimal
	LimitPrice   *decimal.Decimal
	TradeOrderID *int64
	Timestamp    time.Time
	Version      int64

	// Status, OrderType and Blotter are eagerly joined by the loader used
	// during bulk submission; they are nil when an Order is fetched
	// without the join.
	Status    *Status
	OrderType *OrderType
	Blotter   *Blotter
}

// MaxPortfolioIDLength is the storage-enforced width of PortfolioID.
const MaxPortfolioIDLength = 24

// Status is a small, effectively-immutable reference row describing an
// order's lifecycle position.
type Status struct {
	ID          int64
	Code        string
	Description string
	Version     int64
}

// Well-known status codes. NEW and SENT are referenced by name
// throughout the reservation and reconciliation paths.
const (
	StatusCodeNew  = "NEW"
	StatusCodeSent = "SENT"
)

// OrderType is a small reference row describing how an order should be
// executed (e.g. market, limit).
type OrderType struct {
	ID          int64
	Code        string
	Description string
	Version     int64
}

// Blotter is an optional grouping label for orders.
type Blotter struct {
	ID      int64
	Name    string
	Version int64
}

// IsEligibleForSubmission reports whether o may be offered to the
// reservation protocol. Only NEW orders with no trade-order id already
// attached are eligible.
func (o *Order) IsEligibleForSubmission() bool {
	if o.Status == nil {
		return false
	}
	return o.Status.Code == StatusCodeNew && o.TradeOrderID == nil
}

// ReservationSentinel returns the negative-id sentinel value Reserve
// writes into trade_order_id while a submission is in flight. Using the
// order's own id keeps the sentinel unique across concurrent
// reservations without a process-wide marker colliding against the
// column's uniqueness constraint.
func ReservationSentinel(orderID int64) int64 {
	return -orderID
}
