package order

import "errors"

var (
	// ErrOrderNotFound is returned when an order id does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrIneligibleStatus is returned when an order's status is not NEW.
	ErrIneligibleStatus = errors.New("order is not eligible for submission")

	// ErrVersionConflict is returned on an optimistic-concurrency mismatch.
	ErrVersionConflict = errors.New("version conflict")

	// ErrReferenceInUse is returned when a reference row (status, order
	// type, blotter) is deleted while orders still point to it.
	ErrReferenceInUse = errors.New("reference row is in use")

	// ErrStatusNotFound is returned when a status code has no row.
	ErrStatusNotFound = errors.New("status not found")

	// ErrInvalidPortfolioID is returned when PortfolioID is empty or
	// exceeds MaxPortfolioIDLength.
	ErrInvalidPortfolioID = errors.New("invalid portfolio id")

	// ErrInvalidQuantity is returned when quantity is not strictly
	// positive or loses fixed-point precision.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidLimitPrice is returned when a present limit price is not
	// strictly positive.
	ErrInvalidLimitPrice = errors.New("invalid limit price")

	// ErrReservationFailed is returned when Reserve affects zero rows:
	// the order is already reserved, sent, or in a terminal status.
	ErrReservationFailed = errors.New("order already in progress or terminal")

	// ErrCommitMismatch is returned when Commit affects zero rows after a
	// successful downstream submission. This is the one inconsistency the
	// design requires to be durably logged rather than silently dropped.
	ErrCommitMismatch = errors.New("commit could not attach trade order id")

	// ErrReleaseMismatch is returned when Release affects zero rows,
	// implying a concurrent repair already ran.
	ErrReleaseMismatch = errors.New("release found no matching reservation")
)
