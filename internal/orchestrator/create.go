package orchestrator

import (
	"context"

	"github.com/globeco/order-submission-service/internal/apierr"
	"github.com/globeco/order-submission-service/internal/domain/order"
)

// CreateBatch persists 1..CreateBatchMax drafts, one independent
// transaction per draft, and returns per-draft results in input order.
func (o *Orchestrator) CreateBatch(ctx context.Context, drafts []*order.Order) (*AggregateResult, error) {
	if len(drafts) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(drafts) > o.cfg.CreateBatchMax {
		return nil, ErrBatchTooLarge
	}

	results := make([]ItemResult, len(drafts))
	for i, draft := range drafts {
		created, err := o.createOne(ctx, draft)
		if err != nil {
			results[i] = ItemResult{
				RequestIndex: i,
				Status:       ItemFailure,
				Message:      errMessage(err),
			}
			continue
		}
		results[i] = ItemResult{
			OrderID:      created.ID,
			RequestIndex: i,
			Status:       ItemSuccess,
			Message:      "created",
		}
	}

	return aggregate(results, len(results)), nil
}

func (o *Orchestrator) createOne(ctx context.Context, draft *order.Order) (*order.Order, error) {
	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return nil, classifyGateError(err)
	}
	defer release()

	return o.store.CreateOrder(ctx, draft)
}

func errMessage(err error) string {
	if apiErr, ok := apierr.As(err); ok {
		return apiErr.Message
	}
	return err.Error()
}

