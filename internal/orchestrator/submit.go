package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/globeco/order-submission-service/internal/apierr"
	"github.com/globeco/order-submission-service/internal/domain/order"
	"github.com/globeco/order-submission-service/internal/gate"
	"github.com/globeco/order-submission-service/internal/orderstore"
	"github.com/globeco/order-submission-service/internal/tradeclient"
)

// pendingItem tracks one request occurrence through the submit
// pipeline: its position in the caller's input, and what happened to it
// so far.
type pendingItem struct {
	requestIndex int
	orderID      int64
	eligible     bool
	failed       bool
	message      string
	tradeOrderID *int64
}

// Submit runs the seven-step bulk submission algorithm: admission,
// load+validate, reserve, build downstream request, bulk call,
// reconcile, aggregate. Results are always returned in input order. A
// non-nil error means the batch failed as a whole and no per-item
// results are returned: it was rejected at admission or validation, a
// load/reserve/reconcile step failed, or the downstream call failed
// (after its reservations were released); a successful call always
// carries per-item detail, including per-item failures, in its
// AggregateResult.
func (o *Orchestrator) Submit(ctx context.Context, orderIDs []int64) (*AggregateResult, error) {
	if len(orderIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(orderIDs) > o.cfg.SubmitBatchMax {
		return nil, ErrBatchTooLarge
	}

	if err := o.breaker.Admit(); err != nil {
		return nil, err
	}
	// Every admitted batch reports to the breaker exactly once; paths that
	// end before the downstream call report success.
	reported := false
	defer func() {
		if !reported {
			o.breaker.RecordResult(true)
		}
	}()

	items := make([]*pendingItem, len(orderIDs))
	for i, id := range orderIDs {
		items[i] = &pendingItem{requestIndex: i, orderID: id}
	}

	loaded, err := o.loadAndValidate(ctx, orderIDs)
	if err != nil {
		return nil, apierr.New(apierr.CodeRuntime, "failed to load orders").Wrap(err)
	}

	for _, it := range items {
		ord, ok := loaded[it.orderID]
		switch {
		case !ok:
			it.failed = true
			it.message = "Order not found"
		case !ord.IsEligibleForSubmission():
			it.failed = true
			it.message = fmt.Sprintf("order is not eligible for submission (status %s)", ord.Status.Code)
		default:
			it.eligible = true
		}
	}

	eligibleIDs := make([]int64, 0, len(items))
	eligibleItems := make([]*pendingItem, 0, len(items))
	for _, it := range items {
		if it.eligible {
			eligibleIDs = append(eligibleIDs, it.orderID)
			eligibleItems = append(eligibleItems, it)
		}
	}

	if len(eligibleIDs) == 0 {
		return aggregate(toItemResults(items), len(orderIDs)), nil
	}

	outcomes, err := o.reserve(ctx, eligibleIDs)
	if err != nil {
		return nil, apierr.New(apierr.CodeRuntime, "failed to reserve orders").Wrap(err)
	}

	var reservedItems []*pendingItem
	var reservedOrders []*order.Order
	for i, outcome := range outcomes {
		it := eligibleItems[i]
		if !outcome.Reserved {
			it.failed = true
			it.message = "order already in progress or no longer eligible"
			continue
		}
		reservedItems = append(reservedItems, it)
		reservedOrders = append(reservedOrders, loaded[it.orderID])
	}

	if len(reservedItems) == 0 {
		return aggregate(toItemResults(items), len(orderIDs)), nil
	}

	submissions := make([]tradeclient.Submission, len(reservedOrders))
	for i, ord := range reservedOrders {
		submissions[i] = tradeclient.Submission{
			OrderID:     ord.ID,
			Quantity:    ord.Quantity,
			LimitPrice:  ord.LimitPrice,
			SecurityID:  ord.SecurityID,
			PortfolioID: ord.PortfolioID,
			OrderType:   ord.OrderType.Code,
		}
	}

	bulkResp, err := o.client.BulkSubmit(ctx, submissions)
	reported = true
	if err != nil {
		o.rollbackReservations(ctx, idsOf(reservedItems))
		// A downstream 400 is a non-retryable request fault, not a
		// transient failure, so it does not count against the breaker.
		o.breaker.RecordResult(errors.Is(err, tradeclient.ErrRejected))
		return nil, classifyTradeClientError(err)
	}
	o.breaker.RecordResult(true)

	outcomeByOrderID := make(map[int64]tradeclient.SubmissionResult, len(bulkResp.Results))
	for _, r := range bulkResp.Results {
		outcomeByOrderID[r.OrderID] = r
	}

	reconcileItems := make([]orderstore.ReconcileItem, len(reservedItems))
	for i, it := range reservedItems {
		res, ok := outcomeByOrderID[it.orderID]
		if !ok {
			reconcileItems[i] = orderstore.ReconcileItem{OrderID: it.orderID, Success: false}
			continue
		}
		reconcileItems[i] = orderstore.ReconcileItem{
			OrderID:      it.orderID,
			Success:      res.Success,
			TradeOrderID: derefOrZero(res.TradeOrderID),
		}
	}

	reconcileResults, err := o.reconcile(ctx, reconcileItems)
	if err != nil {
		return nil, apierr.New(apierr.CodeRuntime, "failed to reconcile orders").Wrap(err)
	}

	reconcileByOrderID := make(map[int64]orderstore.ReconcileResult, len(reconcileResults))
	for _, r := range reconcileResults {
		reconcileByOrderID[r.OrderID] = r
	}

	for _, it := range reservedItems {
		downstream, hasDownstream := outcomeByOrderID[it.orderID]
		rec := reconcileByOrderID[it.orderID]

		switch {
		case !hasDownstream:
			it.failed = true
			it.message = "downstream did not return a result for this order"
		case !downstream.Success:
			it.failed = true
			it.message = downstream.Message
		case rec.WasCommit && !rec.Matched:
			o.audit.CommitMismatch(it.orderID, derefOrZero(downstream.TradeOrderID))
			it.failed = true
			it.message = "submission succeeded downstream but could not be recorded locally"
		default:
			it.message = "submitted"
			it.tradeOrderID = downstream.TradeOrderID
		}
	}

	return aggregate(toItemResults(items), len(orderIDs)), nil
}

func (o *Orchestrator) loadAndValidate(ctx context.Context, ids []int64) (map[int64]*order.Order, error) {
	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return nil, classifyGateError(err)
	}
	defer release()

	return o.store.LoadForSubmission(ctx, ids)
}

func (o *Orchestrator) reserve(ctx context.Context, ids []int64) ([]orderstore.ReservationOutcome, error) {
	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return nil, classifyGateError(err)
	}
	defer release()

	return o.store.ReserveBatch(ctx, ids)
}

func (o *Orchestrator) reconcile(ctx context.Context, items []orderstore.ReconcileItem) ([]orderstore.ReconcileResult, error) {
	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return nil, classifyGateError(err)
	}
	defer release()

	results, err := o.store.ReconcileBatch(ctx, items, o.cfg.ReconcileChunkSize)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if !r.WasCommit && !r.Matched {
			o.audit.ReleaseMismatch(r.OrderID)
		}
	}
	return results, nil
}

func (o *Orchestrator) rollbackReservations(ctx context.Context, ids []int64) {
	release, err := o.gate.Acquire(ctx)
	if err != nil {
		o.logger.Error("failed to acquire gate for reservation rollback", zap.Error(err))
		return
	}
	defer release()

	unmatched, err := o.store.ReleaseBatch(ctx, ids, o.cfg.ReconcileChunkSize)
	if err != nil {
		o.logger.Error("failed to release reservations after downstream failure", zap.Error(err))
		return
	}
	for _, id := range unmatched {
		o.audit.ReleaseMismatch(id)
	}
}

func classifyGateError(err error) error {
	if errors.Is(err, gate.ErrTimeout) {
		return apierr.Overloaded("gate_timeout", 60).Wrap(err)
	}
	return apierr.New(apierr.CodeRuntime, "internal error acquiring resources").Wrap(err)
}

func classifyTradeClientError(err error) error {
	if errors.Is(err, tradeclient.ErrRejected) {
		return apierr.New(apierr.CodeRuntime, "downstream rejected the bulk request").Wrap(err)
	}
	return apierr.New(apierr.CodeDependency, "downstream trade service is unavailable").
		WithRetryAfter(60).
		WithTag("dependency", "trade-service").
		Wrap(err)
}

func toItemResults(items []*pendingItem) []ItemResult {
	results := make([]ItemResult, len(items))
	for i, it := range items {
		status := ItemSuccess
		if it.failed {
			status = ItemFailure
		}
		results[i] = ItemResult{
			OrderID:      it.orderID,
			RequestIndex: it.requestIndex,
			Status:       status,
			Message:      it.message,
			TradeOrderID: it.tradeOrderID,
		}
	}
	return results
}

func idsOf(items []*pendingItem) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.orderID
	}
	return ids
}

func derefOrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
