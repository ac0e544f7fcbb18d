package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/globeco/order-submission-service/internal/apierr"
	"github.com/globeco/order-submission-service/internal/domain/order"
	"github.com/globeco/order-submission-service/internal/orchestrator"
)

// OrderHandler exposes the bulk submission and batch create pipelines
// over HTTP.
type OrderHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(o *orchestrator.Orchestrator, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{orchestrator: o, logger: logger}
}

// submitRequest is the bulk submit wire request.
type submitRequest struct {
	OrderIDs []int64 `json:"orderIds" binding:"required"`
}

// itemResultResponse is one order's outcome within an aggregate response.
type itemResultResponse struct {
	OrderID      int64  `json:"orderId"`
	RequestIndex int    `json:"requestIndex"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	TradeOrderID *int64 `json:"tradeOrderId"`
}

// aggregateResponse is the wire shape for both the submit and create
// batch endpoints.
type aggregateResponse struct {
	Status         string               `json:"status"`
	Message        string               `json:"message"`
	TotalRequested int                  `json:"totalRequested"`
	Successful     int                  `json:"successful"`
	Failed         int                  `json:"failed"`
	Results        []itemResultResponse `json:"results"`
}

func toAggregateResponse(r *orchestrator.AggregateResult) aggregateResponse {
	results := make([]itemResultResponse, len(r.Results))
	for i, item := range r.Results {
		results[i] = itemResultResponse{
			OrderID:      item.OrderID,
			RequestIndex: item.RequestIndex,
			Status:       string(item.Status),
			Message:      item.Message,
			TradeOrderID: item.TradeOrderID,
		}
	}
	return aggregateResponse{
		Status:         string(r.Status),
		Message:        aggregateMessage(r),
		TotalRequested: r.TotalRequested,
		Successful:     r.Successful,
		Failed:         r.Failed,
		Results:        results,
	}
}

func aggregateMessage(r *orchestrator.AggregateResult) string {
	switch r.Status {
	case orchestrator.AggregateSuccess:
		return "all orders processed successfully"
	case orchestrator.AggregatePartial:
		return "some orders failed processing"
	default:
		return "all orders failed processing"
	}
}

// SubmitBatch handles POST /orders/batch/submit. Response status is 200
// when every order succeeded, 207 for a mixed or all-failed-during-
// processing outcome, 400 for a malformed or empty body, 413 when the
// batch exceeds the configured maximum, and whatever apierr.HTTPStatus
// yields (503 for overload or a downstream outage, 500 for an internal
// failure) when the call fails as a whole.
func (h *OrderHandler) SubmitBatch(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if len(req.OrderIDs) > h.orchestrator.SubmitBatchMax() {
		writeOversizeError(c, h.orchestrator.SubmitBatchMax())
		return
	}

	result, err := h.orchestrator.Submit(c.Request.Context(), req.OrderIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if result.Status != orchestrator.AggregateSuccess {
		status = http.StatusMultiStatus
	}
	c.JSON(status, toAggregateResponse(result))
}

// draftRequest is one order in a batch create request.
type draftRequest struct {
	BlotterID   *int64  `json:"blotterId"`
	PortfolioID string  `json:"portfolioId" binding:"required"`
	OrderTypeID int64   `json:"orderTypeId" binding:"required"`
	SecurityID  string  `json:"securityId" binding:"required"`
	Quantity    string  `json:"quantity" binding:"required"`
	LimitPrice  *string `json:"limitPrice"`
}

func (d draftRequest) toOrder() (*order.Order, error) {
	qty, err := decimal.NewFromString(d.Quantity)
	if err != nil {
		return nil, apierr.New(apierr.CodeValidation, "quantity is not a valid decimal")
	}
	draft := &order.Order{
		BlotterID:   d.BlotterID,
		PortfolioID: d.PortfolioID,
		OrderTypeID: d.OrderTypeID,
		SecurityID:  d.SecurityID,
		Quantity:    qty,
	}
	if d.LimitPrice != nil {
		lp, err := decimal.NewFromString(*d.LimitPrice)
		if err != nil {
			return nil, apierr.New(apierr.CodeValidation, "limitPrice is not a valid decimal")
		}
		draft.LimitPrice = &lp
	}
	return draft, nil
}

// CreateBatch handles POST /orders. The body is a JSON array of order
// drafts, 1..CreateBatchMax in length; each draft is created in its own
// independent transaction so one bad draft never rolls back the rest. A
// draft whose quantity or limit price fails to parse is itself just
// another per-item failure, not a request-level rejection: it takes its
// place in the aggregate alongside whatever the orchestrator reports for
// the drafts that did parse, mirroring how Submit turns "order not
// found" into a per-item failure rather than aborting the whole batch.
func (h *OrderHandler) CreateBatch(c *gin.Context) {
	var reqs []draftRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		writeBindError(c, err)
		return
	}

	if len(reqs) > h.orchestrator.CreateBatchMax() {
		writeOversizeError(c, h.orchestrator.CreateBatchMax())
		return
	}
	if len(reqs) == 0 {
		writeError(c, orchestrator.ErrEmptyBatch)
		return
	}

	results := make([]orchestrator.ItemResult, len(reqs))
	drafts := make([]*order.Order, 0, len(reqs))
	draftIndexes := make([]int, 0, len(reqs))

	for i, r := range reqs {
		draft, err := r.toOrder()
		if err != nil {
			results[i] = orchestrator.ItemResult{
				RequestIndex: i,
				Status:       orchestrator.ItemFailure,
				Message:      draftErrMessage(err),
			}
			continue
		}
		drafts = append(drafts, draft)
		draftIndexes = append(draftIndexes, i)
	}

	if len(drafts) > 0 {
		created, err := h.orchestrator.CreateBatch(c.Request.Context(), drafts)
		if err != nil {
			writeError(c, err)
			return
		}
		for _, r := range created.Results {
			r.RequestIndex = draftIndexes[r.RequestIndex]
			results[r.RequestIndex] = r
		}
	}

	result := aggregateItemResults(results, len(reqs))
	status := http.StatusOK
	if result.Status != orchestrator.AggregateSuccess {
		status = http.StatusMultiStatus
	}
	c.JSON(status, toAggregateResponse(result))
}

func draftErrMessage(err error) string {
	if apiErr, ok := apierr.As(err); ok {
		return apiErr.Message
	}
	return err.Error()
}

// aggregateItemResults mirrors the orchestrator's own aggregate rule
// (SUCCESS when every item succeeded, FAILURE when none did, PARTIAL
// otherwise), applied here to a results slice this handler assembled
// from a mix of pre-parse failures and orchestrator-reported outcomes.
func aggregateItemResults(results []orchestrator.ItemResult, total int) *orchestrator.AggregateResult {
	successful, failed := 0, 0
	for _, r := range results {
		if r.Status == orchestrator.ItemSuccess {
			successful++
		} else {
			failed++
		}
	}

	status := orchestrator.AggregateSuccess
	switch {
	case successful == 0 && failed > 0:
		status = orchestrator.AggregateFailure
	case failed > 0:
		status = orchestrator.AggregatePartial
	}

	return &orchestrator.AggregateResult{
		Status:         status,
		TotalRequested: total,
		Successful:     successful,
		Failed:         failed,
		Results:        results,
	}
}
