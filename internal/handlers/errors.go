package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/globeco/order-submission-service/internal/apierr"
	"github.com/globeco/order-submission-service/internal/domain/order"
	"github.com/globeco/order-submission-service/internal/middleware"
	"github.com/globeco/order-submission-service/internal/orchestrator"
)

// writeError renders err as the uniform error body, mapping the
// orchestrator's batch-shape sentinels and the order package's domain
// errors onto taxonomy codes before falling back to RUNTIME_ERROR for
// anything unrecognized.
func writeError(c *gin.Context, err error) {
	apiErr := classify(err)
	apiErr.WithCorrelationID(middleware.CorrelationID(c))
	c.JSON(apiErr.HTTPStatus(), apiErr.ToBody(time.Now()))
}

func classify(err error) *apierr.Error {
	if e, ok := apierr.As(err); ok {
		return e
	}

	switch {
	case errors.Is(err, orchestrator.ErrEmptyBatch):
		return apierr.New(apierr.CodeValidation, "batch must not be empty")
	case errors.Is(err, orchestrator.ErrBatchTooLarge):
		return apierr.New(apierr.CodeValidation, "batch exceeds the configured size limit")
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, order.ErrStatusNotFound):
		return apierr.New(apierr.CodeNotFound, "resource not found")
	case errors.Is(err, order.ErrVersionConflict):
		return apierr.New(apierr.CodeConflict, "version mismatch, reload and retry")
	case errors.Is(err, order.ErrReferenceInUse):
		return apierr.New(apierr.CodeConflict, "reference row is still in use by existing orders")
	case errors.Is(err, order.ErrInvalidPortfolioID), errors.Is(err, order.ErrInvalidQuantity), errors.Is(err, order.ErrInvalidLimitPrice):
		return apierr.New(apierr.CodeValidation, err.Error())
	default:
		return apierr.New(apierr.CodeRuntime, "internal error").Wrap(err)
	}
}

// writeBindError renders a malformed-body error the same shape every
// other 4xx uses, instead of gin's default plain-text response.
func writeBindError(c *gin.Context, err error) {
	apiErr := apierr.New(apierr.CodeValidation, "malformed request body").WithTag("detail", err.Error())
	apiErr.WithCorrelationID(middleware.CorrelationID(c))
	c.JSON(http.StatusBadRequest, apiErr.ToBody(time.Now()))
}

// writeOversizeError renders the 413 response for a batch larger than
// the configured maximum, without routing through the taxonomy's 4xx
// status table (413 has no taxonomy code of its own).
func writeOversizeError(c *gin.Context, max int) {
	body := gin.H{
		"code":      "PAYLOAD_TOO_LARGE",
		"message":   "batch exceeds the maximum allowed size",
		"maxSize":   max,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	c.JSON(http.StatusRequestEntityTooLarge, body)
}
