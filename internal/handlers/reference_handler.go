package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/globeco/order-submission-service/internal/apierr"
	"github.com/globeco/order-submission-service/internal/domain/order"
)

// ReferenceHandler exposes plain list/get/create/update/delete over the
// status, order-type and blotter reference tables. None of these carry
// business logic; every mutation is optimistic-concurrency guarded by a
// version column.
type ReferenceHandler struct {
	store  referenceStoreAPI
	logger *zap.Logger
}

// referenceStoreAPI mirrors orderstore.Store's reference-data methods,
// narrowed so this handler can be tested against a fake.
type referenceStoreAPI interface {
	ListStatuses(ctx context.Context) ([]*order.Status, error)
	GetStatus(ctx context.Context, id int64) (*order.Status, error)
	CreateStatus(ctx context.Context, code, description string) (*order.Status, error)
	UpdateStatus(ctx context.Context, id int64, description string, expectedVersion int64) (*order.Status, error)
	DeleteStatus(ctx context.Context, id int64, expectedVersion int64) error

	ListOrderTypes(ctx context.Context) ([]*order.OrderType, error)
	GetOrderType(ctx context.Context, id int64) (*order.OrderType, error)
	CreateOrderType(ctx context.Context, code, description string) (*order.OrderType, error)
	UpdateOrderType(ctx context.Context, id int64, description string, expectedVersion int64) (*order.OrderType, error)
	DeleteOrderType(ctx context.Context, id int64, expectedVersion int64) error

	ListBlotters(ctx context.Context) ([]*order.Blotter, error)
	GetBlotter(ctx context.Context, id int64) (*order.Blotter, error)
	CreateBlotter(ctx context.Context, name string) (*order.Blotter, error)
	UpdateBlotter(ctx context.Context, id int64, name string, expectedVersion int64) (*order.Blotter, error)
	DeleteBlotter(ctx context.Context, id int64, expectedVersion int64) error
}

// NewReferenceHandler constructs a ReferenceHandler.
func NewReferenceHandler(store referenceStoreAPI, logger *zap.Logger) *ReferenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceHandler{store: store, logger: logger}
}

type codeDescriptionRequest struct {
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
	Version     int64  `json:"version"`
}

type nameRequest struct {
	Name    string `json:"name" binding:"required"`
	Version int64  `json:"version"`
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apierr.New(apierr.CodeValidation, "id must be an integer")
	}
	return id, nil
}

// ListStatuses handles GET /statuses.
func (h *ReferenceHandler) ListStatuses(c *gin.Context) {
	out, err := h.store.ListStatuses(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetStatus handles GET /statuses/:id.
func (h *ReferenceHandler) GetStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.store.GetStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, order.ErrStatusNotFound)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CreateStatus handles POST /statuses.
func (h *ReferenceHandler) CreateStatus(c *gin.Context) {
	var req codeDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	out, err := h.store.CreateStatus(c.Request.Context(), req.Code, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// UpdateStatus handles PUT /statuses/:id.
func (h *ReferenceHandler) UpdateStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req codeDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	out, err := h.store.UpdateStatus(c.Request.Context(), id, req.Description, req.Version)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DeleteStatus handles DELETE /statuses/:id?version=N.
func (h *ReferenceHandler) DeleteStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	version, err := strconv.ParseInt(c.Query("version"), 10, 64)
	if err != nil {
		writeError(c, apierr.New(apierr.CodeValidation, "version query parameter is required"))
		return
	}
	if err := h.store.DeleteStatus(c.Request.Context(), id, version); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListOrderTypes handles GET /order-types.
func (h *ReferenceHandler) ListOrderTypes(c *gin.Context) {
	out, err := h.store.ListOrderTypes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetOrderType handles GET /order-types/:id.
func (h *ReferenceHandler) GetOrderType(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.store.GetOrderType(c.Request.Context(), id)
	if err != nil {
		writeError(c, order.ErrStatusNotFound)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CreateOrderType handles POST /order-types.
func (h *ReferenceHandler) CreateOrderType(c *gin.Context) {
	var req codeDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	out, err := h.store.CreateOrderType(c.Request.Context(), req.Code, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// UpdateOrderType handles PUT /order-types/:id.
func (h *ReferenceHandler) UpdateOrderType(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req codeDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	out, err := h.store.UpdateOrderType(c.Request.Context(), id, req.Description, req.Version)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DeleteOrderType handles DELETE /order-types/:id?version=N.
func (h *ReferenceHandler) DeleteOrderType(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	version, err := strconv.ParseInt(c.Query("version"), 10, 64)
	if err != nil {
		writeError(c, apierr.New(apierr.CodeValidation, "version query parameter is required"))
		return
	}
	if err := h.store.DeleteOrderType(c.Request.Context(), id, version); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListBlotters handles GET /blotters.
func (h *ReferenceHandler) ListBlotters(c *gin.Context) {
	out, err := h.store.ListBlotters(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetBlotter handles GET /blotters/:id.
func (h *ReferenceHandler) GetBlotter(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.store.GetBlotter(c.Request.Context(), id)
	if err != nil {
		writeError(c, order.ErrStatusNotFound)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CreateBlotter handles POST /blotters.
func (h *ReferenceHandler) CreateBlotter(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	out, err := h.store.CreateBlotter(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// UpdateBlotter handles PUT /blotters/:id.
func (h *ReferenceHandler) UpdateBlotter(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	out, err := h.store.UpdateBlotter(c.Request.Context(), id, req.Name, req.Version)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DeleteBlotter handles DELETE /blotters/:id?version=N.
func (h *ReferenceHandler) DeleteBlotter(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	version, err := strconv.ParseInt(c.Query("version"), 10, 64)
	if err != nil {
		writeError(c, apierr.New(apierr.CodeValidation, "version query parameter is required"))
		return
	}
	if err := h.store.DeleteBlotter(c.Request.Context(), id, version); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
