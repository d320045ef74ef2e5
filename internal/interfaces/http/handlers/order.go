// internal/interfaces/http/handlers/order.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/order"
	"github.com/your-org/ops-ledger/internal/domain/returns"
	"github.com/your-org/ops-ledger/internal/pkg/validation"
)

// OrderHandler handles packing and return endpoints
type OrderHandler struct {
	packing *order.PackingService
	returns *returns.Service
	logger  *logrus.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(packing *order.PackingService, returnService *returns.Service, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{
		packing: packing,
		returns: returnService,
		logger:  logger,
	}
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	o, err := h.packing.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Order retrieved successfully", o)
}

// PackOrder handles POST /orders/:id/pack
func (h *OrderHandler) PackOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	o, err := h.packing.PackOrder(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Order packed successfully", o)
}

// PackOrders handles POST /orders/pack. Each order succeeds or fails on its
// own, so the response is 200 with a per-order tally.
func (h *OrderHandler) PackOrders(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req order.PackOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := validation.Struct(&req, "pack request is invalid"); err != nil {
		respondError(c, h.logger, err)
		return
	}

	result := h.packing.PackOrders(c.Request.Context(), req.OrderIDs, actorID)
	respond(c, http.StatusOK, "Bulk pack finished", result)
}

// ProcessReturn handles POST /orders/:id/returns
func (h *OrderHandler) ProcessReturn(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req returns.ProcessReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	record, err := h.returns.ProcessReturn(c.Request.Context(), id, &req, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, "Return processed successfully", record)
}

// ListReturns handles GET /orders/:id/returns
func (h *OrderHandler) ListReturns(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	records, err := h.returns.ListReturns(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Returns retrieved successfully", records)
}
