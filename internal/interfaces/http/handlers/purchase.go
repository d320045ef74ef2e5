package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/purchase"
)

// PurchaseHandler handles supplier bill endpoints
type PurchaseHandler struct {
	purchases *purchase.Service
	logger    *logrus.Logger
}

// NewPurchaseHandler creates a new purchase handler
func NewPurchaseHandler(purchases *purchase.Service, logger *logrus.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		purchases: purchases,
		logger:    logger,
	}
}

// CreatePurchase handles POST /purchases
func (h *PurchaseHandler) CreatePurchase(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req purchase.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.purchases.CreatePurchase(c.Request.Context(), &req, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Purchase recorded successfully"
	if result.Stock.Failed > 0 {
		message = "Purchase recorded; some lines were not added to stock"
	}
	respond(c, http.StatusCreated, message, result)
}

// ListPurchases handles GET /purchases
func (h *PurchaseHandler) ListPurchases(c *gin.Context) {
	var req purchase.ListPurchasesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}

	purchases, total, err := h.purchases.ListPurchases(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondPage(c, "Purchases retrieved successfully", purchases, total, req.Page, req.Limit)
}

// GetPurchase handles GET /purchases/:id
func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	p, err := h.purchases.GetPurchase(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Purchase retrieved successfully", p)
}

// RecordPayment handles POST /purchases/:id/payments
func (h *PurchaseHandler) RecordPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req purchase.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	p, err := h.purchases.RecordPayment(c.Request.Context(), id, &req, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, "Payment recorded successfully", p)
}

// GetVendor handles GET /vendors/:id
func (h *PurchaseHandler) GetVendor(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	v, err := h.purchases.GetVendor(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Vendor retrieved successfully", v)
}
