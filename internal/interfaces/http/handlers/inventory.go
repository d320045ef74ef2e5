// internal/interfaces/http/handlers/inventory.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
)

// InventoryHandler handles stock ledger endpoints
type InventoryHandler struct {
	ledger *inventory.Ledger
	logger *logrus.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(ledger *inventory.Ledger, logger *logrus.Logger) *InventoryHandler {
	return &InventoryHandler{
		ledger: ledger,
		logger: logger,
	}
}

type damageRequest struct {
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type adjustRequest struct {
	Delta int    `json:"delta"`
	Notes string `json:"notes" binding:"required"`
}

// GetStock handles GET /variants/:id/stock
func (h *InventoryHandler) GetStock(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	variant, err := h.ledger.GetVariant(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Stock retrieved successfully", gin.H{
		"variant_id":    variant.ID,
		"sku":           variant.SKU,
		"current_stock": variant.CurrentStock,
		"low_stock":     variant.IsLowStock(),
		"out_of_stock":  variant.IsOutOfStock(),
	})
}

// GetMovements handles GET /variants/:id/movements
func (h *InventoryHandler) GetMovements(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	movements, total, err := h.ledger.History(c.Request.Context(), id, page, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondPage(c, "Stock movements retrieved successfully", movements, total, page, limit)
}

// Reconcile handles GET /variants/:id/reconcile
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	rec, err := h.ledger.Reconcile(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Reconciliation completed", rec)
}

// Repair handles POST /variants/:id/repair
func (h *InventoryHandler) Repair(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	rec, err := h.ledger.Repair(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Stock already matches the ledger"
	if rec.Repaired {
		message = "Stock repaired from the ledger"
	}
	respond(c, http.StatusOK, message, rec)
}

// WriteOffDamage handles POST /variants/:id/damage
func (h *InventoryHandler) WriteOffDamage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req damageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.ledger.WriteOffDamage(c.Request.Context(), id, req.Quantity, req.Notes, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, "Damage written off successfully", result)
}

// Adjust handles POST /variants/:id/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.ledger.Adjust(c.Request.Context(), id, req.Delta, req.Notes, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, "Stock adjusted successfully", result)
}

// GetAlerts handles GET /stock-alerts
func (h *InventoryHandler) GetAlerts(c *gin.Context) {
	alerts, err := h.ledger.OpenAlerts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Stock alerts retrieved successfully", alerts)
}
