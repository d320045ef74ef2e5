package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/rider"
	"github.com/your-org/ops-ledger/internal/domain/settlement"
)

// SettlementHandler handles rider cash endpoints
type SettlementHandler struct {
	settlements *settlement.Service
	riders      *rider.Service
	logger      *logrus.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(settlements *settlement.Service, riders *rider.Service, logger *logrus.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlements: settlements,
		riders:      riders,
		logger:      logger,
	}
}

// CreateSettlement handles POST /settlements
func (h *SettlementHandler) CreateSettlement(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req settlement.CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	record, err := h.settlements.CreateSettlement(c.Request.Context(), &req, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, "Settlement recorded successfully", record)
}

// BulkCreateSettlements handles POST /settlements/bulk
func (h *SettlementHandler) BulkCreateSettlements(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req settlement.BulkSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.settlements.BulkCreateSettlements(c.Request.Context(), &req, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Bulk settlement finished", result)
}

// ListSettlements handles GET /settlements
func (h *SettlementHandler) ListSettlements(c *gin.Context) {
	var req settlement.ListSettlementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}

	records, total, err := h.settlements.ListSettlements(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondPage(c, "Settlements retrieved successfully", records, total, req.Page, req.Limit)
}

// VerifySettlement handles POST /settlements/:id/verify
func (h *SettlementHandler) VerifySettlement(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	record, err := h.settlements.VerifySettlement(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Settlement verified successfully", record)
}

// GetRider handles GET /riders/:id
func (h *SettlementHandler) GetRider(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	r, err := h.riders.GetRider(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Rider retrieved successfully", r)
}

// GetBalanceLogs handles GET /riders/:id/balance-logs
func (h *SettlementHandler) GetBalanceLogs(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	logs, total, err := h.riders.BalanceHistory(c.Request.Context(), id, page, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondPage(c, "Balance history retrieved successfully", logs, total, page, limit)
}
