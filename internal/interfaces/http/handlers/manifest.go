package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/dispatch"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ManifestHandler handles dispatch endpoints
type ManifestHandler struct {
	dispatch *dispatch.Service
	logger   *logrus.Logger
}

// NewManifestHandler creates a new manifest handler
func NewManifestHandler(dispatchService *dispatch.Service, logger *logrus.Logger) *ManifestHandler {
	return &ManifestHandler{
		dispatch: dispatchService,
		logger:   logger,
	}
}

// CreateManifest handles POST /manifests
func (h *ManifestHandler) CreateManifest(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req dispatch.CreateManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	m, err := h.dispatch.CreateManifest(c.Request.Context(), &req, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, "Manifest created successfully", m)
}

// ListManifests handles GET /manifests
func (h *ManifestHandler) ListManifests(c *gin.Context) {
	var req dispatch.ListManifestsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}

	manifests, total, err := h.dispatch.ListManifests(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondPage(c, "Manifests retrieved successfully", manifests, total, req.Page, req.Limit)
}

// GetManifest handles GET /manifests/:id
func (h *ManifestHandler) GetManifest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	m, err := h.dispatch.GetManifest(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Manifest retrieved successfully", m)
}

// ExportManifest handles GET /manifests/:id/export
func (h *ManifestHandler) ExportManifest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	buf, filename, err := h.dispatch.ExportRunSheet(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// DispatchManifest handles POST /manifests/:id/dispatch
func (h *ManifestHandler) DispatchManifest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	m, err := h.dispatch.DispatchManifest(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Manifest dispatched successfully", m)
}

// CancelManifest handles POST /manifests/:id/cancel
func (h *ManifestHandler) CancelManifest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	m, err := h.dispatch.CancelManifest(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Manifest cancelled successfully", m)
}

// RecordOutcome handles POST /manifests/:id/orders/:orderId/outcome
func (h *ManifestHandler) RecordOutcome(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req dispatch.RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	m, err := h.dispatch.RecordDeliveryOutcome(c.Request.Context(), id, orderID, &req, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Delivery outcome recorded successfully", m)
}

// RescheduleOrder handles POST /manifests/:id/orders/:orderId/reschedule
func (h *ManifestHandler) RescheduleOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	m, err := h.dispatch.RescheduleOrder(c.Request.Context(), id, orderID, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, "Order rescheduled successfully", m)
}
