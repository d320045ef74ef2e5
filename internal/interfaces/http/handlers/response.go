package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/interfaces/http/middleware"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
)

// respondError maps a service error onto the API error envelope
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	appErr := apperror.As(err)
	status := appErr.Status()

	if status >= http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"code":       appErr.Code,
		}).WithError(err).Error("Request failed")
		_ = c.Error(err)
	}

	body := gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
		"kind":  appErr.Kind,
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	c.JSON(status, body)
}

// respondBindError reports a body that could not be decoded
func respondBindError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "Request body too large",
			"code":  "PAYLOAD_TOO_LARGE",
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request data",
		"code":    "MALFORMED_REQUEST",
		"kind":    apperror.KindBadRequest,
		"details": err.Error(),
	})
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"message": message,
		"data":    data,
	})
}

func respondPage(c *gin.Context, message string, data any, total int64, page, limit int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"data":    data,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
			"code":  "INVALID_ID",
			"kind":  apperror.KindBadRequest,
		})
		return 0, false
	}
	return uint(id), true
}

// actor returns the authenticated user recorded on every write
func actor(c *gin.Context) (uint, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok || userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
			"code":  "UNAUTHORIZED",
		})
		return 0, false
	}
	return userID, true
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}
