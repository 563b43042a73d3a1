package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"smartoffice/models"
	"smartoffice/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getRecords lists the newest rows of one kind.
// Query: limit, device_type, device_id, severity, acknowledged, level.
func (h *Handler) getRecords(c *gin.Context) {
	kind, err := repository.ParseRecordKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q := repository.RecentQuery{
		Kind: kind,
		Filter: repository.Filter{
			DeviceType: strings.TrimSpace(c.Query("device_type")),
			DeviceID:   strings.TrimSpace(c.Query("device_id")),
			Severity:   strings.TrimSpace(c.Query("severity")),
			Level:      strings.TrimSpace(c.Query("level")),
		},
	}
	if qs := c.Query("limit"); qs != "" {
		limit, err := strconv.Atoi(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		q.Limit = limit
	}
	if qs := c.Query("acknowledged"); qs != "" {
		ack, err := strconv.ParseBool(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "acknowledged must be true or false"})
			return
		}
		q.Acknowledged = &ack
	}

	res, err := h.store.QueryRecent(c.Request.Context(), q)
	if err != nil {
		h.log.Error("records_query_failed", zap.String("kind", string(kind)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   res.Count(),
		"records": res,
	})
}

func (h *Handler) acknowledgeAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	err = h.store.AcknowledgeAlert(c.Request.Context(), id)
	switch {
	case errors.Is(err, models.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case err != nil:
		h.log.Error("alert_ack_failed", zap.Int64("alert_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acknowledge alert"})
	default:
		c.JSON(http.StatusOK, gin.H{"id": id, "acknowledged": true})
	}
}
