package api

import (
	"errors"
	"net/http"

	"smartoffice/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) getThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, h.control.Thresholds())
}

// putThresholds replaces the set of one quantity.
// Body example: {"low_alarm":15,"low_warning":18,"high_warning":26,"high_alarm":30}
func (h *Handler) putThresholds(c *gin.Context) {
	q, err := models.ParseQuantity(c.Param("quantity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var set models.ThresholdSet
	if err := c.ShouldBindJSON(&set); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if err := h.control.UpdateThresholds(q, set); err != nil {
		if errors.Is(err, models.ErrConfiguration) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("threshold_update_failed", zap.String("quantity", string(q)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update thresholds"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quantity": q, "thresholds": set})
}

func (h *Handler) getControl(c *gin.Context) {
	c.JSON(http.StatusOK, h.control.ControlSnapshot())
}

func (h *Handler) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.control.Stats())
}

func (h *Handler) getDevices(c *gin.Context) {
	devices := []models.DeviceHealth{}
	if h.devices != nil {
		devices = h.devices.Devices()
	}
	c.JSON(http.StatusOK, gin.H{"count": len(devices), "devices": devices})
}
