package api

import (
	"context"
	"net/http"
	"time"

	"smartoffice/models"
	"smartoffice/repository"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RecordStore is the read side of the persistence layer plus acknowledgement.
type RecordStore interface {
	QueryRecent(ctx context.Context, q repository.RecentQuery) (*repository.RecentResult, error)
	AcknowledgeAlert(ctx context.Context, id int64) error
}

// ControlPlane exposes the coordinator's tunables and state.
type ControlPlane interface {
	UpdateThresholds(q models.Quantity, set models.ThresholdSet) error
	Thresholds() map[models.Quantity]models.ThresholdSet
	ControlSnapshot() models.ControlState
	Stats() models.Stats
}

// DeviceLister reports device liveness.
type DeviceLister interface {
	Devices() []models.DeviceHealth
}

// Handler wires the HTTP layer to the store and the coordinator.
type Handler struct {
	store   RecordStore
	control ControlPlane
	devices DeviceLister
	log     *zap.Logger
}

// NewHandler constructs a new HTTP handler. devices may be nil.
func NewHandler(store RecordStore, control ControlPlane, devices DeviceLister, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, control: control, devices: devices, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger)

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.registerAPIRoutes(router)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/records/:kind", h.getRecords)
		api.POST("/alerts/:id/ack", h.acknowledgeAlert)

		api.GET("/thresholds", h.getThresholds)
		api.PUT("/thresholds/:quantity", h.putThresholds)

		api.GET("/control", h.getControl)
		api.GET("/stats", h.getStats)
		api.GET("/devices", h.getDevices)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.log.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)))
}
