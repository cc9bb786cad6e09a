package handlers

import (
	"net/http"

	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/BinLe1988/moderation-gateway/pkg/moderation"
	"github.com/gin-gonic/gin"
)

// Readiness reports whether the gateway can serve moderation calls.
type Readiness interface {
	Ready() error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	readiness Readiness
}

func NewHealthHandler(readiness Readiness) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

func (h *HealthHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Healthz)
	router.GET("/readyz", h.Readyz)
}

// Healthz answers as long as the process is up.
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Readyz fails until the upstream API key is configured.
func (h *HealthHandler) Readyz(c *gin.Context) {
	if err := h.readiness.Ready(); err != nil {
		c.JSON(http.StatusServiceUnavailable, models.StatusResponse{
			Status: "not_ready",
			Reason: moderation.InfoOf(err).Message,
		})
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}
