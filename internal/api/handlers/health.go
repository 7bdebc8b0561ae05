package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/nexconsult/egrn-tools/internal/services"
	"github.com/sirupsen/logrus"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	ledger    services.LedgerInterface
	logger    *logrus.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. ledger may be nil.
func NewHealthHandler(ledger services.LedgerInterface, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		ledger:    ledger,
		logger:    logger,
		startTime: time.Now(),
	}
}

// GetHealth handles general health check
func (h *HealthHandler) GetHealth(c *gin.Context) {
	servicesHealth := map[string]interface{}{}
	if h.ledger != nil {
		for name, health := range h.ledger.Health() {
			servicesHealth[name] = health
		}
	}

	// Redis is optional: an unreachable one degrades, never fails, the run
	status := "healthy"
	for _, serviceHealth := range servicesHealth {
		if healthMap, ok := serviceHealth.(map[string]interface{}); ok {
			if healthMap["status"] == "unhealthy" {
				status = "degraded"
			}
		}
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime).String(),
		Services:  servicesHealth,
	})
}
