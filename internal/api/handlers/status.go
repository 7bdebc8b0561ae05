package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/nexconsult/egrn-tools/internal/services"
	"github.com/sirupsen/logrus"
)

// StatusProvider reports the progress of the current run
type StatusProvider interface {
	Status() models.RunStatus
}

// StatusHandler handles run progress requests
type StatusHandler struct {
	status StatusProvider
	ledger services.LedgerInterface
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler. ledger may be nil.
func NewStatusHandler(status StatusProvider, ledger services.LedgerInterface, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		status: status,
		ledger: ledger,
		logger: logger,
	}
}

// GetStatus returns a snapshot of the run
func (h *StatusHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status())
}

// GetSubmission returns the recorded outcome of one object
func (h *StatusHandler) GetSubmission(c *gin.Context) {
	requestID := c.GetString("request_id")
	objectID := c.Param("objectId")

	if h.ledger == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:     "Not Found",
			Message:   "Submission ledger is disabled",
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	result, err := h.ledger.Lookup(c.Request.Context(), objectID)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"object_id":  objectID,
			"error":      err.Error(),
		}).Error("Failed to look up submission")

		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:     "Internal server error",
			Message:   "Failed to retrieve submission",
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:     "Not Found",
			Message:   "No submission recorded for " + objectID,
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
