package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policyradar/protocols/internal/logger"
)

// Pinger reports whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	index   Pinger
	timeout time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(index Pinger) *HealthHandler {
	return &HealthHandler{index: index, timeout: 3 * time.Second}
}

// Health returns 200 when the search index is reachable and 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.index.Ping(ctx); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Search index unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"index":  "unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"index":  "reachable",
	})
}
