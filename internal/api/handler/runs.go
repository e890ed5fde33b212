package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/repository"
)

// RunLister reads the run ledger. *repository.RunRepository satisfies it.
type RunLister interface {
	ListRecent(ctx context.Context, source string, limit int) ([]domain.IngestionRun, error)
	GetByID(ctx context.Context, id string) (*domain.IngestionRun, error)
}

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunHandler exposes ingestion run history.
type RunHandler struct {
	runs RunLister
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runs RunLister) *RunHandler {
	return &RunHandler{runs: runs}
}

// List handles GET /api/v1/runs?source=&limit=.
func (h *RunHandler) List(c *gin.Context) {
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), c.Query("source"), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// Get handles GET /api/v1/runs/:id.
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load run"})
		return
	}
	c.JSON(http.StatusOK, run)
}
