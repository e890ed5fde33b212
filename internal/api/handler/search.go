package handler

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/logger"
	"github.com/policyradar/protocols/internal/service"
)

// Searcher answers search and lookup requests. *service.SearchService
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
	GetDocument(ctx context.Context, id string) (*domain.ProtocolDocument, error)
}

// SearchHandler handles search-related endpoints.
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - searcher: search service instance.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Search handles POST /api/v1/search.
func (h *SearchHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	h.run(c, req)
}

// SearchGet handles GET /api/v1/search?q=&source=&doc_type=&date_from=&date_to=&page=&size=.
func (h *SearchHandler) SearchGet(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	h.run(c, req)
}

func (h *SearchHandler) run(c *gin.Context, req service.SearchRequest) {
	result, err := h.searcher.Search(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSearch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Search failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetDocument handles GET /api/v1/documents/:id.
func (h *SearchHandler) GetDocument(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.searcher.GetDocument(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		_ = c.Error(err)
		logger.FromContext(c.Request.Context()).WithField(logger.FieldDocumentID, id).WithError(err).Error("Document lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Document lookup failed"})
		return
	}
	c.JSON(http.StatusOK, doc)
}
