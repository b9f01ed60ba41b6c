package handlers

import (
	"errors"
	"net/http"

	"bihar-rag-backend/models"
	"bihar-rag-backend/repository"
	"bihar-rag-backend/service"

	"github.com/gin-gonic/gin"
)

// QueryHandler handles HTTP requests for retrieval
type QueryHandler struct {
	queryService *service.QueryService
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queryService *service.QueryService) *QueryHandler {
	return &QueryHandler{queryService: queryService}
}

// QueryRequest represents the request body for a retrieval query
type QueryRequest struct {
	Query         string `json:"query" binding:"required"`
	TopK          int    `json:"top_k"`
	IncludeArabic bool   `json:"include_arabic"`
	VolumeFilter  *int   `json:"volume_filter"`
}

// Query handles POST /api/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	result, err := h.queryService.Query(c.Request.Context(), service.QueryRequest{
		Text:          req.Query,
		TopK:          req.TopK,
		IncludeArabic: req.IncludeArabic,
		VolumeFilter:  req.VolumeFilter,
	})
	if err != nil {
		status := http.StatusInternalServerError
		code := "QUERY_FAILED"
		if errors.Is(err, service.ErrEmptyQuery) ||
			errors.Is(err, service.ErrInvalidTopK) ||
			errors.Is(err, service.ErrInvalidVolume) {
			status = http.StatusBadRequest
			code = "INVALID_REQUEST"
		}
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"query":           req.Query,
		"answer":          result.Answer,
		"references":      result.References,
		"total_sources":   result.TotalSources,
		"processing_time": result.ProcessingTime,
		"low_confidence":  result.LowConfidence,
		"partial":         result.Partial,
	})
}

// SearchByReference handles GET /api/search-by-reference
func (h *QueryHandler) SearchByReference(c *gin.Context) {
	var params struct {
		Volume  int     `form:"volume" binding:"required"`
		Chapter *string `form:"chapter"`
		Hadith  *string `form:"hadith"`
	}
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	chunks, err := h.queryService.SearchByReference(c.Request.Context(), params.Volume, params.Chapter, params.Hadith)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "No chunks match the given reference",
				},
			})
			return
		}
		if errors.Is(err, service.ErrInvalidVolume) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_VOLUME",
					"message": err.Error(),
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SEARCH_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	reference := models.Reference{Volume: params.Volume, Chapter: params.Chapter, HadithNumber: params.Hadith}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"citation": reference.Citation(),
		"chunks":   chunks,
		"count":    len(chunks),
	})
}
