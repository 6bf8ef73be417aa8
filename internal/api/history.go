package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mkohlmann/cadence/internal/history"
)

// HistoryReader queries listening history
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.PlayRecord, error)
}

// HistoryResponse lists recent listens
type HistoryResponse struct {
	Records []history.PlayRecord `json:"records"`
}

// HistoryHandler serves listening history queries
type HistoryHandler struct {
	reader HistoryReader
}

// NewHistoryHandler creates a history handler
func NewHistoryHandler(reader HistoryReader) *HistoryHandler {
	return &HistoryHandler{reader: reader}
}

// GetRecent handles GET /history
func (h *HistoryHandler) GetRecent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_limit",
			Message: "limit must be between 1 and 500",
		})
		return
	}

	records, err := h.reader.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "query_failed",
			Message: "Failed to query listening history",
		})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Records: records})
}

// SetupHistoryRoutes registers history routes on the API group
func SetupHistoryRoutes(apiGroup *gin.RouterGroup, reader HistoryReader) {
	handler := NewHistoryHandler(reader)
	apiGroup.GET("/history", handler.GetRecent)
}
