package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkohlmann/cadence/internal/cache"
	"github.com/mkohlmann/cadence/internal/enrich"
	"github.com/mkohlmann/cadence/internal/remote"
)

// ContentLister fetches pages of content from the upstream service
type ContentLister interface {
	ListContent(ctx context.Context, contentType string, page, pageSize int) ([]remote.Content, error)
}

// FeedResponse is a page of enriched content
type FeedResponse struct {
	Items []remote.Content `json:"items"`
	Page  int              `json:"page"`
}

// FeedHandler serves cached, author-enriched content feeds
type FeedHandler struct {
	coordinator *cache.Coordinator
	lister      ContentLister
	enricher    *enrich.Service
	ttl         time.Duration
}

// NewFeedHandler creates a feed handler
func NewFeedHandler(coordinator *cache.Coordinator, lister ContentLister, enricher *enrich.Service, ttl time.Duration) *FeedHandler {
	return &FeedHandler{
		coordinator: coordinator,
		lister:      lister,
		enricher:    enricher,
		ttl:         ttl,
	}
}

// GetFeed handles GET /feed
func (h *FeedHandler) GetFeed(c *gin.Context) {
	contentType := c.DefaultQuery("type", "video")
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_page",
			Message: "page must be a positive integer",
		})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_page_size",
			Message: "pageSize must be between 1 and 100",
		})
		return
	}
	refresh := c.Query("refresh") == "true"

	key := fmt.Sprintf("feed:%s:%d:%d", contentType, page, pageSize)
	result, err := h.coordinator.Fetch(c.Request.Context(), key, cache.FetchOptions{
		TTL:          h.ttl,
		ForceRefresh: refresh,
	}, func(ctx context.Context) (any, error) {
		items, err := h.lister.ListContent(ctx, contentType, page, pageSize)
		if err != nil {
			return nil, err
		}
		return h.enricher.EnrichBatch(ctx, items), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrFetchTimeout):
			c.JSON(http.StatusGatewayTimeout, ErrorResponse{
				Error:   "fetch_timeout",
				Message: "Upstream fetch timed out",
			})
		case errors.Is(err, remote.ErrUpstreamUnavailable):
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "upstream_unavailable",
				Message: "Upstream service is temporarily unavailable",
			})
		default:
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:   "fetch_failed",
				Message: err.Error(),
			})
		}
		return
	}

	items, ok := result.([]remote.Content)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Unexpected cache payload",
		})
		return
	}

	c.JSON(http.StatusOK, FeedResponse{Items: items, Page: page})
}

// SetupFeedRoutes registers feed routes on the API group
func SetupFeedRoutes(apiGroup *gin.RouterGroup, coordinator *cache.Coordinator, lister ContentLister, enricher *enrich.Service, ttl time.Duration) {
	handler := NewFeedHandler(coordinator, lister, enricher, ttl)
	apiGroup.GET("/feed", handler.GetFeed)
}
