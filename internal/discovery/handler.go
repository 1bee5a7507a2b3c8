package discovery

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"novelhub/pkg/models"
)

type Handler struct {
	Service *DataService
}

func NewHandler(service *DataService) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.unified)
	rg.GET("/lanes/:lane", h.lane)
	rg.GET("/variants/:variant", h.variant)
	rg.GET("/performance", h.performance)
	rg.POST("/invalidate", h.invalidate)
	rg.POST("/invalidate/selective", h.selectiveInvalidate)

	// legacy flat-list routes
	rg.GET("/lists/trending", h.listTrending)
	rg.GET("/lists/new-arrivals", h.listNewArrivals)
	rg.GET("/lists/editors-pick", h.listEditorsPick)
	rg.GET("/lists/category/:category", h.listCategory)
}

func (h *Handler) unified(c *gin.Context) {
	opts := models.DiscoveryOptions{
		Variant:      strings.TrimSpace(c.Query("variant")),
		UserID:       strings.TrimSpace(c.Query("user_id")),
		ForceRefresh: c.Query("refresh") == "true",
	}
	doc := h.Service.GetUnifiedDiscoveryData(c.Request.Context(), opts)
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) lane(c *gin.Context) {
	lane, err := ParseLane(c.Param("lane"), c.Query("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := models.DiscoveryOptions{}
	if timeRange := strings.TrimSpace(c.Query("time_range")); timeRange != "" {
		opts.TimeRanges = map[string]string{"trending": timeRange}
	}

	data := h.Service.GetLane(c.Request.Context(), lane, opts)
	c.JSON(http.StatusOK, data)
}

func (h *Handler) variant(c *gin.Context) {
	variant := strings.TrimSpace(c.Param("variant"))
	switch variant {
	case "default", "personalized", "trending-focused":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown variant"})
		return
	}
	c.JSON(http.StatusOK, h.Service.GetDiscoveryVariant(c.Request.Context(), variant))
}

func (h *Handler) performance(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.PerformanceReport())
}

func (h *Handler) invalidate(c *gin.Context) {
	if err := h.Service.InvalidateDiscoveryCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalidate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

type selectiveInvalidateReq struct {
	Patterns  []string `json:"patterns"`
	Regex     []string `json:"regex"`
	DataTypes []string `json:"data_types"`
	Tags      []string `json:"tags"`
	OlderThan string   `json:"older_than"` // RFC3339
}

func (h *Handler) selectiveInvalidate(c *gin.Context) {
	var req selectiveInvalidateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	patterns := make([]Pattern, 0, len(req.Patterns)+len(req.Regex))
	for _, literal := range req.Patterns {
		patterns = append(patterns, Literal(literal))
	}
	for _, expr := range req.Regex {
		re, err := regexp.Compile(expr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid regex: " + expr})
			return
		}
		patterns = append(patterns, Regex(re))
	}

	opts := InvalidateOptions{
		DataTypes: req.DataTypes,
		Tags:      req.Tags,
	}
	if req.OlderThan != "" {
		cutoff, err := time.Parse(time.RFC3339, req.OlderThan)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "older_than must be RFC3339"})
			return
		}
		opts.OlderThan = cutoff
	}

	keys := h.Service.SelectiveInvalidate(c.Request.Context(), patterns, opts)
	c.JSON(http.StatusOK, gin.H{
		"invalidated": keys,
		"count":       len(keys),
	})
}

func (h *Handler) listTrending(c *gin.Context) {
	items := h.Service.FetchTrendingNovels(c.Request.Context(), c.DefaultQuery("time_range", "weekly"))
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) listNewArrivals(c *gin.Context) {
	items := h.Service.FetchNewArrivals(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) listEditorsPick(c *gin.Context) {
	items := h.Service.FetchEditorsPick(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) listCategory(c *gin.Context) {
	category := strings.TrimSpace(c.Param("category"))
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category required"})
		return
	}
	items := h.Service.FetchCategoryNovels(c.Request.Context(), category)
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}
