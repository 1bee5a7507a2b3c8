package library

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"novelhub/internal/auth"
	"novelhub/internal/discovery"
	"novelhub/internal/realtime"
	"novelhub/pkg/models"
)

type Handler struct {
	Repo      *Repo
	Hub       *realtime.Hub
	Discovery *discovery.DataService
}

func NewHandler(repo *Repo, hub *realtime.Hub, discoverySvc *discovery.DataService) *Handler {
	return &Handler{Repo: repo, Hub: hub, Discovery: discoverySvc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/library", h.list)
	rg.POST("/library", h.addOrUpdate)
	rg.PUT("/library/:novel_id", h.addOrUpdate)
	rg.DELETE("/library/:novel_id", h.remove)
	rg.GET("/library/:novel_id", h.getOne)
}

type upsertReq struct {
	NovelID        string `json:"novel_id"` // required for POST
	CurrentChapter int    `json:"current_chapter"`
	Status         string `json:"status"`
}

func (h *Handler) addOrUpdate(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req upsertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	novelID := strings.TrimSpace(req.NovelID)
	if novelID == "" {
		novelID = strings.TrimSpace(c.Param("novel_id"))
	}
	if novelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "novel_id required"})
		return
	}

	status := normalizeStatus(req.Status)
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "status must be one of: reading, completed, plan_to_read, dropped",
		})
		return
	}

	if req.CurrentChapter < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current_chapter must be >= 0"})
		return
	}

	item := models.LibraryItem{
		UserID:         claims.UserID,
		NovelID:        novelID,
		CurrentChapter: req.CurrentChapter,
		Status:         status,
	}
	if err := h.Repo.Upsert(c.Request.Context(), item); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	// Return canonical stored row including updated_at
	saved, err := h.Repo.Get(c.Request.Context(), claims.UserID, novelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch saved failed"})
		return
	}
	if saved == nil {
		// should not happen, but safe
		saved = &item
		saved.UpdatedAt = time.Now().UTC()
	}

	h.afterChange(c, claims.UserID, realtime.LibraryEvent{
		Type:           "library.update",
		UserID:         claims.UserID,
		NovelID:        novelID,
		CurrentChapter: saved.CurrentChapter,
		Status:         saved.Status,
		At:             time.Now().UTC(),
	})

	c.JSON(http.StatusOK, saved)
}

func (h *Handler) list(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	status := strings.TrimSpace(c.Query("status"))
	if status != "" {
		status = normalizeStatus(status)
		if status == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
	}

	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)

	items, total, err := h.Repo.List(c.Request.Context(), claims.UserID, status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) remove(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	novelID := strings.TrimSpace(c.Param("novel_id"))
	if novelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "novel_id required"})
		return
	}

	deleted, err := h.Repo.Delete(c.Request.Context(), claims.UserID, novelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	h.afterChange(c, claims.UserID, realtime.LibraryEvent{
		Type:    "library.delete",
		UserID:  claims.UserID,
		NovelID: novelID,
		At:      time.Now().UTC(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) getOne(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	novelID := strings.TrimSpace(c.Param("novel_id"))
	if novelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "novel_id required"})
		return
	}

	item, err := h.Repo.Get(c.Request.Context(), claims.UserID, novelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.JSON(http.StatusOK, item)
}

// afterChange broadcasts the event and drops the user's cached discovery
// entries so personalized lanes rebuild on the next request.
func (h *Handler) afterChange(c *gin.Context, userID string, ev realtime.LibraryEvent) {
	if h.Hub != nil {
		go h.Hub.Broadcast(ev)
	}
	if h.Discovery != nil {
		keys := h.Discovery.SelectiveInvalidate(c.Request.Context(), []discovery.Pattern{
			discovery.Literal("user_" + userID),
		}, discovery.InvalidateOptions{})
		if h.Hub != nil && len(keys) > 0 {
			go h.Hub.Broadcast(realtime.NewDiscoveryInvalidation(keys))
		}
	}
}

func normalizeStatus(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "reading":
		return "reading"
	case "completed":
		return "completed"
	case "plan to read", "plan_to_read", "plantoread":
		return "plan_to_read"
	case "dropped":
		return "dropped"
	default:
		return ""
	}
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
