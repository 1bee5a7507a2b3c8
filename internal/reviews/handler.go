package reviews

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"novelhub/internal/auth"
	"novelhub/internal/discovery"
)

type Handler struct {
	Repo      *Repo
	Discovery *discovery.DataService
}

func NewHandler(repo *Repo, discoverySvc *discovery.DataService) *Handler {
	return &Handler{Repo: repo, Discovery: discoverySvc}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/novels/:id/reviews", h.listByNovel)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/reviews", h.create)
	rg.DELETE("/reviews/:id", h.delete)
}

type createReq struct {
	NovelID string `json:"novel_id"`
	Rating  int    `json:"rating"`
	Text    string `json:"text"`
}

func (h *Handler) create(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	novelID := strings.TrimSpace(req.NovelID)
	if novelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "novel_id required"})
		return
	}

	if req.Rating < 1 || req.Rating > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		return
	}

	review, err := h.Repo.Create(c.Request.Context(), claims.UserID, novelID, req.Rating, strings.TrimSpace(req.Text))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	h.afterChange(c, novelID)
	c.JSON(http.StatusCreated, review)
}

func (h *Handler) listByNovel(c *gin.Context) {
	novelID := strings.TrimSpace(c.Param("id"))
	if novelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "novel id required"})
		return
	}

	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)

	reviews, err := h.Repo.ListByNovel(c.Request.Context(), novelID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"limit":  limit,
		"offset": offset,
		"items":  reviews,
	})
}

func (h *Handler) delete(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	idRaw := strings.TrimSpace(c.Param("id"))
	if idRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}

	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	review, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if review == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	ok, err := h.Repo.Delete(c.Request.Context(), id, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	h.afterChange(c, review.NovelID)
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// afterChange keeps the denormalized rating/review-count current and drops
// stale discovery caches that embed them.
func (h *Handler) afterChange(c *gin.Context, novelID string) {
	if err := h.Repo.RefreshNovelStats(c.Request.Context(), novelID); err != nil {
		log.Printf("[reviews] stats refresh for %s failed: %v", novelID, err)
		return
	}
	if h.Discovery != nil {
		if err := h.Discovery.InvalidateDiscoveryCache(c.Request.Context()); err != nil {
			log.Printf("[reviews] discovery invalidation failed: %v", err)
		}
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
