package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nitesh/news_aggregator/internal/service"
	"github.com/nitesh/news_aggregator/internal/store"
)

type Handler struct {
	svc *service.Service
	now func() time.Time
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Health)

	v1 := r.Group("/apis/v1")
	{
		v1.GET("/articles/", h.ListArticles)
		v1.GET("/articles/:id/", h.GetArticle)
		v1.GET("/sources/", h.ListSources)
		v1.GET("/categories/", h.Categories)
		v1.GET("/countries/", h.Countries)
		v1.GET("/languages/", h.Languages)
		v1.GET("/sync-runs/", h.ListSyncRuns)
	}
}

// ListArticles: GET /apis/v1/articles/?category=&country=&language=&source=
// &search=&title=&published_from=&published_to=&days=&ordering=&page=&page_size=
func (h *Handler) ListArticles(c *gin.Context) {
	var q articleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	f, err := q.filter(h.now())
	if err != nil {
		badRequest(c, err)
		return
	}
	page, err := h.svc.ListArticles(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetArticle: GET /apis/v1/articles/:id/
func (h *Handler) GetArticle(c *gin.Context) {
	art, err := h.svc.GetArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, art)
}

// ListSources: GET /apis/v1/sources/?category=&language=&country=&page=&page_size=
func (h *Handler) ListSources(c *gin.Context) {
	var q sourceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	page, err := h.svc.ListSources(c.Request.Context(), q.filter())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListSyncRuns: GET /apis/v1/sync-runs/?kind=sources|headlines&page=&page_size=
func (h *Handler) ListSyncRuns(c *gin.Context) {
	var q syncRunQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	page, err := h.svc.ListSyncRuns(c.Request.Context(), q.filter())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Categories(c *gin.Context) {
	res, err := h.svc.Categories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Countries(c *gin.Context) {
	res, err := h.svc.Countries(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Languages(c *gin.Context) {
	res, err := h.svc.Languages(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Health: GET /healthz
func (h *Handler) Health(c *gin.Context) {
	res := h.svc.Health(c.Request.Context())
	status := http.StatusOK
	if res.Status == "down" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, res)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// writeError maps store sentinels to status codes; anything else is a 500
// and is not echoed to the client.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrInvalidPage):
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid page"})
	case errors.Is(err, store.ErrInvalidOrdering):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
