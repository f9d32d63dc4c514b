package consultations

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink/telecare/pkg/response"
)

// Handler exposes the consultation history over HTTP.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a consultations handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the history endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/consultations", h.List)
	rg.GET("/consultations/totals", h.Totals)
}

func userIDFrom(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return uuid.Nil, false
	}
	switch id := v.(type) {
	case uuid.UUID:
		return id, true
	case string:
		parsed, err := uuid.Parse(id)
		return parsed, err == nil
	}
	return uuid.Nil, false
}

// List handles GET /consultations?limit=.
func (h *Handler) List(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	list, err := h.repo.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("list consultations", zap.Error(err))
		response.Internal(c, "failed to list consultations")
		return
	}
	response.OK(c, gin.H{"consultations": list})
}

// Totals handles GET /consultations/totals.
func (h *Handler) Totals(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	totals, err := h.repo.Totals(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("consultation totals", zap.Error(err))
		response.Internal(c, "failed to load totals")
		return
	}
	response.OK(c, totals)
}
