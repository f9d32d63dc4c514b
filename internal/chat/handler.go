package chat

import (
	"github.com/gin-gonic/gin"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/pkg/response"
)

// Handler exposes the consultation transcript over HTTP.
type Handler struct {
	coord *Coordinator
	role  func() models.Role
}

// NewHandler creates a chat handler. role returns the active consultation
// role so outgoing messages can be addressed to the counterpart.
func NewHandler(coord *Coordinator, role func() models.Role) *Handler {
	return &Handler{coord: coord, role: role}
}

// RegisterRoutes mounts the chat endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/chat/messages", h.History)
	rg.POST("/chat/messages", h.Send)
	rg.DELETE("/chat/messages", h.Clear)
}

// History handles GET /chat/messages.
func (h *Handler) History(c *gin.Context) {
	response.OK(c, gin.H{"messages": h.coord.History()})
}

type sendRequest struct {
	Content string `json:"content" binding:"required"`
}

// Send handles POST /chat/messages. Delivery is fire and forget; the
// response confirms acceptance, not receipt.
func (h *Handler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	h.coord.SendMessage(h.role(), req.Content)
	response.OK(c, gin.H{"accepted": true})
}

// Clear handles DELETE /chat/messages.
func (h *Handler) Clear(c *gin.Context) {
	h.coord.ClearHistory()
	response.NoContent(c)
}
