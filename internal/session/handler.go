package session

import (
	"github.com/gin-gonic/gin"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/pkg/response"
)

// Handler exposes the call lifecycle over HTTP for the app UI.
type Handler struct {
	coord *Coordinator
}

// NewHandler creates a session handler.
func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

// RegisterRoutes mounts the call endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/call", h.State)
	rg.POST("/call/prepare", h.Prepare)
	rg.POST("/call/start", h.Start)
	rg.POST("/call/retry", h.Retry)
	rg.POST("/call/cancel", h.Cancel)
	rg.POST("/call/end", h.End)
	rg.POST("/call/reset", h.ResetCall)
	rg.POST("/call/audio/toggle", h.ToggleAudio)
	rg.POST("/call/video/toggle", h.ToggleVideo)
	rg.POST("/call/camera/switch", h.SwitchCamera)
	rg.POST("/call/vitals/toggle", h.ToggleVitals)
	rg.PUT("/call/role", h.SetRole)
}

// State handles GET /call.
func (h *Handler) State(c *gin.Context) {
	response.OK(c, h.coord.Snapshot())
}

// Prepare handles POST /call/prepare.
func (h *Handler) Prepare(c *gin.Context) {
	h.coord.PrepareCall()
	response.OK(c, h.coord.Snapshot())
}

// Start handles POST /call/start.
func (h *Handler) Start(c *gin.Context) {
	h.coord.StartConsultation(c.Request.Context())
	snap := h.coord.Snapshot()
	if snap.State.Kind == StateNotConfigured {
		response.ServiceUnavailable(c, "call provider not configured")
		return
	}
	response.OK(c, snap)
}

// Retry handles POST /call/retry.
func (h *Handler) Retry(c *gin.Context) {
	h.coord.Retry(c.Request.Context())
	response.OK(c, h.coord.Snapshot())
}

// Cancel handles POST /call/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	h.coord.Cancel()
	response.OK(c, h.coord.Snapshot())
}

// End handles POST /call/end.
func (h *Handler) End(c *gin.Context) {
	h.coord.EndCall()
	response.OK(c, h.coord.Snapshot())
}

// ResetCall handles POST /call/reset.
func (h *Handler) ResetCall(c *gin.Context) {
	h.coord.Reset()
	response.OK(c, h.coord.Snapshot())
}

// ToggleAudio handles POST /call/audio/toggle.
func (h *Handler) ToggleAudio(c *gin.Context) {
	h.coord.ToggleAudio()
	response.OK(c, h.coord.Snapshot())
}

// ToggleVideo handles POST /call/video/toggle.
func (h *Handler) ToggleVideo(c *gin.Context) {
	h.coord.ToggleVideo()
	response.OK(c, h.coord.Snapshot())
}

// SwitchCamera handles POST /call/camera/switch.
func (h *Handler) SwitchCamera(c *gin.Context) {
	h.coord.SwitchCamera()
	response.OK(c, h.coord.Snapshot())
}

// ToggleVitals handles POST /call/vitals/toggle.
func (h *Handler) ToggleVitals(c *gin.Context) {
	h.coord.ToggleVitalsSharing()
	response.OK(c, h.coord.Snapshot())
}

type setRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// SetRole handles PUT /call/role.
func (h *Handler) SetRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if !req.Role.Valid() || req.Role == models.RoleAdmin {
		response.BadRequest(c, "role must be patient or doctor")
		return
	}
	h.coord.SetRole(req.Role)
	response.OK(c, gin.H{"role": h.coord.Role()})
}
