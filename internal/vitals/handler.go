package vitals

import (
	"github.com/gin-gonic/gin"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/session"
	"github.com/vitalink/telecare/pkg/response"
)

// Handler exposes the device simulator and the live feed over HTTP.
type Handler struct {
	sim   *Simulator
	feed  *Feed
	coord *session.Coordinator
}

// NewHandler creates a vitals handler.
func NewHandler(sim *Simulator, feed *Feed, coord *session.Coordinator) *Handler {
	return &Handler{sim: sim, feed: feed, coord: coord}
}

// Status handles GET /device.
func (h *Handler) Status(c *gin.Context) {
	response.OK(c, gin.H{"active_sensor": h.sim.Active()})
}

type startSensorRequest struct {
	Sensor models.SensorType `json:"sensor" binding:"required"`
}

// Start handles POST /device/start.
func (h *Handler) Start(c *gin.Context) {
	var req startSensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if !req.Sensor.Valid() {
		response.BadRequest(c, "unknown sensor type")
		return
	}
	h.sim.Start(req.Sensor)
	response.OK(c, gin.H{"active_sensor": h.sim.Active()})
}

// Stop handles POST /device/stop.
func (h *Handler) Stop(c *gin.Context) {
	h.sim.Stop()
	response.OK(c, gin.H{"active_sensor": h.sim.Active()})
}

// Latest handles GET /device/latest: the local measurement view, always
// visible regardless of sharing.
func (h *Handler) Latest(c *gin.Context) {
	sample := h.feed.Latest()
	if sample.IsZero() {
		response.NotFound(c, "no sample yet")
		return
	}
	response.OK(c, sample)
}

// SharedSample handles GET /device/shared: what the remote side may see,
// gated by sharing and call state.
func (h *Handler) SharedSample(c *gin.Context) {
	sample := h.feed.Shared(h.coord.Snapshot())
	if sample.IsZero() {
		response.OK(c, gin.H{"sharing": false})
		return
	}
	response.OK(c, sample)
}
