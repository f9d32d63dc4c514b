package sync

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/readings"
	"github.com/vitalink/telecare/pkg/queue"
	"github.com/vitalink/telecare/pkg/response"
	"github.com/vitalink/telecare/pkg/storage"
)

// Handler exposes "sync now" and the backlog count.
type Handler struct {
	repo   *readings.Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewHandler creates a sync handler.
func NewHandler(repo *readings.Repository, q *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, queue: q, logger: logger}
}

// RegisterRoutes mounts the sync endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync", h.SyncNow)
	rg.POST("/sync/media", h.StageMedia)
	rg.GET("/sync/status", h.Status)
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

// SyncNow handles POST /sync: enqueue a full backlog sync for the worker.
func (h *Handler) SyncNow(c *gin.Context) {
	err := h.queue.EnqueueReadingSync(c.Request.Context(), queue.ReadingSyncPayload{
		Requested: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("enqueue sync", zap.Error(err))
		response.ServiceUnavailable(c, "sync queue unavailable")
		return
	}
	response.OK(c, gin.H{"queued": true})
}

// StageMedia handles POST /sync/media (multipart "file" + "reading_id"):
// the capture is staged on local disk and uploaded by the worker, so the
// UI never waits on S3.
func (h *Handler) StageMedia(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	readingID, err := uuid.Parse(c.PostForm("reading_id"))
	if err != nil {
		response.BadRequest(c, "invalid reading id")
		return
	}
	rd, err := h.repo.GetByID(c.Request.Context(), userID, readingID)
	if errors.Is(err, readings.ErrNotFound) {
		response.NotFound(c, "reading not found")
		return
	}
	if err != nil {
		h.logger.Error("load reading", zap.Error(err))
		response.Internal(c, "failed to load reading")
		return
	}
	if rd.Sensor != models.SensorOtoscope && rd.Sensor != models.SensorStethoscope {
		response.BadRequest(c, "sensor does not produce media")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file field required")
		return
	}
	if fh.Size > storage.MaxMediaFileSize {
		response.BadRequest(c, "file too large")
		return
	}
	if !storage.ValidateMediaFileType(fh.Header.Get("Content-Type"), fh.Filename) {
		response.BadRequest(c, "unsupported media type")
		return
	}

	stagingDir := filepath.Join(os.TempDir(), "telecare-media")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		h.logger.Error("create staging dir", zap.Error(err))
		response.Internal(c, "failed to stage capture")
		return
	}
	localPath := filepath.Join(stagingDir, readingID.String()+"_"+filepath.Base(fh.Filename))
	if err := c.SaveUploadedFile(fh, localPath); err != nil {
		h.logger.Error("stage capture", zap.Error(err))
		response.Internal(c, "failed to stage capture")
		return
	}

	err = h.queue.EnqueueMediaUpload(c.Request.Context(), queue.MediaUploadPayload{
		ReadingID: readingID,
		UserID:    userID,
		LocalPath: localPath,
		Filename:  fh.Filename,
	})
	if err != nil {
		h.logger.Error("enqueue media upload", zap.Error(err))
		response.ServiceUnavailable(c, "sync queue unavailable")
		return
	}
	response.OK(c, gin.H{"queued": true})
}

// Status handles GET /sync/status.
func (h *Handler) Status(c *gin.Context) {
	pending, err := h.repo.CountUnsynced(c.Request.Context())
	if err != nil {
		h.logger.Error("count unsynced", zap.Error(err))
		response.Internal(c, "failed to count backlog")
		return
	}
	response.OK(c, gin.H{"pending": pending})
}
