package readings

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/pkg/response"
	"github.com/vitalink/telecare/pkg/storage"
)

// Handler exposes the reading store over HTTP.
type Handler struct {
	repo   *Repository
	store  *storage.S3
	logger *zap.Logger
}

// NewHandler creates a readings handler. store may be nil; media endpoints
// then report unavailable.
func NewHandler(repo *Repository, store *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, store: store, logger: logger}
}

// RegisterRoutes mounts the reading endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/readings", h.List)
	rg.POST("/readings", h.Create)
	rg.GET("/readings/latest", h.Latest)
	rg.GET("/readings/:id", h.Get)
	rg.DELETE("/readings/:id", h.Delete)
	rg.POST("/readings/:id/media", h.UploadMedia)
	rg.GET("/readings/:id/media", h.MediaURL)
	rg.GET("/readings/:id/media/download", h.DownloadMedia)
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

type createReadingRequest struct {
	Sensor      models.SensorType `json:"sensor" binding:"required"`
	Temperature *float64          `json:"temperature"`
	HeartRate   *int              `json:"heart_rate"`
	SpO2        *int              `json:"spo2"`
	SystolicBP  *int              `json:"systolic_bp"`
	DiastolicBP *int              `json:"diastolic_bp"`
	Notes       string            `json:"notes"`
	TakenAt     *time.Time        `json:"taken_at"`
}

// Create handles POST /readings.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	var req createReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if !req.Sensor.Valid() {
		response.BadRequest(c, "unknown sensor type")
		return
	}
	takenAt := time.Now().UTC()
	if req.TakenAt != nil {
		takenAt = req.TakenAt.UTC()
	}
	rd := &models.Reading{
		UserID:      userID,
		Sensor:      req.Sensor,
		Temperature: req.Temperature,
		HeartRate:   req.HeartRate,
		SpO2:        req.SpO2,
		SystolicBP:  req.SystolicBP,
		DiastolicBP: req.DiastolicBP,
		Notes:       req.Notes,
		TakenAt:     takenAt,
	}
	if err := h.repo.Save(c.Request.Context(), rd); err != nil {
		h.logger.Error("save reading", zap.Error(err))
		response.Internal(c, "failed to save reading")
		return
	}
	response.Created(c, rd)
}

// List handles GET /readings?sensor=&from=&to=&limit=.
func (h *Handler) List(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	f := ListFilter{Sensor: models.SensorType(c.Query("sensor"))}
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.BadRequest(c, "invalid from timestamp")
			return
		}
		f.From = t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.BadRequest(c, "invalid to timestamp")
			return
		}
		f.To = t
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		f.Limit = n
	}
	list, err := h.repo.List(c.Request.Context(), userID, f)
	if err != nil {
		h.logger.Error("list readings", zap.Error(err))
		response.Internal(c, "failed to list readings")
		return
	}
	response.OK(c, gin.H{"readings": list})
}

// Latest handles GET /readings/latest?sensor=.
func (h *Handler) Latest(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	sensor := models.SensorType(c.Query("sensor"))
	if !sensor.Valid() {
		response.BadRequest(c, "unknown sensor type")
		return
	}
	rd, err := h.repo.Latest(c.Request.Context(), userID, sensor)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "no readings for sensor")
		return
	}
	if err != nil {
		h.logger.Error("latest reading", zap.Error(err))
		response.Internal(c, "failed to load reading")
		return
	}
	response.OK(c, rd)
}

// Get handles GET /readings/:id.
func (h *Handler) Get(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reading id")
		return
	}
	rd, err := h.repo.GetByID(c.Request.Context(), userID, id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "reading not found")
		return
	}
	if err != nil {
		h.logger.Error("get reading", zap.Error(err))
		response.Internal(c, "failed to load reading")
		return
	}
	response.OK(c, rd)
}

// Delete handles DELETE /readings/:id.
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reading id")
		return
	}
	rd, err := h.repo.GetByID(c.Request.Context(), userID, id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "reading not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load reading")
		return
	}
	if rd.MediaKey != "" && h.store != nil {
		if err := h.store.DeleteObject(c.Request.Context(), rd.MediaKey); err != nil {
			h.logger.Warn("delete reading media", zap.String("key", rd.MediaKey), zap.Error(err))
		}
	}
	if err := h.repo.Delete(c.Request.Context(), userID, id); err != nil {
		response.Internal(c, "failed to delete reading")
		return
	}
	response.NoContent(c)
}

// UploadMedia handles POST /readings/:id/media (multipart file field "file")
// for otoscope snapshots and stethoscope clips.
func (h *Handler) UploadMedia(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	if h.store == nil {
		response.ServiceUnavailable(c, "media storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reading id")
		return
	}
	rd, err := h.repo.GetByID(c.Request.Context(), userID, id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "reading not found")
		return
	}
	if err != nil {
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
	contentType := fh.Header.Get("Content-Type")
	if !storage.ValidateMediaFileType(contentType, fh.Filename) {
		response.BadRequest(c, "unsupported media type")
		return
	}
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(fh.Filename)
	}

	key := storage.ClipKey(userID.String(), id.String(), fh.Filename)
	if rd.Sensor == models.SensorOtoscope {
		key = storage.SnapshotKey(userID.String(), id.String(), fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		response.Internal(c, "failed to read upload")
		return
	}
	defer f.Close()

	if _, err := h.store.Upload(c.Request.Context(), key, contentType, f, fh.Size); err != nil {
		h.logger.Error("upload reading media", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to store media")
		return
	}

	if err := h.repo.SetMediaKey(c.Request.Context(), userID, id, key); err != nil {
		h.logger.Error("attach media key", zap.Error(err))
		response.Internal(c, "failed to attach media")
		return
	}
	response.OK(c, gin.H{"media_key": key})
}

// DownloadMedia handles GET /readings/:id/media/download, streaming the
// capture through the service for clients that cannot follow presigned URLs.
func (h *Handler) DownloadMedia(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	if h.store == nil {
		response.ServiceUnavailable(c, "media storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reading id")
		return
	}
	rd, err := h.repo.GetByID(c.Request.Context(), userID, id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "reading not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load reading")
		return
	}
	if rd.MediaKey == "" {
		response.NotFound(c, "reading has no media")
		return
	}
	body, contentType, err := h.store.GetObjectStream(c.Request.Context(), rd.MediaKey)
	if err != nil {
		h.logger.Error("stream reading media", zap.String("key", rd.MediaKey), zap.Error(err))
		response.Internal(c, "failed to stream media")
		return
	}
	defer body.Close()
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(rd.MediaKey)
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

// MediaURL handles GET /readings/:id/media, returning a pre-signed download URL.
func (h *Handler) MediaURL(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	if h.store == nil {
		response.ServiceUnavailable(c, "media storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reading id")
		return
	}
	rd, err := h.repo.GetByID(c.Request.Context(), userID, id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "reading not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load reading")
		return
	}
	if rd.MediaKey == "" {
		response.NotFound(c, "reading has no media")
		return
	}
	url, err := h.store.GeneratePresignedDownloadURL(c.Request.Context(), rd.MediaKey, h.store.PresignExpire())
	if err != nil {
		h.logger.Error("presign reading media", zap.Error(err))
		response.Internal(c, "failed to presign media")
		return
	}
	response.OK(c, gin.H{"url": url})
}
