package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/readings"
	"github.com/vitalink/telecare/pkg/cloud"
	"github.com/vitalink/telecare/pkg/queue"
	"github.com/vitalink/telecare/pkg/storage"
)

// syncBatchSize bounds one cloud POST; larger backlogs take multiple passes.
const syncBatchSize = 100

// Processor drains the job queue: reading sync jobs batch unsynced rows to
// the cloud API, media upload jobs move staged captures to S3.
type Processor struct {
	repo   *readings.Repository
	cloud  *cloud.Client
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewProcessor creates a sync processor. s3 may be nil when media storage is
// not configured; media jobs then fail and retry into the DLQ.
func NewProcessor(repo *readings.Repository, cloudClient *cloud.Client, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{repo: repo, cloud: cloudClient, s3: s3, queue: q, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeReadingSync:
		var payload queue.ReadingSyncPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.syncReadings(ctx)
	case queue.JobTypeMediaUpload:
		var payload queue.MediaUploadPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.uploadMedia(ctx, payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// syncReadings drains the unsynced backlog in batches. Each batch is pushed
// then marked; a failure leaves the remainder for the retry.
func (p *Processor) syncReadings(ctx context.Context) error {
	total := 0
	for {
		batch, err := p.repo.ListUnsynced(ctx, syncBatchSize)
		if err != nil {
			return fmt.Errorf("list unsynced: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		if err := p.cloud.PushReadings(ctx, batch); err != nil {
			return fmt.Errorf("push batch: %w", err)
		}
		ids := make([]uuid.UUID, 0, len(batch))
		for _, rd := range batch {
			ids = append(ids, rd.ID)
		}
		if err := p.repo.MarkSynced(ctx, ids); err != nil {
			// the cloud holds the batch; a duplicate push on retry is
			// idempotent on the reading id
			return fmt.Errorf("mark synced: %w", err)
		}
		total += len(batch)
		if len(batch) < syncBatchSize {
			break
		}
	}
	if total > 0 {
		p.logger.Info("readings synced", zap.Int("count", total))
	}
	return nil
}

// uploadMedia moves one staged capture to S3 and attaches it to its reading.
func (p *Processor) uploadMedia(ctx context.Context, payload queue.MediaUploadPayload) error {
	if p.s3 == nil {
		return fmt.Errorf("media storage not configured")
	}
	rd, err := p.repo.GetByID(ctx, payload.UserID, payload.ReadingID)
	if err != nil {
		return fmt.Errorf("reading not found: %s", payload.ReadingID)
	}
	if rd.MediaKey != "" {
		p.logger.Info("media already uploaded", zap.String("reading_id", rd.ID.String()))
		return nil
	}

	f, err := os.Open(payload.LocalPath)
	if err != nil {
		return fmt.Errorf("open staged capture: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat staged capture: %w", err)
	}

	contentType := storage.ContentTypeForFilename(payload.Filename)
	key := storage.ClipKey(payload.UserID.String(), payload.ReadingID.String(), payload.Filename)
	if rd.Sensor == models.SensorOtoscope {
		key = storage.SnapshotKey(payload.UserID.String(), payload.ReadingID.String(), payload.Filename)
	}

	if _, err := p.s3.Upload(ctx, key, contentType, f, info.Size()); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.repo.SetMediaKey(ctx, payload.UserID, payload.ReadingID, key); err != nil {
		return fmt.Errorf("attach media key: %w", err)
	}
	if err := os.Remove(payload.LocalPath); err != nil {
		p.logger.Warn("remove staged capture", zap.String("path", payload.LocalPath), zap.Error(err))
	}
	p.logger.Info("media upload completed", zap.String("reading_id", payload.ReadingID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sync worker stopping")
			return
		default:
		}

		job, queueKey, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, queueKey, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
