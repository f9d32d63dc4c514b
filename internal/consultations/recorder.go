package consultations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
)

const recordTimeout = 5 * time.Second

// Recorder persists call-cycle boundaries from the session loop. The hooks
// run the database writes on their own goroutines so the loop never blocks
// on the pool.
type Recorder struct {
	repo   *Repository
	userID uuid.UUID
	logger *zap.Logger
}

// NewRecorder binds the repository to the local user.
func NewRecorder(repo *Repository, userID uuid.UUID, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, userID: userID, logger: logger}
}

// CallStarted logs the entry into a call cycle.
func (r *Recorder) CallStarted(channelID string, role models.Role) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if _, err := r.repo.LogStart(ctx, r.userID, channelID, role); err != nil {
			r.logger.Warn("log consultation start", zap.String("channel", channelID), zap.Error(err))
		}
	}()
}

// CallEnded closes the open consultation for the channel.
func (r *Recorder) CallEnded(channelID string, durationSeconds int, peerUID *int64, outcome string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.repo.LogEnd(ctx, r.userID, channelID, durationSeconds, peerUID, outcome); err != nil {
			r.logger.Warn("log consultation end", zap.String("channel", channelID), zap.Error(err))
		}
	}()
}
