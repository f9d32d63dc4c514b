package consultations

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalink/telecare/internal/models"
)

// Repository handles the consultations table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a consultations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogStart inserts an open consultation row and returns its id.
func (r *Repository) LogStart(ctx context.Context, userID uuid.UUID, channelID string, role models.Role) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO consultations (id, user_id, channel_id, role, started_at, created_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		id, userID, channelID, role)
	return id, err
}

// LogEnd closes the most recent open consultation for the channel.
func (r *Repository) LogEnd(ctx context.Context, userID uuid.UUID, channelID string, durationSeconds int, peerUID *int64, outcome string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE consultations c
		 SET ended_at = NOW(), duration_seconds = $3, peer_uid = $4, outcome = $5
		 FROM (SELECT id FROM consultations
		       WHERE user_id = $1 AND channel_id = $2 AND ended_at IS NULL
		       ORDER BY started_at DESC LIMIT 1) AS open
		 WHERE c.id = open.id`,
		userID, channelID, durationSeconds, peerUID, outcome)
	return err
}

// List returns a user's consultations, newest first.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Consultation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, channel_id, role, peer_uid, started_at, ended_at,
		        duration_seconds, COALESCE(outcome, ''), created_at
		 FROM consultations WHERE user_id = $1
		 ORDER BY started_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Consultation
	for rows.Next() {
		var cons models.Consultation
		if err := rows.Scan(&cons.ID, &cons.UserID, &cons.ChannelID, &cons.Role,
			&cons.PeerUID, &cons.StartedAt, &cons.EndedAt, &cons.DurationSeconds,
			&cons.Outcome, &cons.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, cons)
	}
	return list, rows.Err()
}

// TotalsRow aggregates a user's call history for the stats card.
type TotalsRow struct {
	Calls        int   `json:"calls"`
	TotalSeconds int64 `json:"total_seconds"`
}

// Totals returns completed-call counts and summed duration.
func (r *Repository) Totals(ctx context.Context, userID uuid.UUID) (*TotalsRow, error) {
	var t TotalsRow
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(duration_seconds), 0)
		 FROM consultations WHERE user_id = $1 AND ended_at IS NOT NULL`,
		userID).Scan(&t.Calls, &t.TotalSeconds)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
