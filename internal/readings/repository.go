package readings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalink/telecare/internal/models"
)

// ErrNotFound is returned when no reading matches the given id.
var ErrNotFound = errors.New("reading not found")

// ListFilter narrows List results. Zero fields are ignored.
type ListFilter struct {
	Sensor models.SensorType
	From   time.Time
	To     time.Time
	Limit  int
}

// Repository handles the readings table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a readings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const readingColumns = `id, user_id, sensor, temperature, heart_rate, spo2,
	systolic_bp, diastolic_bp, media_key, notes, taken_at, synced, created_at`

func scanReading(row pgx.Row) (*models.Reading, error) {
	var rd models.Reading
	err := row.Scan(&rd.ID, &rd.UserID, &rd.Sensor, &rd.Temperature, &rd.HeartRate,
		&rd.SpO2, &rd.SystolicBP, &rd.DiastolicBP, &rd.MediaKey, &rd.Notes,
		&rd.TakenAt, &rd.Synced, &rd.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

// Save inserts a reading, assigning ID and CreatedAt when unset.
func (r *Repository) Save(ctx context.Context, rd *models.Reading) error {
	if rd.ID == uuid.Nil {
		rd.ID = uuid.New()
	}
	if rd.CreatedAt.IsZero() {
		rd.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO readings (`+readingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rd.ID, rd.UserID, rd.Sensor, rd.Temperature, rd.HeartRate, rd.SpO2,
		rd.SystolicBP, rd.DiastolicBP, rd.MediaKey, rd.Notes, rd.TakenAt,
		rd.Synced, rd.CreatedAt)
	return err
}

// GetByID fetches one reading for user.
func (r *Repository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Reading, error) {
	rd, err := scanReading(r.pool.QueryRow(ctx,
		`SELECT `+readingColumns+` FROM readings WHERE id = $1 AND user_id = $2`,
		id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rd, err
}

// Latest returns the newest reading for a sensor, or ErrNotFound.
func (r *Repository) Latest(ctx context.Context, userID uuid.UUID, sensor models.SensorType) (*models.Reading, error) {
	rd, err := scanReading(r.pool.QueryRow(ctx,
		`SELECT `+readingColumns+` FROM readings
		 WHERE user_id = $1 AND sensor = $2 ORDER BY taken_at DESC LIMIT 1`,
		userID, sensor))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rd, err
}

// List returns readings newest first, applying the filter.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, f ListFilter) ([]models.Reading, error) {
	q := `SELECT ` + readingColumns + ` FROM readings WHERE user_id = $1`
	args := []interface{}{userID}
	if f.Sensor != "" && f.Sensor != models.SensorNone {
		args = append(args, f.Sensor)
		q += ` AND sensor = $` + itoa(len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		q += ` AND taken_at >= $` + itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		q += ` AND taken_at <= $` + itoa(len(args))
	}
	q += ` ORDER BY taken_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += ` LIMIT $` + itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rd)
	}
	return list, rows.Err()
}

// Delete removes a reading owned by user.
func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM readings WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMediaKey attaches an uploaded media object to a reading and re-marks it
// for sync so the cloud copy picks the media up.
func (r *Repository) SetMediaKey(ctx context.Context, userID, id uuid.UUID, key string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE readings SET media_key = $1, synced = FALSE WHERE id = $2 AND user_id = $3`,
		key, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnsynced returns readings not yet pushed to the cloud, oldest first so
// the sync worker uploads in capture order.
func (r *Repository) ListUnsynced(ctx context.Context, limit int) ([]models.Reading, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+readingColumns+` FROM readings
		 WHERE synced = FALSE ORDER BY taken_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rd)
	}
	return list, rows.Err()
}

// MarkSynced flags the given readings as uploaded.
func (r *Repository) MarkSynced(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE readings SET synced = TRUE WHERE id = ANY($1)`, ids)
	return err
}

// CountUnsynced reports the sync backlog size.
func (r *Repository) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM readings WHERE synced = FALSE`).Scan(&n)
	return n, err
}

func itoa(n int) string { return strconv.Itoa(n) }
