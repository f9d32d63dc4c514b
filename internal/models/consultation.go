package models

import (
	"time"

	"github.com/google/uuid"
)

// Consultation records one call cycle between a patient and a doctor,
// bounded by channel join and leave.
type Consultation struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ChannelID       string     `json:"channel_id"`
	Role            Role       `json:"role"`
	PeerUID         *int64     `json:"peer_uid,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	Outcome         string     `json:"outcome,omitempty"` // completed, error, cancelled
	CreatedAt       time.Time  `json:"created_at"`
}
