package models

import "time"

// ChatMessage is one text message exchanged during a consultation.
type ChatMessage struct {
	ID       string    `json:"id"`
	SenderID string    `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
	Self     bool      `json:"self"`
}
