package models

import "time"

// Room is the activity record kept for a room by the room index.
// Rooms themselves are implicit and created on first use.
type Room struct {
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int64     `json:"message_count"`
}
