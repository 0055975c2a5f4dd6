package models

import "time"

// LocationPing represents one normalized GPS observation for a user.
// Pings are immutable once ingested into a trajectory batch.
type LocationPing struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`            // UTC
	LocalTime time.Time `json:"local_time,omitempty"` // derived, batch timezone
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}
