package models

import "time"

// Activity represents a contiguous dwell episode at one place,
// derived from clustering a user's raw location pings.
type Activity struct {
	UserID       string    `json:"user_id"`
	PlaceID      string    `json:"place_id"`
	ActivityType string    `json:"activity_type"`
	Start        time.Time `json:"start"` // batch-local time
	End          time.Time `json:"end"`
	DurationMin  float64   `json:"duration_min"`
	Purpose      string    `json:"purpose,omitempty"` // empty until assigned

	// Spatial info (cluster centroid)
	CenterLat  float64 `json:"center_lat"`
	CenterLon  float64 `json:"center_lon"`
	PointCount int     `json:"point_count,omitempty"`
}

// ActivityType constants
const (
	ActivityTypeStay = "stay"
)

// Purpose labels form a closed set; heuristic and model-refined
// assignment both resolve to one of these.
const (
	PurposeDining    = "dining"
	PurposeWork      = "work"
	PurposeResidence = "residence"
	PurposeErrand    = "errand"
	PurposeOther     = "other"
)

// AllPurposes lists every valid purpose label.
var AllPurposes = []string{
	PurposeDining,
	PurposeWork,
	PurposeResidence,
	PurposeErrand,
	PurposeOther,
}

// ValidPurpose reports whether label is a member of the closed purpose set.
func ValidPurpose(label string) bool {
	for _, p := range AllPurposes {
		if p == label {
			return true
		}
	}
	return false
}
