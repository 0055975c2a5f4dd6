package models

import "time"

// RetrievalQuery describes one candidate-location lookup against the
// mobility graph.
type RetrievalQuery struct {
	UserID  string    `json:"user_id"`
	T       time.Time `json:"t"`                 // reference time (batch-local)
	Purpose string    `json:"purpose,omitempty"` // optional purpose hint
	K       int       `json:"k"`                 // result count

	// FromPlace overrides the inferred most-recent location. Used by the
	// aggregator when rolling a full-day trajectory forward step by step.
	FromPlace string `json:"from_place,omitempty"`
}

// RetrievalOption is one candidate graph node proposed in answer to a
// query. Options are query-scoped and never stored.
type RetrievalOption struct {
	NodeID   string                 `json:"node_id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
