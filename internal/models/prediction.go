package models

import "time"

// Prediction task types
const (
	TaskNextPosition   = "next_position"
	TaskFuturePosition = "future_position"
	TaskFullDayTraj    = "full_day_traj"
)

// TaskRequest is the payload for one prediction task.
type TaskRequest struct {
	Task   string `json:"task"`
	UserID string `json:"user_id"`
	T      string `json:"t,omitempty"`    // reference time, "2006-01-02 15:04:05"
	Date   string `json:"date,omitempty"` // target date for full_day_traj, "2006-01-02"
}

// AgentVote is one sub-agent's selection for a round.
type AgentVote struct {
	SubAgent       string  `json:"sub_agent_name"`
	SelectedNodeID string  `json:"selected_node_id"`
	Confidence     float64 `json:"confidence"`
}

// RoundTrace records the votes and outcome of one aggregation round.
type RoundTrace struct {
	Round    int         `json:"round"`
	Votes    []AgentVote `json:"votes"`
	WinnerID string      `json:"winner_id"`
}

// PredictedPoint is one predicted location, with the time step it answers.
type PredictedPoint struct {
	T       time.Time `json:"t"`
	NodeID  string    `json:"node_id"`
	PlaceID string    `json:"place_id"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
}

// StepTrace holds the vote trace for one step of a full-day rollout.
type StepTrace struct {
	T      time.Time    `json:"t"`
	Rounds []RoundTrace `json:"rounds"`
}

// PredictionResult is the terminal output of the reflective aggregator.
type PredictionResult struct {
	Task    string `json:"task"`
	UserID  string `json:"user_id"`
	TraceID string `json:"trace_id"`
	Method  string `json:"aggregation_method"`

	// Predicted is set for next_position / future_position.
	Predicted *PredictedPoint `json:"predicted,omitempty"`
	// Trajectory is set for full_day_traj.
	Trajectory []PredictedPoint `json:"trajectory,omitempty"`

	Rounds []RoundTrace `json:"rounds,omitempty"` // single-position tasks
	Steps  []StepTrace  `json:"steps,omitempty"`  // full-day rollout
}
