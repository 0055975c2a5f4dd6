package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AoWangg/mrra/internal/agent"
	"github.com/AoWangg/mrra/internal/models"
	"github.com/AoWangg/mrra/internal/retriever"
	"github.com/AoWangg/mrra/internal/service"
	"github.com/AoWangg/mrra/internal/trajectory"
	"github.com/AoWangg/mrra/pkg/response"
)

// PredictionHandler exposes the mobility pipeline over HTTP.
type PredictionHandler struct {
	service *service.PredictionService
	loc     *time.Location
}

// NewPredictionHandler creates a new prediction handler.
func NewPredictionHandler(svc *service.PredictionService, loc *time.Location) *PredictionHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &PredictionHandler{service: svc, loc: loc}
}

// ingestRequest is the POST /trajectories payload.
type ingestRequest struct {
	Pings []pingDTO `json:"pings" binding:"required"`
}

type pingDTO struct {
	UserID    string  `json:"user_id" binding:"required"`
	Timestamp string  `json:"timestamp" binding:"required"` // RFC3339 or "2006-01-02 15:04:05"
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IngestTrajectories handles POST /api/v1/trajectories
func (h *PredictionHandler) IngestTrajectories(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	pings := make([]models.LocationPing, 0, len(req.Pings))
	for _, p := range req.Pings {
		ts, err := parseTimestamp(p.Timestamp, h.loc)
		if err != nil {
			// Unparseable timestamps are dropped at ingestion, not fatal.
			continue
		}
		pings = append(pings, models.LocationPing{
			UserID:    p.UserID,
			Timestamp: ts,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		})
	}

	summary, err := h.service.Ingest(c.Request.Context(), pings)
	if err != nil {
		if errors.Is(err, trajectory.ErrNoData) {
			response.BadRequest(c, "No valid pings in request")
			return
		}
		response.InternalError(c, "Failed to ingest trajectories: "+err.Error())
		return
	}
	response.Success(c, summary)
}

// GetActivities handles GET /api/v1/activities/:user
func (h *PredictionHandler) GetActivities(c *gin.Context) {
	acts, err := h.service.ActivitiesForUser(c.Param("user"))
	if err != nil {
		h.pipelineError(c, err)
		return
	}
	response.Success(c, gin.H{"data": acts, "total": len(acts)})
}

// GetGraphSummary handles GET /api/v1/graph/summary
func (h *PredictionHandler) GetGraphSummary(c *gin.Context) {
	summary, err := h.service.Summary()
	if err != nil {
		h.pipelineError(c, err)
		return
	}
	response.Success(c, summary)
}

// retrieveRequest is the POST /retrieve payload.
type retrieveRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	T       string `json:"t" binding:"required"` // "2006-01-02 15:04:05"
	Purpose string `json:"purpose"`
	K       int    `json:"k"`
}

// Retrieve handles POST /api/v1/retrieve
func (h *PredictionHandler) Retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	t, err := parseTimestamp(req.T, h.loc)
	if err != nil {
		response.BadRequest(c, "Invalid reference time: "+err.Error())
		return
	}

	options, err := h.service.Retrieve(models.RetrievalQuery{
		UserID:  req.UserID,
		T:       t.In(h.loc),
		Purpose: req.Purpose,
		K:       req.K,
	})
	if err != nil {
		h.pipelineError(c, err)
		return
	}
	response.Success(c, gin.H{"options": options})
}

// Predict handles POST /api/v1/predict
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req models.TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.Predict(c.Request.Context(), req)
	if err != nil {
		h.pipelineError(c, err)
		return
	}
	response.Success(c, result)
}

// GetPatterns handles GET /api/v1/patterns/:user
func (h *PredictionHandler) GetPatterns(c *gin.Context) {
	patterns, err := h.service.Patterns(c.Param("user"))
	if err != nil {
		h.pipelineError(c, err)
		return
	}
	response.Success(c, patterns)
}

// pipelineError maps typed pipeline errors to HTTP statuses. Cold-start
// conditions are client-visible states, not server faults.
func (h *PredictionHandler) pipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotReady):
		response.Error(c, http.StatusConflict, "No trajectory dataset ingested yet")
	case errors.Is(err, trajectory.ErrUnknownUser):
		response.NotFound(c, err.Error())
	case errors.Is(err, retriever.ErrNoCandidates):
		response.Error(c, http.StatusUnprocessableEntity, "Insufficient history: "+err.Error())
	case errors.Is(err, agent.ErrNoConsensus):
		response.Error(c, http.StatusUnprocessableEntity, "No consensus: "+err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", s, loc)
}
