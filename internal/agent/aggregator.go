// Package agent reconciles multiple independent reasoning passes over
// retrieved candidates into one final prediction.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AoWangg/mrra/internal/llm"
	"github.com/AoWangg/mrra/internal/models"
	"github.com/AoWangg/mrra/internal/retriever"
)

// ErrNoConsensus indicates every sub-agent failed or timed out in a
// round, or the task's user has no usable history.
var ErrNoConsensus = errors.New("agent: no consensus")

const (
	timeLayout = "2006-01-02 15:04:05"
	dateLayout = "2006-01-02"
)

// Config holds the reflective aggregation parameters.
type Config struct {
	MaxRound    int
	SubAgents   []SubAgentSpec
	CallTimeout time.Duration
	OptionCount int // candidates requested per query
}

// DefaultAggregatorConfig returns the standard aggregation parameters.
func DefaultAggregatorConfig() Config {
	return Config{
		MaxRound:    2,
		SubAgents:   DefaultSubAgents(),
		CallTimeout: 30 * time.Second,
		OptionCount: retriever.DefaultK,
	}
}

// Aggregator runs up to MaxRound rounds in which every sub-agent picks
// one candidate from the retriever's options; votes combine via
// confidence-weighted voting. Rounds are strictly sequential; sub-agent
// calls within one round run concurrently.
type Aggregator struct {
	ret    *retriever.Retriever
	cfg    Config
	agents []*subAgent
}

// New creates an aggregator over a retriever and a model client.
func New(ret *retriever.Retriever, client llm.Client, cfg Config) *Aggregator {
	if cfg.MaxRound <= 0 {
		cfg.MaxRound = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.OptionCount <= 0 {
		cfg.OptionCount = retriever.DefaultK
	}
	if len(cfg.SubAgents) == 0 {
		cfg.SubAgents = DefaultSubAgents()
	}

	agents := make([]*subAgent, 0, len(cfg.SubAgents))
	for _, spec := range cfg.SubAgents {
		agents = append(agents, &subAgent{name: spec.Name, prompt: spec.Prompt, client: client})
	}
	return &Aggregator{ret: ret, cfg: cfg, agents: agents}
}

// Invoke runs one prediction task. Task failures are scoped: an error
// here never poisons the aggregator for later tasks.
func (ag *Aggregator) Invoke(ctx context.Context, req models.TaskRequest, loc *time.Location) (*models.PredictionResult, error) {
	if loc == nil {
		loc = time.UTC
	}

	result := &models.PredictionResult{
		Task:    req.Task,
		UserID:  req.UserID,
		TraceID: uuid.NewString(),
		Method:  AggregationMethod,
	}

	switch req.Task {
	case models.TaskNextPosition, models.TaskFuturePosition:
		t, err := time.ParseInLocation(timeLayout, req.T, loc)
		if err != nil {
			return nil, fmt.Errorf("agent: invalid reference time %q: %w", req.T, err)
		}
		point, rounds, err := ag.predictOne(ctx, req.Task, req.UserID, t, "")
		if err != nil {
			return nil, err
		}
		result.Predicted = &point
		result.Rounds = rounds
		return result, nil

	case models.TaskFullDayTraj:
		day, err := time.ParseInLocation(dateLayout, req.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("agent: invalid target date %q: %w", req.Date, err)
		}
		return ag.predictFullDay(ctx, result, req.UserID, day)

	default:
		return nil, fmt.Errorf("agent: unknown task %q", req.Task)
	}
}

// predictFullDay iterates the single-step prediction across the day's
// hourly time steps, seeding each step with the previous winner.
func (ag *Aggregator) predictFullDay(ctx context.Context, result *models.PredictionResult, userID string, day time.Time) (*models.PredictionResult, error) {
	fromPlace := ""
	for hour := 0; hour < 24; hour++ {
		t := day.Add(time.Duration(hour) * time.Hour)
		point, rounds, err := ag.predictOne(ctx, models.TaskFullDayTraj, userID, t, fromPlace)
		if err != nil {
			return nil, fmt.Errorf("step %02d:00: %w", hour, err)
		}
		result.Trajectory = append(result.Trajectory, point)
		result.Steps = append(result.Steps, models.StepTrace{T: t, Rounds: rounds})
		fromPlace = point.PlaceID
	}
	return result, nil
}

// predictOne runs the multi-round consensus for a single time step.
func (ag *Aggregator) predictOne(ctx context.Context, task, userID string, t time.Time, fromPlace string) (models.PredictedPoint, []models.RoundTrace, error) {
	options, err := ag.ret.Retrieve(models.RetrievalQuery{
		UserID:    userID,
		T:         t,
		K:         ag.cfg.OptionCount,
		FromPlace: fromPlace,
	})
	if err != nil {
		if errors.Is(err, retriever.ErrNoCandidates) {
			return models.PredictedPoint{}, nil, fmt.Errorf("%w: %v", ErrNoConsensus, err)
		}
		return models.PredictedPoint{}, nil, err
	}

	taskDesc := fmt.Sprintf("%s for user %s at %s", task, userID, t.Format(timeLayout))

	var rounds []models.RoundTrace
	winnerID := ""
	reflection := ""
	for round := 1; round <= ag.cfg.MaxRound; round++ {
		votes := ag.collectVotes(ctx, taskDesc, options, reflection)
		if len(votes) == 0 {
			return models.PredictedPoint{}, rounds, fmt.Errorf("%w: zero valid votes in round %d", ErrNoConsensus, round)
		}

		var unanimous bool
		winnerID, unanimous = weightedWinner(votes, options)
		rounds = append(rounds, models.RoundTrace{Round: round, Votes: votes, WinnerID: winnerID})

		if unanimous {
			break
		}
		reflection = winnerID
	}

	return ag.pointFor(options, winnerID, t), rounds, nil
}

// collectVotes fans the round out to every sub-agent concurrently. A
// failed or malformed response drops that agent's vote for the round
// but never aborts the round itself.
func (ag *Aggregator) collectVotes(ctx context.Context, taskDesc string, options []models.RetrievalOption, reflection string) []models.AgentVote {
	var mu sync.Mutex
	var votes []models.AgentVote

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range ag.agents {
		a := a
		g.Go(func() error {
			vote, err := a.callWithTimeout(gctx, ag.cfg.CallTimeout, taskDesc, options, reflection)
			if err != nil {
				log.Printf("[ReflectiveAggregator] Dropped vote: %v", err)
				return nil
			}
			mu.Lock()
			votes = append(votes, vote)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Stable order for traces regardless of completion order.
	ordered := make([]models.AgentVote, 0, len(votes))
	for _, a := range ag.agents {
		for _, v := range votes {
			if v.SubAgent == a.name {
				ordered = append(ordered, v)
			}
		}
	}
	return ordered
}

func (ag *Aggregator) pointFor(options []models.RetrievalOption, nodeID string, t time.Time) models.PredictedPoint {
	point := models.PredictedPoint{
		T:       t,
		NodeID:  nodeID,
		PlaceID: strings.TrimPrefix(nodeID, "loc:"),
	}
	for _, opt := range options {
		if opt.NodeID != nodeID {
			continue
		}
		if v, ok := opt.Metadata["place_id"].(string); ok {
			point.PlaceID = v
		}
		if v, ok := opt.Metadata["lat"].(float64); ok {
			point.Lat = v
		}
		if v, ok := opt.Metadata["lon"].(float64); ok {
			point.Lon = v
		}
		break
	}
	return point
}
