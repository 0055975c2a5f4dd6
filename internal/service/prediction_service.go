package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/AoWangg/mrra/internal/activity"
	"github.com/AoWangg/mrra/internal/agent"
	"github.com/AoWangg/mrra/internal/cache"
	"github.com/AoWangg/mrra/internal/graph"
	"github.com/AoWangg/mrra/internal/llm"
	"github.com/AoWangg/mrra/internal/models"
	"github.com/AoWangg/mrra/internal/pattern"
	"github.com/AoWangg/mrra/internal/retriever"
	"github.com/AoWangg/mrra/internal/trajectory"
)

// ErrNotReady indicates no trajectory dataset has been ingested yet.
var ErrNotReady = errors.New("service: no trajectory ingested")

// Options configures the prediction pipeline.
type Options struct {
	ExtractorConfig   activity.ExtractorConfig
	GraphConfig       graph.Config
	AggregatorConfig  agent.Config
	AssignConcurrency int
	Location          *time.Location
}

// DefaultOptions returns the standard pipeline parameters.
func DefaultOptions() Options {
	return Options{
		ExtractorConfig:   activity.DefaultExtractorConfig(),
		GraphConfig:       graph.DefaultConfig(),
		AggregatorConfig:  agent.DefaultAggregatorConfig(),
		AssignConcurrency: activity.DefaultAssignConcurrency,
		Location:          time.UTC,
	}
}

// IngestSummary reports what one ingested dataset produced.
type IngestSummary struct {
	TrajectoryHash   string `json:"trajectory_hash"`
	Users            int    `json:"users"`
	Pings            int    `json:"pings"`
	Activities       int    `json:"activities"`
	GraphNodes       int    `json:"graph_nodes"`
	GraphEdges       int    `json:"graph_edges"`
	ActivityCacheHit bool   `json:"activity_cache_hit"`
	GraphCacheHit    bool   `json:"graph_cache_hit"`
}

// PredictionService orchestrates the pipeline: trajectory batch →
// activities → purposes → mobility graph, with the artifact cache
// wrapping the expensive stages. Built values are immutable; a cache
// hit substitutes for a fresh build as a pure selection.
type PredictionService struct {
	store  *cache.Store
	client llm.Client // nil disables model refinement and prediction
	opts   Options

	mu    sync.RWMutex
	batch *trajectory.Batch
	acts  []models.Activity
	g     *graph.MobilityGraph
	ret   *retriever.Retriever
	agg   *agent.Aggregator

	actsFingerprint string
}

// NewPredictionService creates the service. client may be nil, which
// disables model-refined purposes and agent-based prediction.
func NewPredictionService(store *cache.Store, client llm.Client, opts Options) *PredictionService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &PredictionService{store: store, client: client, opts: opts}
}

// Ingest runs the full pipeline over a new dataset, replacing any
// previously ingested one.
func (s *PredictionService) Ingest(ctx context.Context, pings []models.LocationPing) (*IngestSummary, error) {
	batch, err := trajectory.Ingest(pings, s.opts.Location)
	if err != nil {
		return nil, err
	}
	hash := batch.ContentHash()

	actsFP := s.activitiesFingerprint()
	acts, actsHit, err := s.store.LoadActivities(hash, actsFP)
	if err != nil {
		return nil, err
	}
	if !actsHit {
		extracted := activity.NewExtractor(s.opts.ExtractorConfig).Extract(batch)
		acts = activity.NewPurposeAssigner(s.client, s.opts.AssignConcurrency).Assign(ctx, extracted)
		if err := s.store.SaveActivities(hash, actsFP, acts); err != nil {
			return nil, err
		}
	}

	graphFP := s.graphFingerprint(actsFP)
	g, graphHit, err := s.store.LoadGraph(hash, graphFP)
	if err != nil {
		return nil, err
	}
	if !graphHit {
		g = graph.NewBuilder(s.opts.GraphConfig).Build(acts)
		if err := s.store.SaveGraph(hash, graphFP, g); err != nil {
			return nil, err
		}
	}

	ret := retriever.New(g, acts)

	s.mu.Lock()
	s.batch = batch
	s.acts = acts
	s.g = g
	s.ret = ret
	s.actsFingerprint = actsFP
	if s.client != nil {
		s.agg = agent.New(ret, s.client, s.opts.AggregatorConfig)
	}
	s.mu.Unlock()

	log.Printf("[PredictionService] Ingested %d pings, %d users (activities hit=%v, graph hit=%v)",
		batch.PingCount(), len(batch.Users()), actsHit, graphHit)

	return &IngestSummary{
		TrajectoryHash:   hash,
		Users:            len(batch.Users()),
		Pings:            batch.PingCount(),
		Activities:       len(acts),
		GraphNodes:       g.NodeCount(),
		GraphEdges:       g.EdgeCount(),
		ActivityCacheHit: actsHit,
		GraphCacheHit:    graphHit,
	}, nil
}

func (s *PredictionService) activitiesFingerprint() string {
	cfg := s.opts.ExtractorConfig
	return cache.NewFingerprint().
		Add("method", "radius").
		Add("radius_m", cfg.RadiusM).
		Add("min_dwell_minutes", cfg.MinDwellMinutes).
		Add("max_gap_minutes", cfg.MaxGapMinutes).
		Add("grid_size_m", cfg.GridSizeM).
		Add("llm", s.client != nil).
		Digest()
}

func (s *PredictionService) graphFingerprint(actsFP string) string {
	cfg := s.opts.GraphConfig
	return cache.NewFingerprint().
		Add("grid_size_m", cfg.GridSizeM).
		Add("min_dwell_minutes", cfg.MinDwellMinutes).
		Add("top_k", cfg.TopK).
		Add("activities", actsFP).
		Digest()
}

// Users returns the ingested dataset's user ids.
func (s *PredictionService) Users() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.batch == nil {
		return nil, ErrNotReady
	}
	return s.batch.Users(), nil
}

// ActivitiesForUser returns one user's purpose-assigned activities.
func (s *PredictionService) ActivitiesForUser(userID string) ([]models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.batch == nil {
		return nil, ErrNotReady
	}
	if _, err := s.batch.ForUser(userID); err != nil {
		return nil, err
	}
	var out []models.Activity
	for _, a := range s.acts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// GraphSummary describes the built graph for report layers.
type GraphSummary struct {
	Nodes     int            `json:"nodes"`
	Edges     int            `json:"edges"`
	NodeKinds map[string]int `json:"node_kinds"`
	Locations []graph.Node   `json:"locations"`
}

// Summary returns graph statistics plus the location nodes with their
// precomputed top successors.
func (s *PredictionService) Summary() (*GraphSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.g == nil {
		return nil, ErrNotReady
	}

	kinds := make(map[string]int)
	for _, k := range []graph.NodeKind{graph.NodeLoc, graph.NodeUser, graph.NodePurpose} {
		kinds[string(k)] = len(s.g.NodesOfKind(k))
	}
	return &GraphSummary{
		Nodes:     s.g.NodeCount(),
		Edges:     s.g.EdgeCount(),
		NodeKinds: kinds,
		Locations: s.g.NodesOfKind(graph.NodeLoc),
	}, nil
}

// Retrieve answers one candidate-location query.
func (s *PredictionService) Retrieve(q models.RetrievalQuery) ([]models.RetrievalOption, error) {
	s.mu.RLock()
	ret := s.ret
	s.mu.RUnlock()
	if ret == nil {
		return nil, ErrNotReady
	}
	return ret.Retrieve(q)
}

// Predict runs one aggregation task. Requires a configured model client.
func (s *PredictionService) Predict(ctx context.Context, req models.TaskRequest) (*models.PredictionResult, error) {
	s.mu.RLock()
	agg := s.agg
	loc := s.opts.Location
	s.mu.RUnlock()
	if agg == nil {
		if s.client == nil {
			return nil, fmt.Errorf("service: no model client configured")
		}
		return nil, ErrNotReady
	}
	return agg.Invoke(ctx, req, loc)
}

// Patterns returns the user's long/short-term mobility patterns,
// memoized in the artifact cache.
func (s *PredictionService) Patterns(userID string) (*pattern.Patterns, error) {
	s.mu.RLock()
	batch, acts, actsFP := s.batch, s.acts, s.actsFingerprint
	s.mu.RUnlock()
	if batch == nil {
		return nil, ErrNotReady
	}
	if _, err := batch.ForUser(userID); err != nil {
		return nil, err
	}

	fp := cache.NewFingerprint().
		Add("user", userID).
		Add("activities", actsFP).
		Digest()

	var cached pattern.Patterns
	hit, err := s.store.LoadJSON(batch.ContentHash(), fp, "patterns", &cached)
	if err != nil {
		return nil, err
	}
	if hit {
		return &cached, nil
	}

	p, err := pattern.NewGenerator().LongShortPatterns(userID, acts)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveJSON(batch.ContentHash(), fp, "patterns", p); err != nil {
		return nil, err
	}
	return p, nil
}
