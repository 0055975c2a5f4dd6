// Package retriever scores and ranks mobility-graph nodes as candidate
// answers for a query context.
package retriever

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AoWangg/mrra/internal/graph"
	"github.com/AoWangg/mrra/internal/models"
)

// ErrNoCandidates indicates the query's user has no graph presence
// (cold start). Callers treat this as insufficient history, not a fault.
var ErrNoCandidates = errors.New("retriever: no candidates for user")

// DefaultK is the result count when the query leaves it unset.
const DefaultK = 5

// Scoring term weights. Transition evidence dominates; the frequency
// prior keeps scores meaningful for locations with no observed
// transition from the current place.
const (
	wTransition = 0.5
	wPurpose    = 0.2
	wRecency    = 0.2
	wFrequency  = 0.1
)

// Retriever answers retrieval queries against one immutable graph and
// the activity history it was built from. Safe for concurrent use.
type Retriever struct {
	g      *graph.MobilityGraph
	byUser map[string][]models.Activity // sorted by start
}

// New creates a retriever over a built (or cache-loaded) graph and the
// purpose-assigned activities behind it.
func New(g *graph.MobilityGraph, activities []models.Activity) *Retriever {
	byUser := make(map[string][]models.Activity)
	for _, a := range activities {
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}
	for uid := range byUser {
		seq := byUser[uid]
		sort.Slice(seq, func(i, j int) bool { return seq[i].Start.Before(seq[j].Start) })
		byUser[uid] = seq
	}
	return &Retriever{g: g, byUser: byUser}
}

// Retrieve returns candidate options sorted by score descending, ties
// broken by node id so identical queries yield identical orderings.
func (r *Retriever) Retrieve(q models.RetrievalQuery) ([]models.RetrievalOption, error) {
	k := q.K
	if k <= 0 {
		k = DefaultK
	}

	userNode := graph.UserNodeID(q.UserID)
	if _, ok := r.g.Node(userNode); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCandidates, q.UserID)
	}

	candidates := r.candidateLocs(userNode)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCandidates, q.UserID)
	}

	fromID := r.currentLoc(q)
	totalTrans := r.totalOutWeight(fromID, graph.EdgeTransition)
	totalVisits := r.totalOutWeight(userNode, graph.EdgeVisit)

	opts := make([]models.RetrievalOption, 0, len(candidates))
	for _, candID := range candidates {
		node, ok := r.g.Node(candID)
		if !ok || node.Kind != graph.NodeLoc {
			continue
		}

		var trans, recency float64
		if fromID != "" {
			if e, ok := r.g.Edge(fromID, candID); ok && e.Kind == graph.EdgeTransition {
				if totalTrans > 0 {
					trans = e.Weight / totalTrans
				}
				recency = timeOfDayAffinity(e.LastSeen, q.T)
			}
		}

		var purpose float64
		if q.Purpose != "" {
			if e, ok := r.g.Edge(candID, graph.PurposeNodeID(q.Purpose)); ok {
				total := r.totalOutWeight(candID, graph.EdgeAffinity)
				if total > 0 {
					purpose = e.Weight / total
				}
			}
		}

		var freq float64
		if e, ok := r.g.Edge(userNode, candID); ok && totalVisits > 0 {
			freq = e.Weight / totalVisits
		}

		score := wTransition*trans + wPurpose*purpose + wRecency*recency + wFrequency*freq
		opts = append(opts, models.RetrievalOption{
			NodeID: candID,
			Score:  score,
			Metadata: map[string]interface{}{
				"place_id": node.Loc.PlaceID,
				"lat":      node.Loc.Lat,
				"lon":      node.Loc.Lon,
				"geohash":  node.Loc.Geohash,
				"from":     fromID,
			},
		})
	}

	sort.Slice(opts, func(i, j int) bool {
		if opts[i].Score != opts[j].Score {
			return opts[i].Score > opts[j].Score
		}
		return opts[i].NodeID < opts[j].NodeID
	})
	if len(opts) > k {
		opts = opts[:k]
	}
	return opts, nil
}

// candidateLocs returns the user's visited locations plus the
// precomputed successors of each, deduplicated and sorted.
func (r *Retriever) candidateLocs(userNode string) []string {
	seen := make(map[string]bool)
	for _, e := range r.g.OutEdges(userNode) {
		if e.Kind != graph.EdgeVisit {
			continue
		}
		seen[e.To] = true
		if n, ok := r.g.Node(e.To); ok && n.Kind == graph.NodeLoc {
			for _, s := range n.Loc.TopSucc {
				seen[s.NodeID] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// currentLoc resolves the user's most recent known location at or
// before the reference time, unless the query overrides it.
func (r *Retriever) currentLoc(q models.RetrievalQuery) string {
	if q.FromPlace != "" {
		return graph.LocNodeID(q.FromPlace)
	}
	seq := r.byUser[q.UserID]
	var last string
	for _, a := range seq {
		if !q.T.IsZero() && a.Start.After(q.T) {
			break
		}
		last = graph.LocNodeID(a.PlaceID)
	}
	if last == "" && len(seq) > 0 {
		last = graph.LocNodeID(seq[0].PlaceID)
	}
	return last
}

func (r *Retriever) totalOutWeight(from string, kind graph.EdgeKind) float64 {
	var total float64
	for _, e := range r.g.OutEdges(from) {
		if e.Kind == kind {
			total += e.Weight
		}
	}
	return total
}

// timeOfDayAffinity favors transitions last observed near the query's
// time of day: 1.0 at the same hour, falling linearly to 0 at a 12-hour
// offset.
func timeOfDayAffinity(lastSeen, ref time.Time) float64 {
	if lastSeen.IsZero() || ref.IsZero() {
		return 0
	}
	a := float64(lastSeen.Hour()) + float64(lastSeen.Minute())/60
	b := float64(ref.Hour()) + float64(ref.Minute())/60
	diff := math.Abs(a - b)
	if diff > 12 {
		diff = 24 - diff
	}
	return 1 - diff/12
}
