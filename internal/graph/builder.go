package graph

import (
	"log"
	"sort"

	"github.com/AoWangg/mrra/internal/models"
	"github.com/AoWangg/mrra/internal/spatial"
)

// Config holds the graph construction parameters. MinDwellMinutes is an
// independent filter from the extractor's threshold: it allows a coarser
// graph view without re-extracting activities.
type Config struct {
	GridSizeM       float64
	MinDwellMinutes float64
	TopK            int // precomputed top successors per location node
	GeohashLen      int // precision of the display geohash on loc nodes
}

// DefaultConfig returns the standard graph parameters.
func DefaultConfig() Config {
	return Config{
		GridSizeM:       200,
		MinDwellMinutes: 5,
		TopK:            5,
		GeohashLen:      8,
	}
}

// Builder folds activity sequences into a MobilityGraph. Building is
// pure given (activities, config); the builder never mutates a graph it
// has already returned.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder with the given parameters.
func NewBuilder(cfg Config) *Builder {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.GeohashLen <= 0 {
		cfg.GeohashLen = 8
	}
	return &Builder{cfg: cfg}
}

// Build constructs a new graph value from the given activities. Edge
// weights between a node pair only grow while activities are folded in.
func (b *Builder) Build(activities []models.Activity) *MobilityGraph {
	g := &MobilityGraph{
		nodes: make(map[string]Node),
		out:   make(map[string]map[string]Edge),
	}

	qualified := make([]models.Activity, 0, len(activities))
	for _, a := range activities {
		if a.DurationMin >= b.cfg.MinDwellMinutes {
			qualified = append(qualified, a)
		}
	}
	sort.Slice(qualified, func(i, j int) bool {
		if qualified[i].UserID != qualified[j].UserID {
			return qualified[i].UserID < qualified[j].UserID
		}
		return qualified[i].Start.Before(qualified[j].Start)
	})

	var prev *models.Activity
	for i := range qualified {
		a := qualified[i]
		locID := b.ensureLocNode(g, a)
		userID := b.ensureNode(g, UserNodeID(a.UserID), NodeUser)

		b.bumpEdge(g, userID, locID, EdgeVisit, a)
		if a.Purpose != "" {
			purposeID := b.ensureNode(g, PurposeNodeID(a.Purpose), NodePurpose)
			b.bumpEdge(g, locID, purposeID, EdgeAffinity, a)
		}

		// Succession within one user's sorted activity sequence; a
		// same-place pair still counts as one transition.
		if prev != nil && prev.UserID == a.UserID {
			b.bumpEdge(g, LocNodeID(prev.PlaceID), locID, EdgeTransition, a)
		}
		prev = &qualified[i]
	}

	b.computeTopSuccessors(g)

	log.Printf("[MobilityGraphBuilder] Built graph: %d nodes, %d edges from %d activities",
		g.NodeCount(), g.EdgeCount(), len(qualified))
	return g
}

func (b *Builder) ensureNode(g *MobilityGraph, id string, kind NodeKind) string {
	if _, ok := g.nodes[id]; !ok {
		g.nodes[id] = Node{ID: id, Kind: kind}
	}
	return id
}

func (b *Builder) ensureLocNode(g *MobilityGraph, a models.Activity) string {
	id := LocNodeID(a.PlaceID)
	if _, ok := g.nodes[id]; ok {
		return id
	}
	cell := spatial.SnapToGrid(a.CenterLat, a.CenterLon, b.cfg.GridSizeM)
	lat, lon := cell.Center()
	g.nodes[id] = Node{
		ID:   id,
		Kind: NodeLoc,
		Loc: &LocAttrs{
			PlaceID: a.PlaceID,
			Lat:     lat,
			Lon:     lon,
			GY:      cell.GY,
			GX:      cell.GX,
			Geohash: spatial.EncodeGeohash(lat, lon, b.cfg.GeohashLen),
		},
	}
	return id
}

func (b *Builder) bumpEdge(g *MobilityGraph, from, to string, kind EdgeKind, a models.Activity) {
	if g.out[from] == nil {
		g.out[from] = make(map[string]Edge)
	}
	e, ok := g.out[from][to]
	if !ok {
		e = Edge{From: from, To: to, Kind: kind}
	}
	e.Weight++
	if a.Start.After(e.LastSeen) {
		e.LastSeen = a.Start
	}
	g.out[from][to] = e
}

// computeTopSuccessors caches each location node's strongest outgoing
// transitions so retrieval never re-scans edges.
func (b *Builder) computeTopSuccessors(g *MobilityGraph) {
	for id, n := range g.nodes {
		if n.Kind != NodeLoc {
			continue
		}
		var succ []Successor
		for to, e := range g.out[id] {
			if e.Kind != EdgeTransition {
				continue
			}
			succ = append(succ, Successor{NodeID: to, Weight: e.Weight})
		}
		sort.Slice(succ, func(i, j int) bool {
			if succ[i].Weight != succ[j].Weight {
				return succ[i].Weight > succ[j].Weight
			}
			return succ[i].NodeID < succ[j].NodeID
		})
		if len(succ) > b.cfg.TopK {
			succ = succ[:b.cfg.TopK]
		}
		n.Loc.TopSucc = succ
		g.nodes[id] = n
	}
}
