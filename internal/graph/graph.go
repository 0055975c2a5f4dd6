// Package graph builds and serves the typed mobility graph: location,
// user and purpose nodes with weighted transition and affinity edges
// derived from activity sequences.
package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// NodeKind tags the three node variants.
type NodeKind string

const (
	NodeLoc     NodeKind = "loc"
	NodeUser    NodeKind = "user"
	NodePurpose NodeKind = "purpose"
)

// EdgeKind tags the edge semantics between node kinds.
type EdgeKind string

const (
	EdgeVisit      EdgeKind = "visit"      // user -> loc, weighted by visit count
	EdgeTransition EdgeKind = "transition" // loc -> loc, direct succession
	EdgeAffinity   EdgeKind = "affinity"   // loc -> purpose, activity count
)

// Successor is one precomputed top outgoing transition of a location.
type Successor struct {
	NodeID string  `json:"node_id"`
	Weight float64 `json:"weight"`
}

// LocAttrs carries the fields valid only for location nodes.
type LocAttrs struct {
	PlaceID string      `json:"place_id"`
	Lat     float64     `json:"lat"`
	Lon     float64     `json:"lon"`
	GY      int64       `json:"gy"`
	GX      int64       `json:"gx"`
	Geohash string      `json:"geohash,omitempty"`
	TopSucc []Successor `json:"top_succ,omitempty"`
}

// Node is a tagged variant: Loc is non-nil exactly when Kind == NodeLoc.
// User and purpose nodes are identity-only.
type Node struct {
	ID   string    `json:"id"`
	Kind NodeKind  `json:"kind"`
	Loc  *LocAttrs `json:"loc,omitempty"`
}

// Edge is a directed weighted edge with the last-observed timestamp.
type Edge struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Kind     EdgeKind  `json:"kind"`
	Weight   float64   `json:"weight"`
	LastSeen time.Time `json:"last_seen"`
}

// MobilityGraph is the node/edge collection as of one construction or
// cache load. Once built it is an immutable value: concurrent readers
// need no synchronization, and a graph decoded from the cache is
// substitutable anywhere a freshly built one is used.
type MobilityGraph struct {
	nodes map[string]Node
	out   map[string]map[string]Edge // from -> to
}

// Node id naming.
func LocNodeID(placeID string) string   { return "loc:" + placeID }
func UserNodeID(userID string) string   { return "user:" + userID }
func PurposeNodeID(label string) string { return "purpose:" + label }

// NodeCount returns the number of nodes.
func (g *MobilityGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of directed edges.
func (g *MobilityGraph) EdgeCount() int {
	n := 0
	for _, m := range g.out {
		n += len(m)
	}
	return n
}

// Node looks up a node by id.
func (g *MobilityGraph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edge looks up the directed edge from -> to.
func (g *MobilityGraph) Edge(from, to string) (Edge, bool) {
	m, ok := g.out[from]
	if !ok {
		return Edge{}, false
	}
	e, ok := m[to]
	return e, ok
}

// OutEdges returns the outgoing edges of a node sorted by (kind, to).
func (g *MobilityGraph) OutEdges(from string) []Edge {
	m, ok := g.out[from]
	if !ok {
		return nil
	}
	edges := make([]Edge, 0, len(m))
	for _, e := range m {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Kind != edges[j].Kind {
			return edges[i].Kind < edges[j].Kind
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// NodesOfKind returns all nodes of a kind sorted by id.
func (g *MobilityGraph) NodesOfKind(kind NodeKind) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// snapshot is the canonical serialized form: nodes and edges in sorted
// order, so identical graphs encode to identical bytes.
type snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Encode serializes the graph for the artifact cache.
func (g *MobilityGraph) Encode() ([]byte, error) {
	snap := snapshot{
		Nodes: make([]Node, 0, len(g.nodes)),
		Edges: make([]Edge, 0, g.EdgeCount()),
	}
	for _, n := range g.nodes {
		snap.Nodes = append(snap.Nodes, n)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })
	for _, m := range g.out {
		for _, e := range m {
			snap.Edges = append(snap.Edges, e)
		}
	}
	sort.Slice(snap.Edges, func(i, j int) bool {
		if snap.Edges[i].From != snap.Edges[j].From {
			return snap.Edges[i].From < snap.Edges[j].From
		}
		return snap.Edges[i].To < snap.Edges[j].To
	})
	return json.Marshal(snap)
}

// Decode reconstructs a graph from its serialized form.
func Decode(data []byte) (*MobilityGraph, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("graph: decode failed: %w", err)
	}
	g := &MobilityGraph{
		nodes: make(map[string]Node, len(snap.Nodes)),
		out:   make(map[string]map[string]Edge),
	}
	for _, n := range snap.Nodes {
		g.nodes[n.ID] = n
	}
	for _, e := range snap.Edges {
		if g.out[e.From] == nil {
			g.out[e.From] = make(map[string]Edge)
		}
		g.out[e.From][e.To] = e
	}
	return g, nil
}
