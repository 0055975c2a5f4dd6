package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AoWangg/mrra/internal/models"
)

func stay(user, place string, start time.Time, durationMin float64, purpose string) models.Activity {
	return models.Activity{
		UserID:       user,
		PlaceID:      place,
		ActivityType: models.ActivityTypeStay,
		Start:        start,
		End:          start.Add(time.Duration(durationMin * float64(time.Minute))),
		DurationMin:  durationMin,
		Purpose:      purpose,
		CenterLat:    39.90,
		CenterLon:    116.40,
	}
}

func daySeq(user string) []models.Activity {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	return []models.Activity{
		stay(user, "home", day.Add(0*time.Hour), 7*60, models.PurposeResidence),
		stay(user, "office", day.Add(9*time.Hour), 8*60, models.PurposeWork),
		stay(user, "restaurant", day.Add(18*time.Hour), 60, models.PurposeDining),
		stay(user, "home", day.Add(20*time.Hour), 3*60, models.PurposeResidence),
	}
}

func TestBuildNodeKinds(t *testing.T) {
	g := NewBuilder(DefaultConfig()).Build(daySeq("u1"))

	locs := g.NodesOfKind(NodeLoc)
	require.Len(t, locs, 3)
	for _, n := range locs {
		require.NotNil(t, n.Loc, "location node %s must carry attributes", n.ID)
		assert.NotEmpty(t, n.Loc.Geohash)
	}

	users := g.NodesOfKind(NodeUser)
	require.Len(t, users, 1)
	assert.Equal(t, UserNodeID("u1"), users[0].ID)
	assert.Nil(t, users[0].Loc, "non-location nodes carry no location attributes")

	purposes := g.NodesOfKind(NodePurpose)
	assert.Len(t, purposes, 3)
	for _, n := range purposes {
		assert.Nil(t, n.Loc)
	}
}

func TestBuildTransitionWeightConservation(t *testing.T) {
	// Two users, four qualifying activities each: per-user transition
	// weight must total N-1 = 3.
	acts := append(daySeq("u1"), daySeq("u2")...)
	g := NewBuilder(DefaultConfig()).Build(acts)

	total := 0.0
	for _, n := range g.NodesOfKind(NodeLoc) {
		for _, e := range g.OutEdges(n.ID) {
			if e.Kind == EdgeTransition {
				total += e.Weight
			}
		}
	}
	assert.Equal(t, 6.0, total, "transition weight must equal sum over users of N-1")
}

func TestBuildSamePlaceSuccessionCounts(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	acts := []models.Activity{
		stay("u1", "home", day, 60, ""),
		stay("u1", "home", day.Add(2*time.Hour), 60, ""),
	}
	g := NewBuilder(DefaultConfig()).Build(acts)

	e, ok := g.Edge(LocNodeID("home"), LocNodeID("home"))
	require.True(t, ok, "same-place succession must produce a self transition")
	assert.Equal(t, EdgeTransition, e.Kind)
	assert.Equal(t, 1.0, e.Weight)
}

func TestBuildFiltersShortDwells(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	acts := []models.Activity{
		stay("u1", "home", day, 60, ""),
		stay("u1", "kiosk", day.Add(2*time.Hour), 2, ""), // below threshold
		stay("u1", "office", day.Add(3*time.Hour), 60, ""),
	}
	g := NewBuilder(DefaultConfig()).Build(acts)

	_, ok := g.Node(LocNodeID("kiosk"))
	assert.False(t, ok, "sub-threshold dwell must not create a node")

	// The short stop is absent from the sequence, so home -> office is
	// the direct succession.
	_, ok = g.Edge(LocNodeID("home"), LocNodeID("office"))
	assert.True(t, ok)
}

func TestBuildNoCrossUserTransitions(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	acts := []models.Activity{
		stay("u1", "a", day, 60, ""),
		stay("u2", "b", day.Add(time.Hour), 60, ""),
	}
	g := NewBuilder(DefaultConfig()).Build(acts)

	_, ok := g.Edge(LocNodeID("a"), LocNodeID("b"))
	assert.False(t, ok, "succession never crosses user boundaries")
}

func TestBuildVisitAndAffinityWeights(t *testing.T) {
	g := NewBuilder(DefaultConfig()).Build(daySeq("u1"))

	visit, ok := g.Edge(UserNodeID("u1"), LocNodeID("home"))
	require.True(t, ok)
	assert.Equal(t, EdgeVisit, visit.Kind)
	assert.Equal(t, 2.0, visit.Weight)

	aff, ok := g.Edge(LocNodeID("home"), PurposeNodeID(models.PurposeResidence))
	require.True(t, ok)
	assert.Equal(t, EdgeAffinity, aff.Kind)
	assert.Equal(t, 2.0, aff.Weight)
}

func TestBuildEdgeLastSeenAdvances(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	acts := []models.Activity{
		stay("u1", "home", day, 60, ""),
		stay("u1", "home", day.Add(24*time.Hour), 60, ""),
	}
	g := NewBuilder(DefaultConfig()).Build(acts)

	visit, ok := g.Edge(UserNodeID("u1"), LocNodeID("home"))
	require.True(t, ok)
	assert.Equal(t, day.Add(24*time.Hour), visit.LastSeen)
}

func TestTopSuccessorsOrderedAndCapped(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	var acts []models.Activity
	// From "hub" visit three distinct successors; "busy" twice, the
	// others once, so TopK=2 keeps busy first and the tie resolves by id.
	dests := []string{"busy", "alpha", "busy", "beta"}
	cursor := day
	for _, d := range dests {
		acts = append(acts, stay("u1", "hub", cursor, 30, ""))
		cursor = cursor.Add(time.Hour)
		acts = append(acts, stay("u1", d, cursor, 30, ""))
		cursor = cursor.Add(time.Hour)
	}

	cfg := DefaultConfig()
	cfg.TopK = 2
	g := NewBuilder(cfg).Build(acts)

	hub, ok := g.Node(LocNodeID("hub"))
	require.True(t, ok)
	require.NotNil(t, hub.Loc)
	require.Len(t, hub.Loc.TopSucc, 2)
	assert.Equal(t, LocNodeID("busy"), hub.Loc.TopSucc[0].NodeID)
	assert.Equal(t, 2.0, hub.Loc.TopSucc[0].Weight)
	assert.Equal(t, LocNodeID("alpha"), hub.Loc.TopSucc[1].NodeID)
}

func TestEncodeIsDeterministic(t *testing.T) {
	acts := append(daySeq("u1"), daySeq("u2")...)

	g1 := NewBuilder(DefaultConfig()).Build(acts)
	// Reversed input order must not change the canonical encoding.
	reversed := make([]models.Activity, len(acts))
	for i, a := range acts {
		reversed[len(acts)-1-i] = a
	}
	g2 := NewBuilder(DefaultConfig()).Build(reversed)

	b1, err := g1.Encode()
	require.NoError(t, err)
	b2, err := g2.Encode()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestDecodeRoundTrip(t *testing.T) {
	g := NewBuilder(DefaultConfig()).Build(daySeq("u1"))

	data, err := g.Encode()
	require.NoError(t, err)
	loaded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, g.NodeCount(), loaded.NodeCount())
	assert.Equal(t, g.EdgeCount(), loaded.EdgeCount())

	// The decoded graph answers queries identically.
	for _, n := range g.NodesOfKind(NodeLoc) {
		got, ok := loaded.Node(n.ID)
		require.True(t, ok)
		assert.Equal(t, n, got)
		assert.Equal(t, g.OutEdges(n.ID), loaded.OutEdges(n.ID))
	}

	again, err := loaded.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}
