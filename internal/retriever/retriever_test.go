package retriever

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AoWangg/mrra/internal/graph"
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

// weekHistory repeats a home -> office -> restaurant -> home day over
// several weekdays so transition and visit weights are well separated.
func weekHistory(user string) []models.Activity {
	var acts []models.Activity
	for d := 0; d < 5; d++ {
		day := time.Date(2024, 3, 4+d, 0, 0, 0, 0, time.UTC)
		acts = append(acts,
			stay(user, "home", day, 7*60, models.PurposeResidence),
			stay(user, "office", day.Add(9*time.Hour), 8*60, models.PurposeWork),
			stay(user, "restaurant", day.Add(18*time.Hour), 60, models.PurposeDining),
			stay(user, "home", day.Add(20*time.Hour), 3*60, models.PurposeResidence),
		)
	}
	return acts
}

func buildRetriever(t *testing.T, acts []models.Activity) *Retriever {
	t.Helper()
	g := graph.NewBuilder(graph.DefaultConfig()).Build(acts)
	return New(g, acts)
}

func TestRetrieveRankedDescending(t *testing.T) {
	r := buildRetriever(t, weekHistory("u1"))

	opts, err := r.Retrieve(models.RetrievalQuery{
		UserID: "u1",
		T:      time.Date(2024, 3, 9, 9, 30, 0, 0, time.UTC),
		K:      5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, opts)

	for i := 1; i < len(opts); i++ {
		assert.GreaterOrEqual(t, opts[i-1].Score, opts[i].Score)
	}
}

func TestRetrieveIsDeterministic(t *testing.T) {
	r := buildRetriever(t, weekHistory("u1"))
	q := models.RetrievalQuery{
		UserID: "u1",
		T:      time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
		K:      5,
	}

	first, err := r.Retrieve(q)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Retrieve(q)
		require.NoError(t, err)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].NodeID, again[j].NodeID)
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}
}

func TestRetrieveUnknownUserColdStart(t *testing.T) {
	r := buildRetriever(t, weekHistory("u1"))

	_, err := r.Retrieve(models.RetrievalQuery{UserID: "stranger"})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestRetrieveMorningFromHomeFavorsOffice(t *testing.T) {
	r := buildRetriever(t, weekHistory("u1"))

	// At 09:00 the most recent stay is home (00:00-07:00); home's
	// dominant successor at that hour is the office.
	opts, err := r.Retrieve(models.RetrievalQuery{
		UserID: "u1",
		T:      time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC),
		K:      3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, opts)
	assert.Equal(t, graph.LocNodeID("office"), opts[0].NodeID)
}

func TestRetrievePurposeHintShiftsScores(t *testing.T) {
	r := buildRetriever(t, weekHistory("u1"))
	t0 := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

	plain, err := r.Retrieve(models.RetrievalQuery{UserID: "u1", T: t0, K: 5})
	require.NoError(t, err)
	hinted, err := r.Retrieve(models.RetrievalQuery{
		UserID: "u1", T: t0, K: 5, Purpose: models.PurposeDining,
	})
	require.NoError(t, err)

	score := func(opts []models.RetrievalOption, id string) float64 {
		for _, o := range opts {
			if o.NodeID == id {
				return o.Score
			}
		}
		t.Fatalf("option %s missing", id)
		return 0
	}
	rest := graph.LocNodeID("restaurant")
	assert.Greater(t, score(hinted, rest), score(plain, rest),
		"a dining hint must raise the dining-affine location")
}

func TestRetrieveFromPlaceOverride(t *testing.T) {
	r := buildRetriever(t, weekHistory("u1"))
	t0 := time.Date(2024, 3, 8, 19, 0, 0, 0, time.UTC)

	opts, err := r.Retrieve(models.RetrievalQuery{
		UserID:    "u1",
		T:         t0,
		K:         3,
		FromPlace: "restaurant",
	})
	require.NoError(t, err)
	require.NotEmpty(t, opts)
	// The only observed transition out of the restaurant is home.
	assert.Equal(t, graph.LocNodeID("home"), opts[0].NodeID)
	assert.Equal(t, graph.LocNodeID("restaurant"), opts[0].Metadata["from"])
}

func TestRetrieveTieBreakByNodeID(t *testing.T) {
	// Two places visited exactly once each with no transitions between
	// them score identically; order must fall back to node id.
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	acts := []models.Activity{
		stay("u1", "zeta", day, 60, ""),
		stay("u2", "alpha", day, 60, ""),
		stay("u2", "zeta", day.Add(2*time.Hour), 60, ""),
	}
	g := graph.NewBuilder(graph.DefaultConfig()).Build(acts)
	r := New(g, acts)

	opts, err := r.Retrieve(models.RetrievalQuery{UserID: "u2", K: 5})
	require.NoError(t, err)
	require.Len(t, opts, 2)
	if opts[0].Score == opts[1].Score {
		assert.Less(t, opts[0].NodeID, opts[1].NodeID)
	}
}

func TestRetrieveHonorsK(t *testing.T) {
	r := buildRetriever(t, weekHistory("u1"))

	opts, err := r.Retrieve(models.RetrievalQuery{
		UserID: "u1",
		T:      time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC),
		K:      2,
	})
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestTimeOfDayAffinityWrapsMidnight(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 3, 5, h, 0, 0, 0, time.UTC) }

	assert.InDelta(t, 1.0, timeOfDayAffinity(at(9), at(9)), 1e-9)
	assert.InDelta(t, 0.0, timeOfDayAffinity(at(0), at(12)), 1e-9)
	// 23:00 vs 01:00 is a 2-hour circular distance, not 22.
	assert.InDelta(t, 1-2.0/12, timeOfDayAffinity(at(23), at(1)), 1e-9)
	assert.Equal(t, 0.0, timeOfDayAffinity(time.Time{}, at(9)))
}
