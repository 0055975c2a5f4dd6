package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AoWangg/mrra/internal/cache"
	"github.com/AoWangg/mrra/internal/models"
	"github.com/AoWangg/mrra/internal/retriever"
	"github.com/AoWangg/mrra/internal/trajectory"
)

func newService(t *testing.T) *PredictionService {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewPredictionService(store, nil, DefaultOptions())
}

// commutePings produces dwell-length ping runs at two places over two
// days, enough to survive extraction and graph thresholds.
func commutePings(user string) []models.LocationPing {
	var pings []models.LocationPing
	emit := func(start time.Time, lat, lon float64, hours int) {
		for m := 0; m <= hours*60; m += 10 {
			pings = append(pings, models.LocationPing{
				UserID:    user,
				Timestamp: start.Add(time.Duration(m) * time.Minute),
				Latitude:  lat,
				Longitude: lon,
			})
		}
	}
	for d := 0; d < 2; d++ {
		day := time.Date(2024, 3, 5+d, 0, 0, 0, 0, time.UTC)
		emit(day, 39.9000, 116.4000, 7)
		emit(day.Add(9*time.Hour), 39.9300, 116.4500, 8)
		emit(day.Add(20*time.Hour), 39.9000, 116.4000, 2)
	}
	return pings
}

func TestServiceNotReady(t *testing.T) {
	s := newService(t)

	_, err := s.Users()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.ActivitiesForUser("u1")
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.Summary()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.Retrieve(models.RetrievalQuery{UserID: "u1"})
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.Patterns("u1")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestServiceIngestPipeline(t *testing.T) {
	s := newService(t)

	sum, err := s.Ingest(context.Background(), commutePings("u1"))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Users)
	assert.NotEmpty(t, sum.TrajectoryHash)
	assert.Greater(t, sum.Activities, 0)
	assert.Greater(t, sum.GraphNodes, 0)
	assert.False(t, sum.ActivityCacheHit)
	assert.False(t, sum.GraphCacheHit)

	users, err := s.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)

	acts, err := s.ActivitiesForUser("u1")
	require.NoError(t, err)
	require.NotEmpty(t, acts)
	for _, a := range acts {
		assert.NotEmpty(t, a.Purpose, "ingest must leave every activity purpose-assigned")
	}

	gs, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, sum.GraphNodes, gs.Nodes)
	assert.NotEmpty(t, gs.Locations)
}

func TestServiceIngestCacheHitOnReingest(t *testing.T) {
	s := newService(t)
	pings := commutePings("u1")

	first, err := s.Ingest(context.Background(), pings)
	require.NoError(t, err)
	require.False(t, first.ActivityCacheHit)

	second, err := s.Ingest(context.Background(), pings)
	require.NoError(t, err)
	assert.True(t, second.ActivityCacheHit)
	assert.True(t, second.GraphCacheHit)
	assert.Equal(t, first.TrajectoryHash, second.TrajectoryHash)
	assert.Equal(t, first.Activities, second.Activities)
	assert.Equal(t, first.GraphNodes, second.GraphNodes)
}

func TestServiceIngestDifferentDataMissesCache(t *testing.T) {
	s := newService(t)

	_, err := s.Ingest(context.Background(), commutePings("u1"))
	require.NoError(t, err)

	other, err := s.Ingest(context.Background(), commutePings("u2"))
	require.NoError(t, err)
	assert.False(t, other.ActivityCacheHit, "different content hash must rebuild")
}

func TestServiceRetrieveAndUnknownUser(t *testing.T) {
	s := newService(t)
	_, err := s.Ingest(context.Background(), commutePings("u1"))
	require.NoError(t, err)

	opts, err := s.Retrieve(models.RetrievalQuery{
		UserID: "u1",
		T:      time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	_, err = s.Retrieve(models.RetrievalQuery{UserID: "stranger"})
	assert.ErrorIs(t, err, retriever.ErrNoCandidates)

	_, err = s.ActivitiesForUser("stranger")
	assert.ErrorIs(t, err, trajectory.ErrUnknownUser)
}

func TestServicePredictWithoutClient(t *testing.T) {
	s := newService(t)
	_, err := s.Ingest(context.Background(), commutePings("u1"))
	require.NoError(t, err)

	_, err = s.Predict(context.Background(), models.TaskRequest{
		Task: models.TaskNextPosition, UserID: "u1", T: "2024-03-06 09:00:00",
	})
	assert.Error(t, err)
}

func TestServicePatternsMemoized(t *testing.T) {
	s := newService(t)
	_, err := s.Ingest(context.Background(), commutePings("u1"))
	require.NoError(t, err)

	p1, err := s.Patterns("u1")
	require.NoError(t, err)
	require.NotNil(t, p1)
	assert.Equal(t, "u1", p1.UserID)

	p2, err := s.Patterns("u1")
	require.NoError(t, err)
	assert.Equal(t, p1.Activity, p2.Activity)
	assert.Equal(t, p1.LongTerm.TopPlaces, p2.LongTerm.TopPlaces)

	_, err = s.Patterns("stranger")
	assert.ErrorIs(t, err, trajectory.ErrUnknownUser)
}

func TestServiceIngestRejectsEmpty(t *testing.T) {
	s := newService(t)
	_, err := s.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, trajectory.ErrNoData)
}
