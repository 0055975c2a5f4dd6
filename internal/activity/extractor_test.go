package activity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AoWangg/mrra/internal/models"
	"github.com/AoWangg/mrra/internal/trajectory"
)

func mustBatch(t *testing.T, pings []models.LocationPing) *trajectory.Batch {
	t.Helper()
	b, err := trajectory.Ingest(pings, nil)
	require.NoError(t, err)
	return b
}

func pingAt(user string, ts string, lat, lon float64) models.LocationPing {
	parsed, err := time.Parse("2006-01-02 15:04:05", ts)
	if err != nil {
		panic(err)
	}
	return models.LocationPing{UserID: user, Timestamp: parsed, Latitude: lat, Longitude: lon}
}

// every ~5 minutes within a tight radius
func dwellPings(user string, start string, minutes int, lat, lon float64) []models.LocationPing {
	t0, err := time.Parse("2006-01-02 15:04:05", start)
	if err != nil {
		panic(err)
	}
	var out []models.LocationPing
	for m := 0; m <= minutes; m += 5 {
		out = append(out, models.LocationPing{
			UserID:    user,
			Timestamp: t0.Add(time.Duration(m) * time.Minute),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return out
}

func TestSubThresholdDwellYieldsNoActivity(t *testing.T) {
	b := mustBatch(t, []models.LocationPing{
		pingAt("u1", "2023-01-01 09:00:00", 31.23, 121.47),
		pingAt("u1", "2023-01-01 09:05:00", 31.23, 121.47),
	})

	cfg := DefaultExtractorConfig()
	cfg.MinDwellMinutes = 30
	acts := NewExtractor(cfg).Extract(b)
	assert.Empty(t, acts)
}

func TestSinglePingNeverYieldsActivity(t *testing.T) {
	b := mustBatch(t, []models.LocationPing{
		pingAt("u1", "2023-01-01 09:00:00", 31.23, 121.47),
	})
	acts := NewExtractor(DefaultExtractorConfig()).Extract(b)
	assert.Empty(t, acts)
}

func TestLongGapSplitsSamePlaceIntoTwoActivities(t *testing.T) {
	var pings []models.LocationPing
	pings = append(pings, dwellPings("u1", "2023-01-01 09:00:00", 40, 31.2300, 121.4700)...)
	// 4-hour gap, then 40 more minutes at the same coordinates
	pings = append(pings, dwellPings("u1", "2023-01-01 13:40:00", 40, 31.2300, 121.4700)...)

	cfg := DefaultExtractorConfig()
	cfg.MaxGapMinutes = 90
	cfg.MinDwellMinutes = 30
	acts := NewExtractor(cfg).Extract(mustBatch(t, pings))

	require.Len(t, acts, 2)
	assert.Equal(t, acts[0].PlaceID, acts[1].PlaceID, "same cell must share place_id")
	assert.True(t, acts[0].End.Before(acts[1].Start))
	for _, a := range acts {
		assert.GreaterOrEqual(t, a.DurationMin, 30.0)
	}
}

func TestRadiusExitClosesCluster(t *testing.T) {
	var pings []models.LocationPing
	pings = append(pings, dwellPings("u1", "2023-01-01 09:00:00", 40, 31.2300, 121.4700)...)
	// ~2.2 km east, immediately afterwards
	pings = append(pings, dwellPings("u1", "2023-01-01 09:45:00", 40, 31.2300, 121.4930)...)

	acts := NewExtractor(DefaultExtractorConfig()).Extract(mustBatch(t, pings))
	require.Len(t, acts, 2)
	assert.NotEqual(t, acts[0].PlaceID, acts[1].PlaceID)
}

func TestExtractionIsDeterministic(t *testing.T) {
	var pings []models.LocationPing
	pings = append(pings, dwellPings("u1", "2023-01-01 08:00:00", 60, 31.2300, 121.4700)...)
	pings = append(pings, dwellPings("u1", "2023-01-01 12:00:00", 45, 31.2450, 121.4950)...)
	pings = append(pings, dwellPings("u2", "2023-01-01 09:00:00", 90, 39.9000, 116.4000)...)

	b := mustBatch(t, pings)
	ex := NewExtractor(DefaultExtractorConfig())

	first, err := json.Marshal(ex.Extract(b))
	require.NoError(t, err)
	second, err := json.Marshal(ex.Extract(b))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestActivitiesSortedByUserAndStart(t *testing.T) {
	var pings []models.LocationPing
	pings = append(pings, dwellPings("u2", "2023-01-01 09:00:00", 60, 39.9000, 116.4000)...)
	pings = append(pings, dwellPings("u1", "2023-01-01 12:00:00", 60, 31.2450, 121.4950)...)
	pings = append(pings, dwellPings("u1", "2023-01-01 08:00:00", 60, 31.2300, 121.4700)...)

	acts := NewExtractor(DefaultExtractorConfig()).Extract(mustBatch(t, pings))
	require.Len(t, acts, 3)
	assert.Equal(t, "u1", acts[0].UserID)
	assert.Equal(t, "u1", acts[1].UserID)
	assert.Equal(t, "u2", acts[2].UserID)
	assert.True(t, acts[0].Start.Before(acts[1].Start))
}
