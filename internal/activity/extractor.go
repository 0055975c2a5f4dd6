package activity

import (
	"log"
	"time"

	"github.com/AoWangg/mrra/internal/models"
	"github.com/AoWangg/mrra/internal/spatial"
	"github.com/AoWangg/mrra/internal/trajectory"
)

// ExtractorConfig holds the dwell-detection parameters. The parameters
// are part of the cache fingerprint for the activities artifact.
type ExtractorConfig struct {
	RadiusM         float64 // dwell radius around the running centroid
	MinDwellMinutes float64 // clusters shorter than this are transit noise
	MaxGapMinutes   float64 // a larger gap always closes the cluster
	GridSizeM       float64 // cell size for place_id snapping
}

// DefaultExtractorConfig returns the standard dwell-detection parameters.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		RadiusM:         300,
		MinDwellMinutes: 30,
		MaxGapMinutes:   90,
		GridSizeM:       200,
	}
}

// Extractor segments each user's ping stream into discrete stay
// episodes via radius-based dwell clustering. Extraction is a pure
// function of (batch, config): identical inputs yield identical
// activities.
type Extractor struct {
	cfg ExtractorConfig
}

// NewExtractor creates an extractor with the given parameters.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// cluster is a candidate dwell being grown ping by ping.
type cluster struct {
	points []spatial.Point
	first  models.LocationPing
	last   models.LocationPing
	sumLat float64
	sumLon float64
}

func (c *cluster) centroid() (lat, lon float64) {
	n := float64(len(c.points))
	return c.sumLat / n, c.sumLon / n
}

func (c *cluster) add(p models.LocationPing) {
	if len(c.points) == 0 {
		c.first = p
	}
	c.points = append(c.points, spatial.Point{Lat: p.Latitude, Lon: p.Longitude})
	c.sumLat += p.Latitude
	c.sumLon += p.Longitude
	c.last = p
}

// Extract produces the batch's activities sorted by (user_id, start).
func (e *Extractor) Extract(batch *trajectory.Batch) []models.Activity {
	var out []models.Activity
	for _, uid := range batch.Users() {
		pings, err := batch.ForUser(uid)
		if err != nil {
			continue
		}
		out = append(out, e.extractUser(uid, pings)...)
	}
	log.Printf("[ActivityExtractor] Extracted %d activities from %d users", len(out), len(batch.Users()))
	return out
}

func (e *Extractor) extractUser(userID string, pings []models.LocationPing) []models.Activity {
	var acts []models.Activity
	cur := &cluster{}

	for _, p := range pings {
		if len(cur.points) == 0 {
			cur.add(p)
			continue
		}

		gap := p.Timestamp.Sub(cur.last.Timestamp)
		cLat, cLon := cur.centroid()
		dist := spatial.HaversineDistance(cLat, cLon, p.Latitude, p.Longitude)

		// A long gap closes the cluster even when the user returns to
		// the same spot: leaving and coming back is two stays.
		if gap > e.gapLimit() || dist > e.cfg.RadiusM {
			if act, ok := e.closeCluster(userID, cur); ok {
				acts = append(acts, act)
			}
			cur = &cluster{}
		}
		cur.add(p)
	}
	if act, ok := e.closeCluster(userID, cur); ok {
		acts = append(acts, act)
	}
	return acts
}

func (e *Extractor) gapLimit() time.Duration {
	return time.Duration(e.cfg.MaxGapMinutes * float64(time.Minute))
}

// closeCluster turns a finished cluster into an Activity when it meets
// the minimum dwell duration; shorter clusters are discarded.
func (e *Extractor) closeCluster(userID string, c *cluster) (models.Activity, bool) {
	if len(c.points) == 0 {
		return models.Activity{}, false
	}
	durationMin := c.last.Timestamp.Sub(c.first.Timestamp).Minutes()
	if durationMin < e.cfg.MinDwellMinutes {
		return models.Activity{}, false
	}

	center := spatial.Centroid(c.points)
	cell := spatial.SnapToGrid(center.Lat, center.Lon, e.cfg.GridSizeM)

	return models.Activity{
		UserID:       userID,
		PlaceID:      cell.ID(),
		ActivityType: models.ActivityTypeStay,
		Start:        c.first.LocalTime,
		End:          c.last.LocalTime,
		DurationMin:  durationMin,
		CenterLat:    center.Lat,
		CenterLon:    center.Lon,
		PointCount:   len(c.points),
	}, true
}
