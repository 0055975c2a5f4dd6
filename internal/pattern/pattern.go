// Package pattern summarizes a user's long- and short-term mobility
// habits from their activity history. The summaries feed report layers
// and the prediction prompts; they carry no graph state of their own.
package pattern

import (
	"fmt"
	"sort"
	"time"

	"github.com/AoWangg/mrra/internal/models"
	"github.com/AoWangg/mrra/internal/spatial"
	"github.com/AoWangg/mrra/internal/stats"
)

// PlaceStat is a visit-count entry for one place.
type PlaceStat struct {
	PlaceID string  `json:"place_id"`
	Count   int     `json:"count"`
	Share   float64 `json:"share"`
}

// Transition is one observed place-to-place move.
type Transition struct {
	FromPlace string    `json:"from_place"`
	ToPlace   string    `json:"to_place"`
	At        time.Time `json:"at"`
}

// LongTerm captures stable habits over the whole history. The activity
// center is the dwell-duration-weighted centroid of all stays, so a
// brief detour barely moves it.
type LongTerm struct {
	TopPlaces         []PlaceStat    `json:"top_places"`
	WeekdayTop        []PlaceStat    `json:"weekday_top"`
	WeekendTop        []PlaceStat    `json:"weekend_top"`
	PurposeCounts     map[string]int `json:"purpose_counts"`
	PlaceEntropy      float64        `json:"place_entropy"` // normalized, 0..1
	RadiusOfGyrationM float64        `json:"radius_of_gyration_m"`
	ActivityCenterLat float64        `json:"activity_center_lat"`
	ActivityCenterLon float64        `json:"activity_center_lon"`
	DwellMeanMin      float64        `json:"dwell_mean_min"`
	DwellP50Min       float64        `json:"dwell_p50_min"`
	DwellP90Min       float64        `json:"dwell_p90_min"`
}

// ShortTerm captures recent, time-of-day conditioned behavior.
type ShortTerm struct {
	ByTimeOfDay       map[string][]PlaceStat `json:"by_time_of_day"`
	RecentTransitions []Transition           `json:"recent_transitions"`
}

// Patterns is the per-user summary.
type Patterns struct {
	UserID    string    `json:"user_id"`
	Activity  int       `json:"activity_count"`
	LongTerm  LongTerm  `json:"long_term"`
	ShortTerm ShortTerm `json:"short_term"`
}

const (
	topPlaces         = 5
	recentTransitions = 10
)

// Generator derives patterns from purpose-assigned activities.
type Generator struct{}

// NewGenerator creates a pattern generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// LongShortPatterns builds the pattern summary for one user. Returns an
// error when the user has no activities in the history.
func (g *Generator) LongShortPatterns(userID string, activities []models.Activity) (*Patterns, error) {
	var acts []models.Activity
	for _, a := range activities {
		if a.UserID == userID {
			acts = append(acts, a)
		}
	}
	if len(acts) == 0 {
		return nil, fmt.Errorf("pattern: no activities for user %s", userID)
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].Start.Before(acts[j].Start) })

	p := &Patterns{UserID: userID, Activity: len(acts)}
	p.LongTerm = g.longTerm(acts)
	p.ShortTerm = g.shortTerm(acts)
	return p, nil
}

func (g *Generator) longTerm(acts []models.Activity) LongTerm {
	all := make(map[string]int)
	weekday := make(map[string]int)
	weekend := make(map[string]int)
	purposes := make(map[string]int)
	var durations []float64
	var points []spatial.Point

	for _, a := range acts {
		all[a.PlaceID]++
		wd := a.Start.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			weekend[a.PlaceID]++
		} else {
			weekday[a.PlaceID]++
		}
		if a.Purpose != "" {
			purposes[a.Purpose]++
		}
		durations = append(durations, a.DurationMin)
		points = append(points, spatial.Point{Lat: a.CenterLat, Lon: a.CenterLon})
	}

	counts := make([]float64, 0, len(all))
	for _, c := range all {
		counts = append(counts, float64(c))
	}
	center := spatial.WeightedCentroid(points, durations)

	return LongTerm{
		TopPlaces:         rank(all, topPlaces),
		WeekdayTop:        rank(weekday, topPlaces),
		WeekendTop:        rank(weekend, topPlaces),
		PurposeCounts:     purposes,
		PlaceEntropy:      stats.NormalizedEntropy(counts),
		RadiusOfGyrationM: spatial.RadiusOfGyration(points),
		ActivityCenterLat: center.Lat,
		ActivityCenterLon: center.Lon,
		DwellMeanMin:      stats.Mean(durations),
		DwellP50Min:       stats.Percentile(durations, 50),
		DwellP90Min:       stats.Percentile(durations, 90),
	}
}

func (g *Generator) shortTerm(acts []models.Activity) ShortTerm {
	buckets := map[string]map[string]int{
		"morning":   {},
		"afternoon": {},
		"evening":   {},
		"night":     {},
	}
	for _, a := range acts {
		buckets[timeOfDayBucket(a.Start.Hour())][a.PlaceID]++
	}

	byTOD := make(map[string][]PlaceStat, len(buckets))
	for name, counts := range buckets {
		byTOD[name] = rank(counts, topPlaces)
	}

	var trans []Transition
	for i := 1; i < len(acts); i++ {
		trans = append(trans, Transition{
			FromPlace: acts[i-1].PlaceID,
			ToPlace:   acts[i].PlaceID,
			At:        acts[i].Start,
		})
	}
	if len(trans) > recentTransitions {
		trans = trans[len(trans)-recentTransitions:]
	}

	return ShortTerm{ByTimeOfDay: byTOD, RecentTransitions: trans}
}

func timeOfDayBucket(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 23:
		return "evening"
	default:
		return "night"
	}
}

// rank converts a count map to the top-n PlaceStat list, ties broken by
// place id for stable output.
func rank(counts map[string]int, n int) []PlaceStat {
	total := 0
	for _, c := range counts {
		total += c
	}
	out := make([]PlaceStat, 0, len(counts))
	for id, c := range counts {
		share := 0.0
		if total > 0 {
			share = float64(c) / float64(total)
		}
		out = append(out, PlaceStat{PlaceID: id, Count: c, Share: share})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].PlaceID < out[j].PlaceID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
