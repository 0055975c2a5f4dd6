package activity

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AoWangg/mrra/internal/llm"
	"github.com/AoWangg/mrra/internal/models"
)

// DefaultAssignConcurrency bounds parallel model calls during purpose
// assignment.
const DefaultAssignConcurrency = 8

// DefaultAssignTimeout is the per-activity model call deadline.
const DefaultAssignTimeout = 30 * time.Second

// PurposeAssigner labels each activity with a semantic purpose. The
// heuristic rule set always produces a label; when a model client is
// supplied, each activity may be refined by a prompt built from its
// spatial and temporal context. A failed or malformed model response
// falls back to the heuristic result, so assignment never fails a batch.
type PurposeAssigner struct {
	client      llm.Client // nil for heuristic-only assignment
	concurrency int
	timeout     time.Duration
}

// NewPurposeAssigner creates an assigner. client may be nil; concurrency
// <= 0 selects the default.
func NewPurposeAssigner(client llm.Client, concurrency int) *PurposeAssigner {
	if concurrency <= 0 {
		concurrency = DefaultAssignConcurrency
	}
	return &PurposeAssigner{
		client:      client,
		concurrency: concurrency,
		timeout:     DefaultAssignTimeout,
	}
}

// Assign returns a copy of activities with Purpose set on every entry.
// Input order is preserved. Model calls for different activities run in
// parallel up to the configured concurrency bound.
func (a *PurposeAssigner) Assign(ctx context.Context, activities []models.Activity) []models.Activity {
	out := make([]models.Activity, len(activities))
	copy(out, activities)

	if a.client == nil {
		for i := range out {
			out[i].Purpose = HeuristicPurpose(out[i])
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	refined := 0
	for i := range out {
		i := i
		g.Go(func() error {
			out[i].Purpose = a.resolveOne(gctx, out[i])
			return nil
		})
	}
	// Workers never return errors; each activity falls back on its own.
	_ = g.Wait()

	for i := range out {
		if out[i].Purpose != HeuristicPurpose(out[i]) {
			refined++
		}
	}
	log.Printf("[PurposeAssigner] Assigned %d purposes (%d model-refined)", len(out), refined)
	return out
}

// resolveOne asks the model for a label and falls back to the heuristic
// on any failure.
func (a *PurposeAssigner) resolveOne(ctx context.Context, act models.Activity) string {
	fallback := HeuristicPurpose(act)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Complete(callCtx, purposePrompt(act, fallback))
	if err != nil {
		log.Printf("[PurposeAssigner] Model call failed for %s@%s, using heuristic: %v", act.UserID, act.PlaceID, err)
		return fallback
	}

	label := strings.ToLower(strings.TrimSpace(resp))
	label = strings.Trim(label, "\"'.")
	if !models.ValidPurpose(label) {
		log.Printf("[PurposeAssigner] Unrecognized label %q for %s@%s, using heuristic", label, act.UserID, act.PlaceID)
		return fallback
	}
	return label
}

func purposePrompt(act models.Activity, hint string) string {
	return fmt.Sprintf(
		"A user stayed at place %s (%.5f, %.5f) from %s to %s (%.1f minutes).\n"+
			"Classify the purpose of this stay as exactly one of: %s.\n"+
			"A rule-based guess is %q. Reply with the single label only.",
		act.PlaceID, act.CenterLat, act.CenterLon,
		act.Start.Format("Mon 2006-01-02 15:04"), act.End.Format("Mon 2006-01-02 15:04"),
		act.DurationMin, strings.Join(models.AllPurposes, ", "), hint,
	)
}

// HeuristicPurpose maps an activity's duration and time-of-day to a
// purpose label. Rules ordered from most to least specific.
func HeuristicPurpose(act models.Activity) string {
	hour := act.Start.Hour()
	weekday := act.Start.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday
	isNight := hour >= 22 || hour < 6
	isOvernight := act.Start.Day() != act.End.Day()
	hours := act.DurationMin / 60.0

	// Residence: overnight or long night stay
	if (isOvernight && hours >= 6) || (isNight && hours >= 4) {
		return models.PurposeResidence
	}

	// Work: weekday daytime, long stay
	if !isWeekend && hour >= 8 && hour <= 18 && hours >= 4 {
		return models.PurposeWork
	}

	// Dining: meal hours, short-to-medium stay
	mealHour := (hour >= 11 && hour <= 13) || (hour >= 17 && hour <= 20)
	if mealHour && hours >= 0.5 && hours <= 2 {
		return models.PurposeDining
	}

	// Errand: brief daytime stop
	if !isNight && hours < 1.5 {
		return models.PurposeErrand
	}

	return models.PurposeOther
}
