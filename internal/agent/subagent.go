package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AoWangg/mrra/internal/llm"
	"github.com/AoWangg/mrra/internal/models"
)

// SubAgentSpec configures one reasoning unit: a name and the prompt
// framing its perspective on the candidate options.
type SubAgentSpec struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// DefaultSubAgents returns the standard reasoning panel.
func DefaultSubAgents() []SubAgentSpec {
	return []SubAgentSpec{
		{
			Name:   "temporal",
			Prompt: "Reason about the time of day and weekday: which candidate does this user visit at times like the reference time?",
		},
		{
			Name:   "spatial",
			Prompt: "Reason about spatial continuity: which candidate is the most natural move from the user's current location?",
		},
		{
			Name:   "habitual",
			Prompt: "Reason about routine: which candidate matches the user's recurring visit habits overall?",
		},
	}
}

// subAgent wraps a spec with the model client. Each call selects exactly
// one option id plus a confidence; raw coordinates are never accepted,
// which keeps selections grounded in retrieved candidates.
type subAgent struct {
	name   string
	prompt string
	client llm.Client
}

// selection is the structured answer a sub-agent must produce.
type selection struct {
	Selection  string   `json:"selection"`
	Confidence *float64 `json:"confidence"`
}

func (a *subAgent) Select(ctx context.Context, taskDesc string, options []models.RetrievalOption, reflection string) (models.AgentVote, error) {
	resp, err := a.client.Complete(ctx, a.buildPrompt(taskDesc, options, reflection))
	if err != nil {
		return models.AgentVote{}, fmt.Errorf("sub-agent %s: %w", a.name, err)
	}

	sel, err := parseSelection(resp)
	if err != nil {
		return models.AgentVote{}, fmt.Errorf("sub-agent %s: %w", a.name, err)
	}
	if !optionExists(options, sel.Selection) {
		return models.AgentVote{}, fmt.Errorf("sub-agent %s: selection %q is not a retrieved candidate", a.name, sel.Selection)
	}

	conf := 0.5
	if sel.Confidence != nil {
		conf = *sel.Confidence
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return models.AgentVote{
		SubAgent:       a.name,
		SelectedNodeID: sel.Selection,
		Confidence:     conf,
	}, nil
}

func (a *subAgent) buildPrompt(taskDesc string, options []models.RetrievalOption, reflection string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", taskDesc)
	fmt.Fprintf(&b, "Perspective: %s\n\nOptions:\n", a.prompt)
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. id=%s score=%.4f", i+1, opt.NodeID, opt.Score)
		if lat, ok := opt.Metadata["lat"].(float64); ok {
			if lon, ok := opt.Metadata["lon"].(float64); ok {
				fmt.Fprintf(&b, " at (%.5f, %.5f)", lat, lon)
			}
		}
		b.WriteString("\n")
	}
	if reflection != "" {
		fmt.Fprintf(&b, "\nPrevious round consensus leaned toward %s; reconsider whether you agree.\n", reflection)
	}
	b.WriteString("\nPick exactly one option id from the list. Do not output coordinates.\n")
	b.WriteString(`Answer with JSON only: {"selection": "<option id>", "confidence": <0..1>}`)
	return b.String()
}

// parseSelection extracts the JSON object from a possibly chatty model
// response.
func parseSelection(resp string) (selection, error) {
	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start < 0 || end <= start {
		return selection{}, fmt.Errorf("no JSON object in response")
	}
	var sel selection
	if err := json.Unmarshal([]byte(resp[start:end+1]), &sel); err != nil {
		return selection{}, fmt.Errorf("malformed selection: %w", err)
	}
	if sel.Selection == "" {
		return selection{}, fmt.Errorf("empty selection")
	}
	return sel, nil
}

func optionExists(options []models.RetrievalOption, id string) bool {
	for _, o := range options {
		if o.NodeID == id {
			return true
		}
	}
	return false
}

// callWithTimeout runs one sub-agent selection under the per-call
// deadline.
func (a *subAgent) callWithTimeout(ctx context.Context, timeout time.Duration, taskDesc string, options []models.RetrievalOption, reflection string) (models.AgentVote, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return a.Select(callCtx, taskDesc, options, reflection)
}
