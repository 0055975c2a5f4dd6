package agent

import (
	"github.com/AoWangg/mrra/internal/models"
)

// AggregationMethod names the consensus protocol in result payloads.
const AggregationMethod = "confidence_weighted_voting"

// weightedWinner combines votes via confidence-weighted voting: each
// candidate's score is the sum of confidences of the sub-agents that
// selected it. Ties break by the highest individual confidence, then by
// candidate rank in the retrieved option order. Returns the winning
// node id and whether the vote was unanimous.
func weightedWinner(votes []models.AgentVote, options []models.RetrievalOption) (string, bool) {
	if len(votes) == 0 {
		return "", false
	}

	sums := make(map[string]float64)
	maxConf := make(map[string]float64)
	for _, v := range votes {
		sums[v.SelectedNodeID] += v.Confidence
		if v.Confidence > maxConf[v.SelectedNodeID] {
			maxConf[v.SelectedNodeID] = v.Confidence
		}
	}

	// Options are in retriever rank order, so the first candidate seen
	// at a given (sum, maxConf) level wins the final tie-break.
	winner := ""
	for _, opt := range options {
		sum, voted := sums[opt.NodeID]
		if !voted {
			continue
		}
		if winner == "" ||
			sum > sums[winner] ||
			(sum == sums[winner] && maxConf[opt.NodeID] > maxConf[winner]) {
			winner = opt.NodeID
		}
	}

	unanimous := true
	for _, v := range votes {
		if v.SelectedNodeID != votes[0].SelectedNodeID {
			unanimous = false
			break
		}
	}
	return winner, unanimous
}
