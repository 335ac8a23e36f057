package windowing

import (
	"encoding/json"

	"github.com/kestrelworks/chatloop/internal/metrics"
	"github.com/kestrelworks/chatloop/messages"
)

// TokenCounter estimates input-token cost for messages or groups.
type TokenCounter interface {
	CountMessage(m messages.Message) int
	CountGroup(g Group, all []messages.Message) int
}

// HeuristicCounter is the current default deterministic estimator.
// Rules:
//   - text blocks: rune count of the text
//   - toolResult blocks: rune count of the error text, or of the marshalled
//     JSON payload for the success form
//   - other blocks (reasoning, toolUse) contribute overhead only
//
// A small per-block overhead accounts for minimal formatting.
type HeuristicCounter struct{}

// Fixed per-block overhead for deterministic counts; changing this requires updating the guard test.
const blockOverhead = 4

func (HeuristicCounter) CountMessage(m messages.Message) int {
	total := 0
	for _, blk := range m.Content {
		total += countBlock(blk)
	}
	return total
}

func (h HeuristicCounter) CountGroup(g Group, all []messages.Message) int {
	total := 0
	for i := g.Start; i < g.End && i < len(all); i++ {
		total += h.CountMessage(all[i])
	}
	return total
}

func countBlock(blk messages.ContentBlock) int {
	if blk.Text != nil {
		return metrics.CountFeatures(*blk.Text).TokenEstimate() + blockOverhead
	}

	if tr := blk.ToolResult; tr != nil {
		subtotal := 0
		for _, c := range tr.Content {
			if c.JSON != nil {
				// Deterministic: count the serialised payload the model will see.
				if b, err := json.Marshal(c.JSON.Results); err == nil {
					subtotal += metrics.CountFeatures(string(b)).TokenEstimate()
				} else {
					vlogf("counter: unmarshallable_tool_result payload=%T using=overhead_only", c.JSON.Results)
				}
				continue
			}
			subtotal += metrics.CountFeatures(c.Text).TokenEstimate()
		}
		return subtotal + blockOverhead
	}

	// Reasoning and toolUse blocks count overhead only in this minimal
	// heuristic. Can be extended later if required.
	return blockOverhead
}
