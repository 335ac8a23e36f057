package telemetry

import (
	"context"

	"github.com/kestrelworks/chatloop/internal/metrics"
)

// EmitPromptFeatures records cheap local features of the user prompt that
// opened the current turn. Useful for correlating prompt shape with the
// provider-reported usage emitted at message stop.
func EmitPromptFeatures(ctx context.Context, user string) {
	if !ObserveEnabled() {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	f := metrics.CountFeatures(user)
	Emit("prompt_features", map[string]any{
		"turn_id":          turnID,
		"features_version": "1",
		"user": map[string]any{
			"bytes": f.Bytes,
			"runes": f.Runes,
			"words": f.Words,
			"lines": f.Lines,
		},
	})
}

// EmitUsage records provider-reported token usage for a completed stream.
func EmitUsage(ctx context.Context, inputTokens, outputTokens, totalTokens int) {
	if !ObserveEnabled() {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	Emit("usage", map[string]any{
		"turn_id": turnID,
		"usage": map[string]any{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"total_tokens":  totalTokens,
		},
	})
}
