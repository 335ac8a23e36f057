// Package windowing prepares the slice of transcript messages sent with each
// request so it fits a token budget without splitting tool-use pairs.
package windowing

import (
	"fmt"
	"os"

	"github.com/kestrelworks/chatloop/messages"
)

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
)

// Group describes a contiguous span of messages [Start, End) in the original slice.
// Kind indicates whether it is a singleton or a validated pair.
type Group struct {
	Kind  GroupKind
	Start int // inclusive index into msgs
	End   int // exclusive index into msgs
}

// GroupBlocks groups messages into atomic units that preserve tool-use pairs.
// Invariants:
//   - A pair is exactly two adjacent messages: assistant(toolUse+...) then
//     user(toolResult...).
//   - In the user message, all toolResult blocks must come first; text (if any)
//     comes after.
//   - Parallel completeness: all toolUse ids in the assistant must appear as
//     toolResult ids in the following user message's leading toolResult segment.
//   - Error-form tool results are treated the same for grouping.
func GroupBlocks(msgs []messages.Message) []Group {
	groups := make([]Group, 0, len(msgs))
	for i := 0; i < len(msgs); {
		m := msgs[i]
		if m.Role == messages.RoleAssistant {
			useIDs := collectToolUseIDs(m)
			if len(useIDs) > 0 {
				// Check adjacency and user validation.
				if i+1 < len(msgs) && msgs[i+1].Role == messages.RoleUser {
					valid, resultIDs := leadingToolResultIDsAndOrderingValid(msgs[i+1])
					if valid && coversAll(resultIDs, useIDs) && noExtraResults(resultIDs, useIDs) {
						groups = append(groups, Group{Kind: GroupPair, Start: i, End: i + 2})
						i += 2
						continue
					}
					// Reason-coded verbose logs (behind CHATLOOP_VERBOSE_WINDOW_LOGS)
					reason := ""
					switch {
					case !valid:
						reason = "ordering_invalid"
					case !coversAll(resultIDs, useIDs):
						reason = "missing_results"
					case !noExtraResults(resultIDs, useIDs):
						reason = "extra_results"
					default:
						reason = "unknown"
					}
					vlogf("exclude pair: reason=%s idx=%d", reason, i)
				} else {
					vlogf("exclude pair: reason=not_followed_by_user idx=%d", i)
				}
			}
		}
		// Fallback: singleton
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

// collectToolUseIDs returns the set of toolUse ids present in an assistant message.
func collectToolUseIDs(m messages.Message) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, blk := range m.Content {
		if tu := blk.ToolUse; tu != nil && tu.ToolUseID != "" {
			ids[tu.ToolUseID] = struct{}{}
		}
	}
	return ids
}

// leadingToolResultIDsAndOrderingValid inspects a user message and returns:
//   - valid=false if any toolResult block appears after a non-result block
//   - resultIDs: the ids of toolResult blocks in the leading toolResult segment.
//
// Text after the leading toolResult segment is allowed and ignored for id collection.
func leadingToolResultIDsAndOrderingValid(m messages.Message) (valid bool, resultIDs map[string]struct{}) {
	resultIDs = make(map[string]struct{})
	seenNonResult := false
	for _, blk := range m.Content {
		if tr := blk.ToolResult; tr != nil {
			if seenNonResult {
				// toolResult after non-result: invalid ordering
				return false, resultIDs
			}
			if tr.ToolUseID != "" {
				resultIDs[tr.ToolUseID] = struct{}{}
			}
			continue
		}
		// once we see the first non-toolResult block, we mark the boundary
		seenNonResult = true
	}
	return true, resultIDs
}

// coversAll checks that every id in required is present in have.
func coversAll(have, required map[string]struct{}) bool {
	for id := range required {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}

// noExtraResults enforces that the user didn't return extra results that do
// not correspond to any toolUse in the assistant turn. Keeping this strict
// avoids mismatches and simplifies downstream logic.
func noExtraResults(have, allowed map[string]struct{}) bool {
	for id := range have {
		if _, ok := allowed[id]; !ok {
			return false
		}
	}
	return true
}

// minimal verbose logging when CHATLOOP_VERBOSE_WINDOW_LOGS=1
var verbose = os.Getenv("CHATLOOP_VERBOSE_WINDOW_LOGS") == "1"

func vlogf(format string, args ...any) {
	if verbose {
		fmt.Printf("[windowing] "+format+"\n", args...)
	}
}
