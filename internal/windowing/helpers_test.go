package windowing_test

import (
	"github.com/kestrelworks/chatloop/internal/windowing"
	"github.com/kestrelworks/chatloop/messages"
)

// Text block constructor
func T(text string) messages.ContentBlock {
	return messages.ContentBlock{Text: &text}
}

// Tool-use block constructor
func TU(id string) messages.ContentBlock {
	return messages.ContentBlock{ToolUse: &messages.ToolUseBlock{ToolUseID: id, Input: map[string]any{}}}
}

// Tool-result (no payload), with optional error flag - used by grouping tests
// where payload length is irrelevant
func TR(id string, isErr bool) messages.ContentBlock {
	var tr messages.ToolResult
	if isErr {
		tr = messages.NewToolErrorResult(id, "err")
	} else {
		tr = messages.NewToolResult(id, nil)
	}
	return messages.ContentBlock{ToolResult: &tr}
}

// Tool-result (text payload) constructor - preferred in counter tests for deterministic sizing
func TRText(id, s string) messages.ContentBlock {
	tr := messages.NewToolErrorResult(id, s)
	return messages.ContentBlock{ToolResult: &tr}
}

// Tool-result (json payload) constructor - used by counter tests for serialised payload sizing
func TRJSON(id string, v any) messages.ContentBlock {
	tr := messages.NewToolResult(id, v)
	return messages.ContentBlock{ToolResult: &tr}
}

// Assistant message constructor
func Asst(blocks ...messages.ContentBlock) messages.Message {
	return messages.Message{Role: messages.RoleAssistant, Content: blocks}
}

// User message constructor
func User(blocks ...messages.ContentBlock) messages.Message {
	return messages.Message{Role: messages.RoleUser, Content: blocks}
}

// Intervening returns a message that simply breaks adjacency between
// assistant(toolUse) and the expected next user(toolResult).
func Intervening(text string) messages.Message {
	return messages.Message{Role: messages.RoleAssistant, Content: []messages.ContentBlock{T(text)}}
}

// groupsEqual is a small utility used by grouping tests.
func groupsEqual(got, want []windowing.Group) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i].Kind != want[i].Kind || got[i].Start != want[i].Start || got[i].End != want[i].End {
			return false
		}
	}
	return true
}
