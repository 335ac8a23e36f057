// Package wire defines the inference endpoint's streaming event protocol: a
// newline-delimited sequence of JSON objects, each carrying exactly one of the
// known event tags. Anything else is a protocol error, never silently
// ignored.
package wire

import (
	"fmt"

	"github.com/kestrelworks/chatloop/messages"
)

// Event is the closed tagged union of wire events. Exactly one field is
// non-nil on a valid event.
type Event struct {
	ContentBlockStart *ContentBlockStart `json:"contentBlockStart,omitempty"`
	ContentBlockDelta *ContentBlockDelta `json:"contentBlockDelta,omitempty"`
	ContentBlockStop  *ContentBlockStop  `json:"contentBlockStop,omitempty"`
	MessageStop       *MessageStop       `json:"messageStop,omitempty"`
	Metadata          *Metadata          `json:"metadata,omitempty"`
}

// Validate rejects events matching none (or more than one) of the known tags.
func (e Event) Validate() error {
	n := 0
	if e.ContentBlockStart != nil {
		n++
	}
	if e.ContentBlockDelta != nil {
		n++
	}
	if e.ContentBlockStop != nil {
		n++
	}
	if e.MessageStop != nil {
		n++
	}
	if e.Metadata != nil {
		n++
	}
	switch n {
	case 1:
		return nil
	case 0:
		return &ProtocolError{Reason: "event matches no known tag"}
	default:
		return &ProtocolError{Reason: "event matches multiple tags"}
	}
}

// ContentBlockStart opens a block at a wire-addressed index. Only tool-use
// blocks carry a start header; text and reasoning blocks begin implicitly
// with their first delta.
type ContentBlockStart struct {
	ContentBlockIndex int        `json:"contentBlockIndex"`
	Start             BlockStart `json:"start"`
}

// BlockStart is the start header payload.
type BlockStart struct {
	ToolUse *ToolUseStart `json:"toolUse,omitempty"`
}

// ToolUseStart announces a tool invocation block.
type ToolUseStart struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
}

// ContentBlockDelta carries an increment for the block at the given index.
type ContentBlockDelta struct {
	ContentBlockIndex int   `json:"contentBlockIndex"`
	Delta             Delta `json:"delta"`
}

// Delta is the per-kind increment; exactly one field is set.
type Delta struct {
	Text             *string         `json:"text,omitempty"`
	ReasoningContent *ReasoningDelta `json:"reasoningContent,omitempty"`
	ToolUse          *ToolUseDelta   `json:"toolUse,omitempty"`
}

// ReasoningDelta increments a reasoning block. Pointer fields distinguish
// "absent" from "empty fragment"; at most one is expected per event.
type ReasoningDelta struct {
	Text            *string `json:"text,omitempty"`
	Signature       *string `json:"signature,omitempty"`
	RedactedContent *string `json:"redactedContent,omitempty"`
}

// ToolUseDelta carries a raw JSON input fragment for an open tool-use block.
type ToolUseDelta struct {
	Input string `json:"input"`
}

// ContentBlockStop closes the block at the given index.
type ContentBlockStop struct {
	ContentBlockIndex int `json:"contentBlockIndex"`
}

// MessageStop ends the assistant message.
type MessageStop struct {
	StopReason messages.StopReason `json:"stopReason"`
}

// Metadata carries usage accounting that accompanies the stream. It is
// forwarded to an accounting sink and never affects message assembly.
type Metadata struct {
	Usage Usage `json:"usage"`
}

// Usage is token accounting for one model response.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// ProtocolError reports a malformed top-level event or an event shape outside
// the known union. It aborts the turn; it is distinct from a tool's own
// failure.
type ProtocolError struct {
	Reason string
	Raw    string
}

func (e *ProtocolError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error: %s: %.120q", e.Reason, e.Raw)
}
