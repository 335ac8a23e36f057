package messages

import (
	"encoding/json"
	"fmt"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason is the model's signal for why generation ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// Message is one conversation turn. Content order is semantically meaningful
// and must be preserved by anything that renders or forwards it.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a tagged union: exactly one variant is non-nil/non-empty.
// The zero value marks a block index that has not received its start or first
// delta yet.
type ContentBlock struct {
	Text       *string         `json:"text,omitempty"`
	Reasoning  *ReasoningBlock `json:"reasoningContent,omitempty"`
	ToolUse    *ToolUseBlock   `json:"toolUse,omitempty"`
	ToolResult *ToolResult     `json:"toolResult,omitempty"`
}

// Unset reports whether no variant has been populated.
func (b ContentBlock) Unset() bool {
	return b.Text == nil && b.Reasoning == nil && b.ToolUse == nil && b.ToolResult == nil
}

// ReasoningBlock holds model reasoning. ReasoningText and RedactedContent are
// mutually exclusive over the lifetime of one block: whichever form is
// finalized erases the other.
type ReasoningBlock struct {
	ReasoningText   *ReasoningText `json:"reasoningText,omitempty"`
	RedactedContent string         `json:"redactedContent,omitempty"`
}

// ReasoningText carries the visible reasoning form. Text and Signature are
// independent accumulators fed from separate delta fields.
type ReasoningText struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ToolUseBlock is an assistant request to invoke a tool.
//
// While the block is open, RawInput accumulates the input JSON text as UTF-8
// fragments. CloseInput parses it and sets Input exactly once; after that the
// block is complete and RawInput is cleared.
type ToolUseBlock struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input,omitempty"`

	RawInput string `json:"-"`
}

// Closed reports whether the input has been finalized into a parsed object.
func (b *ToolUseBlock) Closed() bool { return b.Input != nil }

// CloseInput parses the accumulated raw input and replaces it with the parsed
// object. An empty accumulator closes to an empty object (tools that take no
// parameters stream no input fragments). Any other unparseable input is a
// protocol-level failure surfaced to the caller.
func (b *ToolUseBlock) CloseInput() error {
	if b.Closed() {
		return fmt.Errorf("tool use %s: input already closed", b.ToolUseID)
	}
	if b.RawInput == "" {
		b.Input = map[string]any{}
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(b.RawInput), &obj); err != nil {
		return fmt.Errorf("tool use %s: parse input: %w", b.ToolUseID, err)
	}
	b.Input = obj
	b.RawInput = ""
	return nil
}

// ToolResult is the envelope correlating a tool's outcome back to the
// originating ToolUseBlock. Content holds exactly one element: the json form
// on success, the text form (a human-readable error trace) on failure.
type ToolResult struct {
	ToolUseID string              `json:"toolUseId"`
	Content   []ToolResultContent `json:"content"`
}

// ToolResultContent is one element of a tool result; json and text are
// mutually exclusive.
type ToolResultContent struct {
	JSON *ToolResultJSON `json:"json,omitempty"`
	Text string          `json:"text,omitempty"`
}

// ToolResultJSON wraps a successful tool return value.
type ToolResultJSON struct {
	Results any `json:"results"`
}

// NewToolResult wraps a successful tool return value.
func NewToolResult(toolUseID string, value any) ToolResult {
	return ToolResult{
		ToolUseID: toolUseID,
		Content:   []ToolResultContent{{JSON: &ToolResultJSON{Results: value}}},
	}
}

// NewToolErrorResult wraps a tool failure as error text for the model.
func NewToolErrorResult(toolUseID, trace string) ToolResult {
	return ToolResult{
		ToolUseID: toolUseID,
		Content:   []ToolResultContent{{Text: trace}},
	}
}

// IsError reports whether the result carries the error-text form.
func (r ToolResult) IsError() bool {
	return len(r.Content) == 1 && r.Content[0].JSON == nil
}

// NewUserMessage builds a plain text user turn.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{{Text: &text}}}
}

// NewToolResultMessage wraps tool results into the synthetic user turn that
// feeds them back to the model, one content entry per result.
func NewToolResultMessage(results []ToolResult) Message {
	blocks := make([]ContentBlock, 0, len(results))
	for i := range results {
		blocks = append(blocks, ContentBlock{ToolResult: &results[i]})
	}
	return Message{Role: RoleUser, Content: blocks}
}

// TextContent concatenates the message's text blocks with newlines.
func (m Message) TextContent() string {
	out := ""
	for _, b := range m.Content {
		if b.Text == nil || *b.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += *b.Text
	}
	return out
}

// ToolUses returns the message's tool-use blocks in block-index order.
func (m Message) ToolUses() []*ToolUseBlock {
	var uses []*ToolUseBlock
	for i := range m.Content {
		if tu := m.Content[i].ToolUse; tu != nil {
			uses = append(uses, tu)
		}
	}
	return uses
}
