package provider

import (
	"context"
	"encoding/json"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/invopop/jsonschema"
	"github.com/kestrelworks/chatloop/internal/wire"
	"github.com/kestrelworks/chatloop/messages"
)

const DefaultModel = string(anthropic.ModelClaudeSonnet4_20250514)

// NewAnthropicClient returns a client using API key from the env.
func NewAnthropicClient() *anthropic.Client {
	c := anthropic.NewClient()
	return &c
}

// AnthropicTransport adapts the SDK's SSE message stream to the wire event
// protocol, so the assembler consumes Anthropic responses the same way it
// consumes native streams.
type AnthropicTransport struct {
	Client *anthropic.Client
}

// Send implements Transport.
func (t *AnthropicTransport) Send(ctx context.Context, req Request) (Stream, error) {
	params, err := BuildParams(req)
	if err != nil {
		return nil, err
	}
	return &anthropicStream{stream: t.Client.Messages.NewStreaming(ctx, params)}, nil
}

// BuildParams converts a transport request into SDK message params.
func BuildParams(req Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.ThoughtBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThoughtBudget))
	}

	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toMessageParam(m))
	}
	for _, ts := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        ts.Name,
			Description: anthropic.String(ts.Description),
			InputSchema: toolInputSchema(ts.InputSchema),
		}})
	}
	return params, nil
}

func toMessageParam(m messages.Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
	for _, blk := range m.Content {
		switch {
		case blk.Text != nil:
			blocks = append(blocks, anthropic.NewTextBlock(*blk.Text))

		case blk.Reasoning != nil:
			// Unsigned reasoning is display-only and is not replayed.
			if rt := blk.Reasoning.ReasoningText; rt != nil {
				if rt.Signature != "" {
					blocks = append(blocks, anthropic.NewThinkingBlock(rt.Signature, rt.Text))
				}
			} else if blk.Reasoning.RedactedContent != "" {
				blocks = append(blocks, anthropic.NewRedactedThinkingBlock(blk.Reasoning.RedactedContent))
			}

		case blk.ToolUse != nil:
			blocks = append(blocks, anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    blk.ToolUse.ToolUseID,
				Name:  blk.ToolUse.Name,
				Input: blk.ToolUse.Input,
			}})

		case blk.ToolResult != nil:
			blocks = append(blocks, anthropic.NewToolResultBlock(
				blk.ToolResult.ToolUseID,
				toolResultText(*blk.ToolResult),
				blk.ToolResult.IsError(),
			))
		}
	}
	role := anthropic.MessageParamRoleUser
	if m.Role == messages.RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}
	return anthropic.MessageParam{Role: role, Content: blocks}
}

// toolResultText flattens a tool result payload into the string form the SDK
// helper expects: error text as-is, JSON payloads serialised.
func toolResultText(tr messages.ToolResult) string {
	out := ""
	for _, c := range tr.Content {
		if c.JSON != nil {
			if b, err := json.Marshal(c.JSON.Results); err == nil {
				out += string(b)
			}
			continue
		}
		out += c.Text
	}
	return out
}

// toolInputSchema re-expresses a reflected JSON schema as the SDK's input
// schema param. Reflection always produces an inlined object schema, so only
// properties and required carry over.
func toolInputSchema(s *jsonschema.Schema) anthropic.ToolInputSchemaParam {
	var out anthropic.ToolInputSchemaParam
	if s == nil {
		return out
	}
	b, err := json.Marshal(s)
	if err != nil {
		return out
	}
	var flat struct {
		Properties any      `json:"properties"`
		Required   []string `json:"required"`
	}
	if err := json.Unmarshal(b, &flat); err != nil {
		return out
	}
	out.Properties = flat.Properties
	out.Required = flat.Required
	return out
}

// anthropicStream converts SDK stream events to wire events. Stop reason and
// usage arrive on message_delta; they are buffered and released behind
// message_stop so consumers see metadata before messageStop, matching the
// native stream's ordering.
type anthropicStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	pending []wire.Event

	stop        messages.StopReason
	usage       wire.Usage
	sawUsage    bool
	eofReturned bool
}

func (s *anthropicStream) Next(ctx context.Context) (wire.Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.eofReturned {
			return wire.Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return wire.Event{}, err
		}

		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				return wire.Event{}, &TransportError{Err: err}
			}
			s.eofReturned = true
			return wire.Event{}, io.EOF
		}

		if ev, ok := s.convert(s.stream.Current()); ok {
			return ev, nil
		}
	}
}

func (s *anthropicStream) Close() error { return s.stream.Close() }

// convert maps one SDK event to at most one wire event, queueing extras in
// pending. ok=false means the event carried nothing to forward.
func (s *anthropicStream) convert(ev anthropic.MessageStreamEventUnion) (wire.Event, bool) {
	switch v := ev.AsAny().(type) {
	case anthropic.MessageStartEvent:
		s.usage.InputTokens = int(v.Message.Usage.InputTokens)
		return wire.Event{}, false

	case anthropic.ContentBlockStartEvent:
		switch v.ContentBlock.Type {
		case "tool_use":
			return wire.Event{ContentBlockStart: &wire.ContentBlockStart{
				ContentBlockIndex: int(v.Index),
				Start: wire.BlockStart{ToolUse: &wire.ToolUseStart{
					ToolUseID: v.ContentBlock.ID,
					Name:      v.ContentBlock.Name,
				}},
			}}, true
		case "redacted_thinking":
			// Redacted reasoning arrives whole on the start event, never as deltas.
			return wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{
				ContentBlockIndex: int(v.Index),
				Delta: wire.Delta{ReasoningContent: &wire.ReasoningDelta{
					RedactedContent: &v.ContentBlock.Data,
				}},
			}}, true
		}
		return wire.Event{}, false

	case anthropic.ContentBlockDeltaEvent:
		idx := int(v.Index)
		switch d := v.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{
				ContentBlockIndex: idx,
				Delta:             wire.Delta{Text: &d.Text},
			}}, true
		case anthropic.InputJSONDelta:
			if d.PartialJSON == "" {
				return wire.Event{}, false
			}
			return wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{
				ContentBlockIndex: idx,
				Delta:             wire.Delta{ToolUse: &wire.ToolUseDelta{Input: d.PartialJSON}},
			}}, true
		case anthropic.ThinkingDelta:
			return wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{
				ContentBlockIndex: idx,
				Delta:             wire.Delta{ReasoningContent: &wire.ReasoningDelta{Text: &d.Thinking}},
			}}, true
		case anthropic.SignatureDelta:
			return wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{
				ContentBlockIndex: idx,
				Delta:             wire.Delta{ReasoningContent: &wire.ReasoningDelta{Signature: &d.Signature}},
			}}, true
		default:
			return wire.Event{}, false
		}

	case anthropic.ContentBlockStopEvent:
		return wire.Event{ContentBlockStop: &wire.ContentBlockStop{ContentBlockIndex: int(v.Index)}}, true

	case anthropic.MessageDeltaEvent:
		if v.Delta.StopReason != "" {
			s.stop = messages.StopReason(v.Delta.StopReason)
		}
		s.usage.OutputTokens = int(v.Usage.OutputTokens)
		s.usage.TotalTokens = s.usage.InputTokens + s.usage.OutputTokens
		s.sawUsage = true
		return wire.Event{}, false

	case anthropic.MessageStopEvent:
		stop := s.stop
		if stop == "" {
			stop = messages.StopEndTurn
		}
		s.pending = append(s.pending, wire.Event{MessageStop: &wire.MessageStop{StopReason: stop}})
		if s.sawUsage {
			return wire.Event{Metadata: &wire.Metadata{Usage: s.usage}}, true
		}
		return wire.Event{}, false

	default:
		return wire.Event{}, false
	}
}
