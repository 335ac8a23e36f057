package messages

// Clone returns a deep copy of the message. Snapshots handed to a renderer
// must not alias the assembler's internal state, which keeps mutating.
func (m Message) Clone() Message {
	out := Message{Role: m.Role}
	if m.Content == nil {
		return out
	}
	out.Content = make([]ContentBlock, len(m.Content))
	for i, b := range m.Content {
		out.Content[i] = b.clone()
	}
	return out
}

func (b ContentBlock) clone() ContentBlock {
	var out ContentBlock
	if b.Text != nil {
		t := *b.Text
		out.Text = &t
	}
	if b.Reasoning != nil {
		r := ReasoningBlock{RedactedContent: b.Reasoning.RedactedContent}
		if b.Reasoning.ReasoningText != nil {
			rt := *b.Reasoning.ReasoningText
			r.ReasoningText = &rt
		}
		out.Reasoning = &r
	}
	if b.ToolUse != nil {
		tu := ToolUseBlock{
			ToolUseID: b.ToolUse.ToolUseID,
			Name:      b.ToolUse.Name,
			RawInput:  b.ToolUse.RawInput,
		}
		if b.ToolUse.Input != nil {
			tu.Input = deepCopyMap(b.ToolUse.Input)
		}
		out.ToolUse = &tu
	}
	if b.ToolResult != nil {
		tr := ToolResult{ToolUseID: b.ToolResult.ToolUseID}
		if b.ToolResult.Content != nil {
			tr.Content = make([]ToolResultContent, len(b.ToolResult.Content))
			for i, c := range b.ToolResult.Content {
				cc := ToolResultContent{Text: c.Text}
				if c.JSON != nil {
					cc.JSON = &ToolResultJSON{Results: deepCopyValue(c.JSON.Results)}
				}
				tr.Content[i] = cc
			}
		}
		out.ToolResult = &tr
	}
	return out
}

// deepCopyValue copies the shapes json.Unmarshal produces into any:
// objects, arrays, and scalars. Other values are assumed immutable.
func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}
