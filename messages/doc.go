// Package messages defines the conversation data model.
//
// Model:
//   - Message: role + ordered content blocks; block order is addressed by the
//     wire protocol's block index, so the content slice may be sparse while a
//     message is being assembled.
//   - ContentBlock: tagged union (text, reasoningContent, toolUse,
//     toolResult); exactly one variant set, zero value means "slot not
//     started yet".
//   - ToolUseBlock input is two-phase: a raw JSON string accumulator while
//     the block is open, replaced by the parsed object exactly once at close.
package messages
