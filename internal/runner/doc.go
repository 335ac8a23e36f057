// Package runner coordinates complete conversational turns: it sends the
// transcript through a provider transport, assembles the streamed response,
// executes any requested tools, and loops until the model stops on its own.
//
// Invariant:
//   - tool_use and the corresponding tool_result are kept adjacent within a turn
//     to preserve execution context and simplify follow-up reasoning.
//
// Flow:
//
//	user(text) -> assistant(tool_use) -> user(tool_result) -> assistant(text)
package runner
