// Package tools defines the tool invocation contract and the built-in file
// tools.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - Registry: an explicitly injected name→definition mapping (no
//     process-wide singleton), so tests can swap in fakes.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - File tools: read_file, list_files (non-recursive), edit_file.
//
// Handlers receive the already-parsed input object and must be safe to run
// concurrently with sibling tool calls from the same turn.
package tools
