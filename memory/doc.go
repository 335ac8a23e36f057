// Package memory persists the conversation transcript between runs.
//
// Persistence model:
//   - The full structured transcript is stored, including tool_use /
//     tool_result pairs and signed reasoning blocks, so a resumed session
//     sends the model the same history it saw before.
//   - The session file lives under the artifacts directory, which the file
//     tools are denied access to.
package memory
