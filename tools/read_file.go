package tools

import (
	"context"
	"strings"

	"github.com/kestrelworks/chatloop/internal/fsops"
)

type ReadFileInput struct {
	Path   string `json:"path" jsonschema_description:"Relative file path."`
	Offset int    `json:"offset,omitempty" jsonschema_description:"Line offset (0-based) to start reading from."`
	Limit  int    `json:"limit,omitempty" jsonschema_description:"Maximum lines to return from offset (default 200)."`
}

const truncationSentinel = "-- truncated; use offset/limit to fetch more --\n"

var ReadFileDefinition = ToolDefinition{
	Name:        "read_file",
	Description: "Read the contents of a file addressed by a relative file path within the workspace. Directory paths and unsafe paths are rejected.",
	InputSchema: GenerateSchema[ReadFileInput](),
	Function:    ReadFile,
}

// ReadFile returns one page of a file via fsops (sandbox/policy plus
// pagination caps). A truncated page carries a trailing sentinel so the
// model knows to page further.
func ReadFile(ctx context.Context, input map[string]any) (any, error) {
	var in ReadFileInput
	if err := Bind(input, &in); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := fsops.ReadPage(in.Path, in.Offset, in.Limit)
	if err != nil {
		return nil, err
	}

	out := page.Content
	if page.Truncated {
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += truncationSentinel
	}
	return out, nil
}
