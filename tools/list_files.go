package tools

import (
	"context"

	"github.com/kestrelworks/chatloop/internal/fsops"
)

type ListFilesInput struct {
	Path   string `json:"path,omitempty" jsonschema_description:"Optional relative directory path. Defaults to the workspace root."`
	Offset int    `json:"offset,omitempty" jsonschema_description:"Entry offset (0-based) to start listing from."`
	Limit  int    `json:"limit,omitempty" jsonschema_description:"Maximum entries to return from offset (default 200)."`
}

const defaultListFilesLimit = 200

var ListFilesDefinition = ToolDefinition{
	Name:        "list_files",
	Description: "List files and directories at a given relative path (non-recursive). Directories carry a trailing slash. Entries are sorted and paged.",
	InputSchema: GenerateSchema[ListFilesInput](),
	Function:    ListFiles,
}

type listFilesResult struct {
	Entries   []string `json:"entries"`
	Truncated bool     `json:"truncated,omitempty"`
}

func ListFiles(ctx context.Context, input map[string]any) (any, error) {
	var in ListFilesInput
	if err := Bind(input, &in); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := fsops.ListFiles(in.Path)
	if err != nil {
		return nil, err
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultListFilesLimit
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(entries) {
		offset = len(entries)
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}

	return listFilesResult{
		Entries:   entries[offset:end],
		Truncated: end < len(entries),
	}, nil
}
