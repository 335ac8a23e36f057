package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/kestrelworks/chatloop/internal/fsops"
)

type EditFileInput struct {
	Path   string `json:"path" jsonschema_description:"Relative file path."`
	OldStr string `json:"old_str" jsonschema_description:"Text to search for; must match exactly. Differs from new_str."`
	NewStr string `json:"new_str" jsonschema_description:"Replacement text."`
}

var EditFileDefinition = ToolDefinition{
	Name: "edit_file",
	Description: "Replace occurrences of old_str with new_str in the file at the given relative path. " +
		"If the file does not exist and old_str is empty, the file is created with new_str as its contents. " +
		"Writes are confined to the workspace write root.",
	InputSchema: GenerateSchema[EditFileInput](),
	Function:    EditFile,
}

func EditFile(ctx context.Context, input map[string]any) (any, error) {
	var in EditFileInput
	if err := Bind(input, &in); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Path == "" || in.OldStr == in.NewStr {
		return nil, fmt.Errorf("invalid input parameters")
	}

	created, err := fsops.ReplaceInFile(in.Path, in.OldStr, in.NewStr)
	if err != nil {
		if errors.Is(err, fsops.ErrNoMatch) {
			return nil, fmt.Errorf("old_str not found in file")
		}
		return nil, err
	}
	if created {
		return fmt.Sprintf("Successfully created file %s", in.Path), nil
	}
	return "OK", nil
}
