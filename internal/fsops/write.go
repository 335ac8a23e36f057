package fsops

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrelworks/chatloop/internal/safety"
)

// ErrNoMatch is returned by ReplaceInFile when a non-empty search string
// matches nothing in the file.
var ErrNoMatch = errors.New("search text not found in file")

// WriteFile writes content to a file addressed by a relative path under the
// sandbox write root, creating parent directories as needed.
func WriteFile(relPath, content string) error {
	_, writeRoot, err := getRoots()
	if err != nil {
		return err
	}

	absPath, err := safety.ValidateWritePath(writeRoot, relPath)
	if err != nil {
		return err // propagate ToolError unchanged
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(absPath, []byte(content), 0o644)
}

// ReplaceInFile substitutes every occurrence of oldStr with newStr in the
// file at relPath and writes the result back. With an empty oldStr and a
// missing file, the file is created holding newStr; created reports that
// case. A non-empty oldStr matching nothing returns ErrNoMatch.
func ReplaceInFile(relPath, oldStr, newStr string) (created bool, err error) {
	content, err := ReadFile(relPath)
	if err != nil {
		if oldStr == "" && IsNotExist(err) {
			if werr := WriteFile(relPath, newStr); werr != nil {
				return false, werr
			}
			return true, nil
		}
		return false, err
	}

	updated := strings.Replace(content, oldStr, newStr, -1)
	if updated == content && oldStr != "" {
		return false, ErrNoMatch
	}
	return false, WriteFile(relPath, updated)
}
