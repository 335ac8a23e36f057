package fsops

import (
	"os"
	"sort"

	"github.com/kestrelworks/chatloop/internal/safety"
)

// ListFiles lists non-recursive directory entries for a relative directory
// path under the sandbox. Directories are suffixed with "/" and the result
// is sorted so pagination over it is stable.
func ListFiles(relDir string) ([]string, error) {
	readRoot, _, err := getRoots()
	if err != nil {
		return nil, err
	}

	if relDir == "" {
		relDir = "."
	}
	absDir, err := safety.ValidateRelPath(readRoot, relDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
