package fsops

import (
	"os"
	"strings"

	"github.com/kestrelworks/chatloop/internal/safety"
)

// Caps keeping pages predictably small for the model. Pagination is
// line-oriented with per-line and per-page rune clamps.
const (
	defaultPageLines = 200
	maxLineRunes     = 2000
	pageRuneCap      = 12_000
)

// Page is one bounded slice of a file. Truncated reports whether any content
// was left out, by pagination or by clamping.
type Page struct {
	Content   string
	Truncated bool
}

// resolveFile validates relPath against the sandbox read root and rejects
// directories.
func resolveFile(relPath string) (string, error) {
	readRoot, _, err := getRoots()
	if err != nil {
		return "", err
	}

	absPath, err := safety.ValidateRelPath(readRoot, relPath)
	if err != nil {
		return "", err // propagate ToolError or standard error
	}

	fi, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", safety.ToolError{Code: "ERR_NOT_A_FILE", Message: "path is a directory"}
	}
	return absPath, nil
}

// ReadFile reads the whole file addressed by a relative path under the
// sandbox read root.
func ReadFile(relPath string) (string, error) {
	absPath, err := resolveFile(relPath)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(absPath)
	if err != nil {
		return "", err // standard error for I/O issues (not policy)
	}
	return string(b), nil
}

// ReadPage reads lines [offset, offset+limit) of the file at relPath,
// clamping overlong lines and the page as a whole. limit <= 0 selects the
// default page size.
func ReadPage(relPath string, offset, limit int) (Page, error) {
	content, err := ReadFile(relPath)
	if err != nil {
		return Page{}, err
	}

	if limit <= 0 {
		limit = defaultPageLines
	}
	if offset < 0 {
		offset = 0
	}

	lines := strings.Split(content, "\n")
	if offset > len(lines) {
		offset = len(lines)
	}
	end := offset + limit
	if end > len(lines) {
		end = len(lines)
	}

	truncated := end < len(lines)
	for i := offset; i < end; i++ {
		if clamped, cut := clampRunes(lines[i], maxLineRunes); cut {
			lines[i] = clamped
			truncated = true
		}
	}

	out := strings.Join(lines[offset:end], "\n")
	if clamped, cut := clampRunes(out, pageRuneCap); cut {
		out = clamped
		truncated = true
	}
	return Page{Content: out, Truncated: truncated}, nil
}

// clampRunes limits s to at most n runes, reporting whether anything was cut.
func clampRunes(s string, n int) (string, bool) {
	if n <= 0 {
		return "", len(s) > 0
	}
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}
