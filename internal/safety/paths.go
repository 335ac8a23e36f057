// Package safety provides helpers for sandboxed file access.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ToolError is a machine-readable error body surfaced back to the model as JSON.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool_result payloads small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// InitSandboxRoot resolves absolute sandbox roots for read and write operations.
func InitSandboxRoot(readRoot, writeRoot string) (absRead string, absWrite string, err error) {
	// Default readRoot to CWD when empty
	if readRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("getwd: %w", err)
		}
		readRoot = cwd
	}

	// Default writeRoot to readRoot when empty
	if writeRoot == "" {
		writeRoot = readRoot
	}

	readRoot, err = filepath.Abs(readRoot)
	if err != nil {
		return "", "", fmt.Errorf("abs(readRoot): %w", err)
	}
	writeRoot, err = filepath.Abs(writeRoot)
	if err != nil {
		return "", "", fmt.Errorf("abs(writeRoot): %w", err)
	}

	// Resolve symlinks where possible so future boundary checks are reliable.
	// If EvalSymlinks fails (e.g., non-existent), fall back to the absolute path as-is.
	if r, err := filepath.EvalSymlinks(readRoot); err == nil {
		readRoot = r
	}
	if w, err := filepath.EvalSymlinks(writeRoot); err == nil {
		writeRoot = w
	}

	return readRoot, writeRoot, nil
}

// resolveUnderRoot resolves relPath against absRoot and returns the absolute
// candidate path plus its root-relative slash form. It rejects absolute inputs,
// parent traversal, and symlink escapes with a ToolError.
func resolveUnderRoot(absRoot, relPath string) (abs string, relSlash string, err error) {
	// Reject absolute inputs early
	if filepath.IsAbs(relPath) {
		return "", "", ToolError{Code: "ERR_PATH_OUTSIDE_SANDBOX", Message: "absolute paths are not allowed"}
	}

	cleaned := filepath.Clean(relPath)
	if cleaned == "" {
		cleaned = "."
	}

	candidate := filepath.Join(absRoot, cleaned)

	// Best-effort symlink resolution.
	// 1) Resolve the whole candidate if it exists.
	// 2) Otherwise, resolve the deepest existing ancestor (the parent dir)
	//    and rejoin the final segment. This reveals escapes via a symlinked parent.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else {
		parent := filepath.Dir(candidate)
		if resolvedParent, err2 := filepath.EvalSymlinks(parent); err2 == nil {
			candidate = filepath.Join(resolvedParent, filepath.Base(candidate))
		}
	}

	// Boundary check using filepath.Rel (robust against partial prefix matches)
	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", "", ToolError{Code: "ERR_PATH_OUTSIDE_SANDBOX", Message: "requested path resolves outside the sandbox root"}
	}

	return candidate, filepath.ToSlash(rel), nil
}

// under reports whether relSlash names dir or anything beneath it.
func under(relSlash, dir string) bool {
	return relSlash == dir || strings.HasPrefix(relSlash, dir+"/")
}

// ValidateRelPath resolves relPath against absRoot and returns an absolute path
// inside the sandbox. Reads under .git/ and .chatloop/ are denied. On violation,
// returns a ToolError.
func ValidateRelPath(absRoot, relPath string) (string, error) {
	abs, rel, err := resolveUnderRoot(absRoot, relPath)
	if err != nil {
		return "", err
	}
	if under(rel, ".git") || under(rel, ".chatloop") {
		return "", ToolError{Code: "ERR_DENIED_READ", Message: "reads under .git/ or .chatloop/ are not allowed"}
	}
	return abs, nil
}

// ValidateWritePath is ValidateRelPath's stricter sibling for mutations. On top
// of the sandbox boundary it denies writes under .git/ and .chatloop/ and to
// go.mod/go.sum at any depth, so a tool call cannot corrupt repo state or the
// session's own persisted transcript.
func ValidateWritePath(absRoot, relPath string) (string, error) {
	abs, rel, err := resolveUnderRoot(absRoot, relPath)
	if err != nil {
		return "", err
	}
	if under(rel, ".git") || under(rel, ".chatloop") {
		return "", ToolError{Code: "ERR_DENIED_WRITE", Message: "writes under .git/ or .chatloop/ are not allowed"}
	}
	switch base := filepath.Base(rel); base {
	case "go.mod", "go.sum":
		return "", ToolError{Code: "ERR_DENIED_WRITE", Message: "writes to " + base + " are not allowed"}
	}
	return abs, nil
}
