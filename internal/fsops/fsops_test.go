package fsops_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kestrelworks/chatloop/internal/fsops"
	"github.com/kestrelworks/chatloop/internal/safety"
)

// Shared sandbox root for all fsops tests
var sharedDir string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "fsops-tests-")
	if err != nil {
		panic(err)
	}
	// Set env once so fsops caches the same roots for all tests
	_ = os.Setenv("CHATLOOP_READ_ROOT", dir)
	_ = os.Setenv("CHATLOOP_WRITE_ROOT", dir)
	sharedDir = dir

	code := m.Run()

	// Optional cleanup; comment out to inspect artifacts after failures
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func setupSandbox(t *testing.T) string {
	t.Helper()
	return sharedDir
}

func rel(t *testing.T, elems ...string) string {
	return filepath.Join(append([]string{t.Name()}, elems...)...)
}

func TestReadFile_HappyPath(t *testing.T) {
	dir := setupSandbox(t)
	want := "hello world"
	if err := os.MkdirAll(filepath.Join(dir, rel(t)), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, rel(t, "a.txt")), []byte(want), 0o644); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	got, err := fsops.ReadFile(rel(t, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != want {
		t.Fatalf("content mismatch: got %q want %q", got, want)
	}
}

func TestReadFile_DirectoryIsNotAFile(t *testing.T) {
	dir := setupSandbox(t)
	if err := os.MkdirAll(filepath.Join(dir, rel(t, "sub")), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	_, err := fsops.ReadFile(rel(t, "sub"))
	if err == nil {
		t.Fatal("expected error for directory target")
	}
	var te safety.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %T: %v", err, err)
	}
	if te.Code != "ERR_NOT_A_FILE" {
		t.Fatalf("unexpected code: %s", te.Code)
	}
}

func TestReadFile_MissingIsNotExist(t *testing.T) {
	_ = setupSandbox(t)
	_, err := fsops.ReadFile(rel(t, "nope.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !fsops.IsNotExist(err) {
		t.Fatalf("expected IsNotExist, got %v", err)
	}
}

func TestListFiles_SortedAndSuffixed(t *testing.T) {
	dir := setupSandbox(t)
	if err := os.MkdirAll(filepath.Join(dir, rel(t)), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	// Prepare: b.txt before a.txt to exercise sorting, plus sub/
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(dir, rel(t, name)), []byte("x"), 0o644); err != nil {
			t.Fatalf("prepare: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, rel(t, "sub")), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	// List the per-test directory to avoid cross-test entries
	names, err := fsops.ListFiles(rel(t))
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := []string{"a.txt", "b.txt", "sub/"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("entries mismatch: got %v want %v", names, want)
	}

	// ListFiles on the per-test subdir should return an empty list
	names2, err := fsops.ListFiles(rel(t, "sub"))
	if err != nil {
		t.Fatalf("ListFiles(sub): %v", err)
	}
	if len(names2) != 0 {
		t.Fatalf("expected empty subdir list, got %v", names2)
	}
}

func TestWriteFile_HappyPathNested(t *testing.T) {
	_ = setupSandbox(t)
	err := fsops.WriteFile(rel(t, "nested", "dir", "out.txt"), "hello")
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Verify file and content
	b, err := os.ReadFile(filepath.Join(os.Getenv("CHATLOOP_WRITE_ROOT"), rel(t, "nested", "dir", "out.txt")))
	if err != nil {
		t.Fatalf("verify read: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("content mismatch: got %q", string(b))
	}
}

func TestReadPage_OffsetLimitAndSentinelFlag(t *testing.T) {
	dir := setupSandbox(t)
	if err := os.MkdirAll(filepath.Join(dir, rel(t)), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	content := "l0\nl1\nl2\nl3\nl4"
	if err := os.WriteFile(filepath.Join(dir, rel(t, "a.txt")), []byte(content), 0o644); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	page, err := fsops.ReadPage(rel(t, "a.txt"), 1, 2)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if page.Content != "l1\nl2" {
		t.Fatalf("page content: %q", page.Content)
	}
	if !page.Truncated {
		t.Fatal("expected truncation for a partial page")
	}

	full, err := fsops.ReadPage(rel(t, "a.txt"), 0, 0)
	if err != nil {
		t.Fatalf("ReadPage full: %v", err)
	}
	if full.Content != content || full.Truncated {
		t.Fatalf("full page mismatch: %+v", full)
	}
}

func TestReadPage_LongLineClamped(t *testing.T) {
	dir := setupSandbox(t)
	if err := os.MkdirAll(filepath.Join(dir, rel(t)), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	long := strings.Repeat("x", 5000)
	if err := os.WriteFile(filepath.Join(dir, rel(t, "long.txt")), []byte(long), 0o644); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	page, err := fsops.ReadPage(rel(t, "long.txt"), 0, 0)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if len(page.Content) >= len(long) {
		t.Fatalf("expected clamped content, got %d bytes", len(page.Content))
	}
	if !page.Truncated {
		t.Fatal("expected truncation for a clamped line")
	}
}

func TestReplaceInFile_ReplaceAll(t *testing.T) {
	dir := setupSandbox(t)
	if err := os.MkdirAll(filepath.Join(dir, rel(t)), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, rel(t, "a.txt")), []byte("abc abc"), 0o644); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	created, err := fsops.ReplaceInFile(rel(t, "a.txt"), "abc", "XYZ")
	if err != nil {
		t.Fatalf("ReplaceInFile: %v", err)
	}
	if created {
		t.Fatal("existing file reported as created")
	}
	b, _ := os.ReadFile(filepath.Join(dir, rel(t, "a.txt")))
	if string(b) != "XYZ XYZ" {
		t.Fatalf("content after replace: %q", string(b))
	}
}

func TestReplaceInFile_CreateOnEmptyOld(t *testing.T) {
	dir := setupSandbox(t)
	created, err := fsops.ReplaceInFile(rel(t, "new.txt"), "", "hello")
	if err != nil {
		t.Fatalf("ReplaceInFile: %v", err)
	}
	if !created {
		t.Fatal("expected creation to be reported")
	}
	b, _ := os.ReadFile(filepath.Join(dir, rel(t, "new.txt")))
	if string(b) != "hello" {
		t.Fatalf("created content: %q", string(b))
	}
}

func TestReplaceInFile_NoMatch(t *testing.T) {
	dir := setupSandbox(t)
	if err := os.MkdirAll(filepath.Join(dir, rel(t)), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, rel(t, "a.txt")), []byte("abc"), 0o644); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := fsops.ReplaceInFile(rel(t, "a.txt"), "nope", "x"); !errors.Is(err, fsops.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestErrorPropagation_ReadDenylist(t *testing.T) {
	dir := setupSandbox(t)
	if err := os.MkdirAll(filepath.Join(dir, ".chatloop"), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".chatloop/session.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	_, err := fsops.ReadFile(".chatloop/session.json")
	if err == nil {
		t.Fatal("expected deny for .chatloop/")
	}
	var te safety.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %T: %v", err, err)
	}
	if te.Code != "ERR_DENIED_READ" {
		t.Fatalf("unexpected code: %s", te.Code)
	}
}

func TestErrorPropagation_WriteDenyList(t *testing.T) {
	_ = setupSandbox(t)

	// .git/ directory-prefix block
	if err := fsops.WriteFile(".git/HEAD", "ref: refs/heads/main\n"); err == nil {
		t.Fatal("expected deny for writes under .git/")
	} else {
		var te safety.ToolError
		if !errors.As(err, &te) {
			t.Fatalf("expected ToolError, got %T: %v", err, err)
		}
		if te.Code != "ERR_DENIED_WRITE" {
			t.Fatalf("unexpected code: %s", te.Code)
		}
	}

	// Basename block at any depth
	if err := fsops.WriteFile("go.mod", "module x\n"); err == nil {
		t.Fatal("expected deny for writes to go.mod")
	} else {
		var te safety.ToolError
		if !errors.As(err, &te) {
			t.Fatalf("expected ToolError, got %T: %v", err, err)
		}
		if te.Code != "ERR_DENIED_WRITE" {
			t.Fatalf("unexpected code: %s", te.Code)
		}
	}
}

func TestErrorPropagation_ReadTraversal(t *testing.T) {
	_ = setupSandbox(t)
	_, err := fsops.ReadFile("../../x")
	if err == nil {
		t.Fatal("expected traversal to be denied")
	}
	var te safety.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %T: %v", err, err)
	}
	if te.Code != "ERR_PATH_OUTSIDE_SANDBOX" {
		t.Fatalf("unexpected code: %s", te.Code)
	}
}
