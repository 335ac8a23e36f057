// Package fsops implements sandboxed filesystem operations backing the file
// tools. Roots are read once from CHATLOOP_READ_ROOT / CHATLOOP_WRITE_ROOT
// and every path is validated by the safety package before touching disk.
package fsops

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/kestrelworks/chatloop/internal/safety"
)

var (
	rootsOnce    sync.Once
	absReadRoot  string
	absWriteRoot string
	initRootsErr error
)

func initRoots() {
	read := os.Getenv("CHATLOOP_READ_ROOT")
	write := os.Getenv("CHATLOOP_WRITE_ROOT")
	absReadRoot, absWriteRoot, initRootsErr = safety.InitSandboxRoot(read, write)
}

// getRoots returns the cached absolute read/write roots, initialising them once on first use.
func getRoots() (string, string, error) {
	rootsOnce.Do(initRoots)
	return absReadRoot, absWriteRoot, initRootsErr
}

// IsNotExist reports whether err indicates a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
