package launch

import (
	"os"

	"github.com/pkg/errors"
)

// LocateLibrary resolves the preload shared library path the launcher
// will point LD_PRELOAD/DYLD_INSERT_LIBRARIES at, failing fast with a
// diagnostic if it does not exist rather than deferring the failure to
// the dynamic linker inside the child (spec.md §6's "installed
// artifacts" contract).
func LocateLibrary(path string) (string, error) {
	if !pathExists(path) {
		return "", errors.Errorf("launch: preload library not found at %q", path)
	}
	return path, nil
}

// pathExists reports whether path exists, treating any stat error
// (including permission denied) as "does not exist" — the caller only
// needs a fast, conservative check before handing the path to the
// dynamic linker.
func pathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
