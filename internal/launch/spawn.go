// Package launch implements the launcher's half of the contract in
// spec.md §6: resolve the preload shared library location, serialise
// the configuration blob into the child's environment, and run the
// target command with that environment. It does not implement any
// policy of its own — every decision here is either "what env var goes
// to the child" or "how is the child process started", mirroring how a
// process-launching library in this corpus keeps sandboxing policy and
// process start-up as two distinct concerns.
package launch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hopchain/hopchain/internal/config"
)

// Spec describes one invocation of the target command under the
// preload library.
type Spec struct {
	// Command is the target program and its arguments (argv[0] is
	// Command[0]).
	Command []string

	// LibraryPath is the absolute path to the preloadable shared
	// library (cmd/libhopchain's build artifact).
	LibraryPath string

	// ConfigBlob is the already-serialised configuration
	// (config.EncodeBlob's output). A nil blob means pass-through: the
	// child's environment omits the configuration variable entirely, so
	// every hook in the preloaded library forwards to the real symbol.
	ConfigBlob []byte

	// ExtraEnv is appended on top of the inherited environment, after
	// the preload/config variables, so callers can still override
	// anything this package sets.
	ExtraEnv []string
}

// Validate checks the invariants Run and Exec both rely on.
func (s Spec) Validate() error {
	if len(s.Command) == 0 {
		return errors.New("launch: command must not be empty")
	}
	if s.LibraryPath == "" {
		return errors.New("launch: library path must not be empty")
	}
	return nil
}

// Run starts the target command with the preload environment and waits
// for it to exit, returning the child's exit code. It never replaces
// the calling process (unlike Exec) and is safe to call from a
// long-running program. On Darwin this is the only supported mode (see
// spawn_darwin.go).
func Run(ctx context.Context, spec Spec) (exitCode int, err error) {
	if err := spec.Validate(); err != nil {
		return 1, err
	}
	return run(ctx, spec)
}

// Exec replaces the current process image with the target command,
// preserving its own pid (spec.md §6's launcher contract implies this
// is the steady-state entry point for `cmd/hopchain`). On platforms
// without process replacement (Darwin) it falls back to Run's
// spawn-and-wait behavior and calls os.Exit with the child's code
// itself, since there is no way to emulate true replacement there.
func Exec(spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	return execInPlace(spec)
}

// env builds the full child environment: the parent's environment plus
// the preload variable and, if present, the configuration blob
// variable, with ExtraEnv applied last so callers can override either.
func (s Spec) env() []string {
	set := newEnvSet()
	for _, kv := range inheritedEnv() {
		set.add(kv)
	}
	set.add(preloadVar + "=" + s.LibraryPath)
	if s.ConfigBlob != nil {
		set.add(config.EnvVar + "=" + string(s.ConfigBlob))
	}
	for _, kv := range s.ExtraEnv {
		set.add(kv)
	}
	return set.values
}
