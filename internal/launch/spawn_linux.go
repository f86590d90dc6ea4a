//go:build linux

package launch

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
)

// preloadVar is LD_PRELOAD on Linux/glibc, the only platform
// cmd/libhopchain's dynamic-linker interposition targets (spec.md §9
// "symbol interposition ... assumes a dynamic-linker-based override
// mechanism").
const preloadVar = "LD_PRELOAD"

// execInPlace replaces the current process image via syscall.Exec, so
// the launcher does not linger as a supervising parent (spec.md §6:
// "exit code is the exited child's code"). exec.LookPath resolves
// spec.Command[0] against PATH the same way os/exec does.
func execInPlace(spec Spec) error {
	path, err := exec.LookPath(spec.Command[0])
	if err != nil {
		return errors.Wrap(err, "launch: resolve command")
	}
	return syscall.Exec(path, spec.Command, spec.env())
}

// run spawns the target as a child and waits, for callers (such as
// test harnesses or a future long-running supervisor) that cannot
// afford to replace their own process image.
func run(ctx context.Context, spec Spec) (int, error) {
	path, err := exec.LookPath(spec.Command[0])
	if err != nil {
		return 1, errors.Wrap(err, "launch: resolve command")
	}

	cmd := exec.CommandContext(ctx, path, spec.Command[1:]...)
	cmd.Env = spec.env()
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, errors.Wrap(err, "launch: start command")
	}
	return 0, nil
}
