//go:build darwin

package launch

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// preloadVar is DYLD_INSERT_LIBRARIES, Darwin's dynamic-linker preload
// mechanism. cmd/libhopchain itself is documented as Linux/glibc-
// specific (the hook symbols it overrides assume glibc's resolver
// hostent/addrinfo shapes); this constant exists so the launcher's
// environment-construction logic has parity across platforms even
// though the shared library it points at would need a Darwin-specific
// build to actually function here.
const preloadVar = "DYLD_INSERT_LIBRARIES"

// execInPlace has no process-replacement equivalent to syscall.Exec on
// Darwin through os/exec, so it falls back to spawn-and-wait and exits
// the launcher itself with the child's code, matching run's behavior
// one level up instead of truly replacing the process image.
func execInPlace(spec Spec) error {
	code, err := run(context.Background(), spec)
	if err != nil {
		return err
	}
	os.Exit(code)
	return nil
}

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
