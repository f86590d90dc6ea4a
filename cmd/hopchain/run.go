package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hopchain/hopchain/internal/config"
	"github.com/hopchain/hopchain/internal/launch"
)

// defaultLibraryName is where LocateLibrary looks when --library is not
// given: next to this binary, matching how the launcher is installed
// alongside libhopchain.so (spec.md §6 "installed artifacts").
const defaultLibraryName = "libhopchain.so"

type runOptions struct {
	configPath  string
	libraryPath string
	quiet       bool
}

func runE(cmd *cobra.Command, args []string, opts *runOptions) error {
	command := commandArgs(cmd, args)
	if len(command) == 0 {
		return errors.New("hopchain: no command given, expected `hopchain [flags] -- command [args...]`")
	}

	libPath, err := resolveLibraryPath(opts.libraryPath)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	blob, err := config.EncodeBlob(cfg)
	if err != nil {
		return errors.Wrap(err, "hopchain: encode configuration")
	}

	spec := launch.Spec{
		Command:     command,
		LibraryPath: libPath,
		ConfigBlob:  blob,
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	if opts.quiet {
		cmd.SilenceUsage = true
	}

	// Exec replaces this process on Linux and exits it itself on Darwin
	// (internal/launch's execInPlace); reaching the return below only
	// happens if it failed before either of those could occur.
	return launch.Exec(spec)
}

// commandArgs extracts the command to run from the positional arguments
// following "--". Without a literal "--", cobra still places the
// remaining arguments in args, so a bare `hopchain -- ls -la` and
// `hopchain ls -la` behave the same.
func commandArgs(cmd *cobra.Command, args []string) []string {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		return args[dash:]
	}
	return args
}

func resolveLibraryPath(explicit string) (string, error) {
	if explicit != "" {
		return launch.LocateLibrary(explicit)
	}

	exe, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "hopchain: resolve own executable path")
	}
	return launch.LocateLibrary(filepath.Join(filepath.Dir(exe), defaultLibraryName))
}

func loadConfig(path string) (config.Chain, error) {
	if path == "" {
		return config.Chain{}, errors.New("hopchain: --config is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Chain{}, errors.Wrap(err, "hopchain: read configuration file")
	}
	return config.Parse(data)
}
