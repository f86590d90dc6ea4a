// Command hopchain launches a child process with libhopchain.so preloaded
// so the child's TCP connects are routed through a configured chain of
// SOCKS4/SOCKS4A/SOCKS5/HTTP CONNECT proxies (spec.md §1/§6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "hopchain [flags] -- command [args...]",
		Short: "Run a command through a chain of proxies",
		Long: `Description:
  hopchain runs a command with its outbound TCP connections routed
  through a chain of SOCKS4, SOCKS4A, SOCKS5 or HTTP CONNECT proxies,
  by preloading a shared library that intercepts libc's connect,
  gethostbyname, getaddrinfo and related symbols.
`,
		Args:                  cobra.ArbitraryArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(cmd, args, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML chain configuration file")
	cmd.Flags().StringVar(&opts.libraryPath, "library", "", "path to libhopchain.so (defaults to the library installed alongside this binary)")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "suppress hopchain's own diagnostic output")

	return cmd
}
