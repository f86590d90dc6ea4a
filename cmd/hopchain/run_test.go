package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandArgs_WithDash(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--quiet", "--", "ls", "-la"})
	require.NoError(t, cmd.ParseFlags([]string{"--quiet", "--", "ls", "-la"}))
	args := cmd.Flags().Args()

	got := commandArgs(cmd, args)
	assert.Equal(t, []string{"ls", "-la"}, got)
}

func TestCommandArgs_WithoutDash(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{}
	got := commandArgs(cmd, []string{"ls", "-la"})
	assert.Equal(t, []string{"ls", "-la"}, got)
}

func TestResolveLibraryPath_Explicit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "libhopchain.so")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	resolved, err := resolveLibraryPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

func TestResolveLibraryPath_ExplicitMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveLibraryPath(filepath.Join(t.TempDir(), "missing.so"))
	assert.Error(t, err)
}

func TestLoadConfig_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := loadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_ParsesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "chain.toml")
	const doc = `
proxy_dns = true
dns_subnet = 224
chain_type = "strict"

[[proxy]]
type = "socks5"
ip = "127.0.0.1"
port = 1080
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Proxies, 1)
}
