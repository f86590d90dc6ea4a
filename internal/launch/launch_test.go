package launch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpec_Validate(t *testing.T) {
	t.Parallel()

	assert.Error(t, Spec{}.Validate())
	assert.Error(t, Spec{Command: []string{"echo"}}.Validate())
	assert.NoError(t, Spec{Command: []string{"echo"}, LibraryPath: "/lib/libhopchain.so"}.Validate())
}

func TestSpec_Env_SetsPreloadAndConfig(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Command:     []string{"true"},
		LibraryPath: "/opt/hopchain/libhopchain.so",
		ConfigBlob:  []byte(`{"proxy_dns":true}`),
	}
	env := spec.env()

	assertContains(t, env, preloadVar+"=/opt/hopchain/libhopchain.so")
	assertContains(t, env, "HOPCHAIN_CONFIG={\"proxy_dns\":true}")
}

func TestSpec_Env_NoBlobOmitsConfigVar(t *testing.T) {
	t.Parallel()

	spec := Spec{Command: []string{"true"}, LibraryPath: "/opt/hopchain/libhopchain.so"}
	env := spec.env()
	for _, kv := range env {
		assert.NotContains(t, kv, "HOPCHAIN_CONFIG=")
	}
}

func TestSpec_Env_ExtraEnvOverrides(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Command:     []string{"true"},
		LibraryPath: "/opt/hopchain/libhopchain.so",
		ExtraEnv:    []string{preloadVar + "=/override.so"},
	}
	env := spec.env()
	assertContains(t, env, preloadVar+"=/override.so")
	for _, kv := range env {
		assert.NotContains(t, kv, "/opt/hopchain/libhopchain.so")
	}
}

func TestRun_ExitCodePropagates(t *testing.T) {
	t.Parallel()

	spec := Spec{Command: []string{"sh", "-c", "exit 7"}, LibraryPath: "/nonexistent.so"}
	code, err := Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	spec := Spec{Command: []string{"true"}, LibraryPath: "/nonexistent.so"}
	code, err := Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestLocateLibrary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "libhopchain.so")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	resolved, err := LocateLibrary(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	_, err = LocateLibrary(filepath.Join(dir, "missing.so"))
	assert.Error(t, err)
}

func TestEnvSet_DedupLastWins(t *testing.T) {
	t.Parallel()

	s := newEnvSet()
	s.add("PATH=/bin")
	s.add("HOME=/root")
	s.add("PATH=/usr/bin")
	assert.Equal(t, []string{"PATH=/usr/bin", "HOME=/root"}, s.values)
}

func assertContains(t *testing.T, haystack []string, want string) {
	t.Helper()
	for _, v := range haystack {
		if v == want {
			return
		}
	}
	t.Fatalf("expected %v to contain %q", haystack, want)
}
