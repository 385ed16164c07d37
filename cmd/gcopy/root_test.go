package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gocopy/config"
	"github.com/franksops/gocopy/engine"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Copy(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(name), 0o644))
	}

	stdout, _, err := execute(t, "-s", src, "-d", dst, "-t", "2", "--pattern", "*.txt", "--log-json")
	require.NoError(t, err)
	assert.Contains(t, stdout, "2/2 files")

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestRootCommand_MissingSource(t *testing.T) {
	base := t.TempDir()
	_, stderr, err := execute(t, "-s", filepath.Join(base, "nope"), "-d", filepath.Join(base, "dst"), "--log-json")
	assert.ErrorIs(t, err, engine.ErrDirectoryNotFound)
	assert.Contains(t, stderr, "copy failed")
}

func TestRootCommand_InvalidFlags(t *testing.T) {
	_, _, err := execute(t, "-s", "/in")
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, _, err = execute(t, "-s", "/in", "-d", "/out", "-t", "0")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRootCommand_ConfigFileWithFlagOverride(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	state := filepath.Join(base, "state")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("data"), 0o644))

	cfgPath := filepath.Join(base, "gcopy.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"source: "+src+"\n"+
			"destination: "+filepath.Join(base, "ignored")+"\n"+
			"threads: 1\n"+
			"state_dir: "+state+"\n"), 0o644))

	_, _, err := execute(t, "-c", cfgPath, "-d", dst, "--log-level", "error")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	assert.NoDirExists(t, filepath.Join(base, "ignored"))

	assert.FileExists(t, filepath.Join(state, "state.db"))
}

func TestResolve_FlagsOverrideConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "gcopy.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("source: /a\ndestination: /b\nthreads: 5\npattern: '*.csv'\n"), 0o644))

	cmd := newRootCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"-c", cfgPath, "-t", "2"}))

	// Only the Changed state of the flags matters to resolve.
	opts := &rootOpts{configFile: cfgPath, cfg: config.Default()}
	opts.cfg.Threads = 2
	cfg, err := opts.resolve(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/a", cfg.Source)
	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, "*.csv", cfg.Pattern)
}
