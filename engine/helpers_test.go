package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/franksops/gocopy/provider"
)

var errInjected = errors.Base("injected failure")

// flakyProvider wraps a LocalProvider and fails reads of chosen file names.
type flakyProvider struct {
	*provider.LocalProvider

	mu       sync.Mutex
	failRead map[string]bool
	opened   []string
}

func newFlakyProvider(failing ...string) *flakyProvider {
	fp := &flakyProvider{
		LocalProvider: provider.NewLocalProvider(""),
		failRead:      map[string]bool{},
	}
	for _, name := range failing {
		fp.failRead[name] = true
	}
	return fp
}

func (f *flakyProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.opened = append(f.opened, filepath.Base(path))
	fail := f.failRead[filepath.Base(path)]
	f.mu.Unlock()

	if fail {
		return nil, errInjected
	}
	return f.LocalProvider.OpenRead(ctx, path)
}

func (f *flakyProvider) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func readDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	out := map[string]string{}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(data)
	}
	return out
}

func jobNames(q *WorkerQueue) []string {
	var names []string
	for _, j := range q.Jobs() {
		names = append(names, filepath.Base(j.SourcePath))
	}
	return names
}
