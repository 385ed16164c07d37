package provider

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (d *dummyFileInfo) Name() string       { return d.name }
func (d *dummyFileInfo) Size() int64        { return d.size }
func (d *dummyFileInfo) IsDir() bool        { return d.isDir }
func (d *dummyFileInfo) ModTime() time.Time { return d.modTime }

func TestLocalProvider_Stat(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "test-stat.txt"), []byte("hello stat"), 0o644))

	p := NewLocalProvider(base)
	info, err := p.Stat(context.Background(), "test-stat.txt")
	require.NoError(t, err)
	assert.Equal(t, "test-stat.txt", info.Name())
	assert.EqualValues(t, len("hello stat"), info.Size())
	assert.False(t, info.IsDir())

	_, err = p.Stat(context.Background(), "missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocalProvider_List(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "subdir", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "subdir", "file1.txt"), []byte("f1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "subdir", "file2.txt"), []byte("f2"), 0o644))

	infos, err := NewLocalProvider(base).List(context.Background(), "subdir")
	require.NoError(t, err)

	got := map[string]bool{}
	for _, info := range infos {
		got[info.Name()] = info.IsDir()
	}
	assert.Equal(t, map[string]bool{"file1.txt": false, "file2.txt": false, "nested": true}, got)
}

func TestLocalProvider_ListResolvesSymlinks(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "real"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "file.txt"), []byte("12345"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(base, "real"), filepath.Join(base, "dirlink")))
	require.NoError(t, os.Symlink(filepath.Join(base, "file.txt"), filepath.Join(base, "filelink")))
	require.NoError(t, os.Symlink(filepath.Join(base, "gone"), filepath.Join(base, "dangling")))

	infos, err := NewLocalProvider(base).List(context.Background(), "")
	require.NoError(t, err)

	got := map[string]FileInfo{}
	for _, info := range infos {
		got[info.Name()] = info
	}
	require.Len(t, got, 5)
	assert.True(t, got["dirlink"].IsDir())
	assert.False(t, got["filelink"].IsDir())
	assert.EqualValues(t, 5, got["filelink"].Size())
	assert.False(t, got["dangling"].IsDir())
}

func TestLocalProvider_OpenRead(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "test-read.txt"), []byte("hello read"), 0o644))

	rc, err := NewLocalProvider(base).OpenRead(context.Background(), "test-read.txt")
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello read", string(content))
}

func TestLocalProvider_OpenWriteCommitsOnClose(t *testing.T) {
	base := t.TempDir()
	p := NewLocalProvider(base)
	modTime := time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)

	wc, err := p.OpenWrite(context.Background(), "out.txt", &dummyFileInfo{name: "out.txt", modTime: modTime})
	require.NoError(t, err)

	_, err = wc.Write([]byte("hello write"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "out.txt"))
	assert.ErrorIs(t, err, fs.ErrNotExist, "destination must not appear before Close")

	require.NoError(t, wc.Close())

	content, err := os.ReadFile(filepath.Join(base, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello write", string(content))

	stat, err := os.Stat(filepath.Join(base, "out.txt"))
	require.NoError(t, err)
	assert.True(t, stat.ModTime().Equal(modTime), "mod time %v", stat.ModTime())
	assert.Equal(t, os.FileMode(0o644), stat.Mode().Perm())

	assert.ErrorIs(t, wc.Close(), os.ErrClosed)
	assertOnlyEntries(t, base, "out.txt")
}

func TestLocalProvider_OpenWriteOverwrites(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "out.txt"), []byte("a much longer original"), 0o644))

	wc, err := NewLocalProvider(base).OpenWrite(context.Background(), "out.txt", nil)
	require.NoError(t, err)
	_, err = wc.Write([]byte("short"))
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	content, err := os.ReadFile(filepath.Join(base, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "short", string(content))
}

func TestLocalProvider_AbortLeavesNothing(t *testing.T) {
	base := t.TempDir()
	wc, err := NewLocalProvider(base).OpenWrite(context.Background(), "out.txt", nil)
	require.NoError(t, err)

	_, err = wc.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, Abort(wc))

	assertOnlyEntries(t, base)
}

func TestLocalProvider_OpenWriteMissingParent(t *testing.T) {
	base := t.TempDir()
	_, err := NewLocalProvider(base).OpenWrite(context.Background(), "no/such/dir/out.txt", nil)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocalProvider_Reset(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "dest")
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "old"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "old", "stale.txt"), []byte("x"), 0o644))

	p := NewLocalProvider("")
	require.NoError(t, p.Reset(context.Background(), dest))
	assertOnlyEntries(t, dest)

	fresh := filepath.Join(base, "fresh", "deeper")
	require.NoError(t, p.Reset(context.Background(), fresh))
	assertOnlyEntries(t, fresh)
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewLocalProvider(t.TempDir())
	_, err := p.Stat(ctx, ".")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = p.OpenWrite(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func assertOnlyEntries(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.ElementsMatch(t, names, got)
}
