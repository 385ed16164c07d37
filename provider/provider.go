package provider

import (
	"context"
	"io"
	"strings"
	"time"
)

// FileInfo represents the standard metadata for a file or a directory
// across different storage abstractions.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider represents a storage backend that can act as the source or the
// destination of a copy run.
type Provider interface {
	// Stat returns the FileInfo for the given path. A missing path yields an
	// error matching fs.ErrNotExist.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the entries directly inside the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes. Nothing is visible at path
	// until Close returns nil; see Aborter.
	OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error)

	// Reset removes everything under path and leaves an empty directory.
	Reset(ctx context.Context, path string) error
}

// Aborter is implemented by writers returned from OpenWrite. Abort discards
// whatever has been written so far and releases the writer; Close must not be
// called afterwards.
type Aborter interface {
	Abort() error
}

// Abort discards w if it supports it, and closes it otherwise.
func Abort(w io.WriteCloser) error {
	if a, ok := w.(Aborter); ok {
		return a.Abort()
	}
	return w.Close()
}

// Locator is implemented by providers that can name a path globally, as a
// URL such as file:///data/in or s3://bucket/prefix. Two locations refer to
// the same place when they are equal.
type Locator interface {
	Location(path string) string
}

// Within reports whether location is parent itself or lies below it.
func Within(location, parent string) bool {
	if location == parent {
		return true
	}
	return strings.HasPrefix(location, strings.TrimSuffix(parent, "/")+"/")
}
