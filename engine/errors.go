package engine

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

var (
	// ErrDirectoryNotFound is returned when the source directory does not exist
	// or is not a directory. Nothing has been touched when it is returned.
	ErrDirectoryNotFound = errors.Base("directory not found")

	// ErrDirectoryCreation is returned when the destination directory could not
	// be removed or recreated.
	ErrDirectoryCreation = errors.Base("destination directory could not be reset")

	// ErrIO is matched by every *IOError.
	ErrIO = errors.Base("copy i/o failure")

	// ErrQueueStarted is returned by Enqueue once a queue has begun running.
	ErrQueueStarted = errors.Base("worker queue already started")

	// ErrInvalidWorkerCount is returned for worker counts below one.
	ErrInvalidWorkerCount = errors.Base("worker count must be at least 1")
)

// IOError describes a failed read or write of a single file.
type IOError struct {
	Op   string // "open", "create", "copy" or "commit"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is reports ErrIO as a match so callers need not type-assert.
func (e *IOError) Is(target error) bool { return target == ErrIO }
