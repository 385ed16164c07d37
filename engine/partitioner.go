package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	"github.com/franksops/gocopy/provider"
)

// MatchAll is the default file name pattern.
const MatchAll = "*"

// Partitioner lists the top level of a source directory and deals the files
// out round-robin to a fixed number of worker queues. Subdirectories are
// skipped.
type Partitioner struct {
	Source  provider.Provider
	Pattern string
}

// NewPartitioner creates a Partitioner that takes every file.
func NewPartitioner(src provider.Provider) *Partitioner {
	return &Partitioner{Source: src, Pattern: MatchAll}
}

// WithPattern restricts the partitioner to file names matching a doublestar
// glob.
func (p *Partitioner) WithPattern(pattern string) *Partitioner {
	p.Pattern = pattern
	return p
}

// CheckSource verifies that sourceDir exists and is a directory.
func CheckSource(ctx context.Context, src provider.Provider, sourceDir string) error {
	stat, err := src.Stat(ctx, sourceDir)
	if errors.Is(err, fs.ErrNotExist) {
		return errors.Errorf("%w: %s", ErrDirectoryNotFound, sourceDir)
	}
	if err != nil {
		return errors.Errorf("failed to stat source %s: %w", sourceDir, err)
	}
	if !stat.IsDir() {
		return errors.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, sourceDir)
	}
	return nil
}

// Partition returns exactly workerCount queues. The i-th file of the listing,
// sorted by name, lands in queue i mod workerCount.
func (p *Partitioner) Partition(ctx context.Context, sourceDir, destDir string, workerCount int) ([]*WorkerQueue, error) {
	if workerCount < 1 {
		return nil, ErrInvalidWorkerCount
	}
	pattern := p.Pattern
	if pattern == "" {
		pattern = MatchAll
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	if err := CheckSource(ctx, p.Source, sourceDir); err != nil {
		return nil, err
	}

	entries, err := p.Source.List(ctx, sourceDir)
	if err != nil {
		return nil, errors.Errorf("failed to list directory %s: %w", sourceDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	queues := make([]*WorkerQueue, workerCount)
	for i := range queues {
		queues[i] = NewWorkerQueue(i)
	}

	next := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := doublestar.Match(pattern, entry.Name())
		if err != nil {
			return nil, errors.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if !ok {
			continue
		}

		idx := next % workerCount
		job := CopyJob{
			ID:              uuid.NewString(),
			QueueID:         idx,
			SourcePath:      filepath.Join(sourceDir, entry.Name()),
			DestinationPath: filepath.Join(destDir, entry.Name()),
			FileInfo:        entry,
		}
		if err := queues[idx].Enqueue(job); err != nil {
			return nil, err
		}
		next++
	}

	return queues, nil
}
