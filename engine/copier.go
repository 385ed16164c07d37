package engine

import (
	"context"
	"io"

	"gitlab.com/tozd/go/errors"

	"github.com/franksops/gocopy/provider"
)

// Copier is the JobHandler used by the Dispatcher: it executes a CopyJob with
// a pooled buffer and, when a tracker is set, records the job in the ledger.
type Copier struct {
	Source      provider.Provider
	Destination provider.Provider
	Buffers     *BufferPool
	Tracker     *JobTracker // optional
}

// Copy implements JobHandler.
func (c *Copier) Copy(ctx context.Context, job CopyJob) (CopyResult, error) {
	opts := CopyOptions{}
	if c.Buffers != nil {
		buf := c.Buffers.Get()
		defer c.Buffers.Put(buf)
		opts.Buffer = *buf
	}

	if c.Tracker == nil {
		return job.Execute(ctx, c.Source, c.Destination, opts)
	}

	if err := c.Tracker.InitJob(job); err != nil {
		return CopyResult{}, errors.Errorf("failed to init job: %w", err)
	}
	if err := c.Tracker.MarkInProgress(job.ID); err != nil {
		return CopyResult{}, errors.Errorf("failed to mark job in progress: %w", err)
	}

	opts.WrapWriter = func(w io.Writer) io.Writer {
		return c.Tracker.NewTrackedWriter(w, job.ID)
	}
	res, err := job.Execute(ctx, c.Source, c.Destination, opts)
	if err != nil {
		_ = c.Tracker.MarkFailed(job.ID, err)
		return CopyResult{}, err
	}

	if err := c.Tracker.MarkCompleted(job.ID, res); err != nil {
		return res, errors.Errorf("failed to mark job completed: %w", err)
	}
	return res, nil
}
