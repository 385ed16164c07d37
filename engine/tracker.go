package engine

import (
	"io"
	"sync"
	"time"

	"github.com/franksops/gocopy/store"
)

// CheckpointConfig defines when a running copy's byte count is saved.
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been transferred
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 10 * 1024 * 1024, // 10 MB
	TimeInterval:  5 * time.Second,
}

// JobTracker records the lifecycle of every job of one run in a store.
type JobTracker struct {
	store  store.Store
	runID  string
	config CheckpointConfig
}

// NewJobTracker creates a tracker for the run identified by runID.
func NewJobTracker(s store.Store, runID string, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  s,
		runID:  runID,
		config: config,
	}
}

// RunID returns the run this tracker records into.
func (jt *JobTracker) RunID() string { return jt.runID }

// InitJob stores job as pending.
func (jt *JobTracker) InitJob(job CopyJob) error {
	var totalBytes int64
	if job.FileInfo != nil {
		totalBytes = job.FileInfo.Size()
	}

	return jt.store.SaveJob(&store.JobRecord{
		ID:              job.ID,
		RunID:           jt.runID,
		QueueID:         job.QueueID,
		SourcePath:      job.SourcePath,
		DestinationPath: job.DestinationPath,
		State:           store.StatePending,
		TotalBytes:      totalBytes,
	})
}

func (jt *JobTracker) update(jobID string, fn func(*store.JobRecord)) error {
	record, err := jt.store.GetJob(jobID)
	if err != nil {
		return err
	}
	fn(record)
	return jt.store.SaveJob(record)
}

// MarkInProgress updates a job's state to InProgress
func (jt *JobTracker) MarkInProgress(jobID string) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateInProgress
	})
}

// MarkCompleted records the final byte count and checksum.
func (jt *JobTracker) MarkCompleted(jobID string, res CopyResult) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.BytesTransferred = res.Bytes
		r.TotalBytes = res.Bytes
		r.Checksum = res.Checksum
	})
}

// MarkFailed updates a job's state to Failed with an error message
func (jt *JobTracker) MarkFailed(jobID string, err error) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// TrackedWriter wraps an io.Writer to track bytes written and checkpoint progress
type TrackedWriter struct {
	io.Writer
	tracker *JobTracker
	jobID   string

	mu              sync.Mutex
	bytesWritten    int64
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

// NewTrackedWriter creates a new TrackedWriter
func (jt *JobTracker) NewTrackedWriter(w io.Writer, jobID string) *TrackedWriter {
	return &TrackedWriter{
		Writer:          w,
		tracker:         jt,
		jobID:           jobID,
		lastCheckpointT: time.Now(),
	}
}

// Write implements io.Writer and checkpoints progress
func (tw *TrackedWriter) Write(p []byte) (int, error) {
	n, err := tw.Writer.Write(p)
	if n > 0 {
		tw.mu.Lock()
		tw.bytesWritten += int64(n)
		needsCheckpoint := tw.bytesWritten-tw.lastCheckpoint >= tw.tracker.config.BytesInterval ||
			time.Since(tw.lastCheckpointT) >= tw.tracker.config.TimeInterval
		currentBytes := tw.bytesWritten
		tw.mu.Unlock()

		if needsCheckpoint {
			tw.checkpoint(currentBytes)
		}
	}
	return n, err
}

func (tw *TrackedWriter) checkpoint(bytes int64) {
	// A failed checkpoint is not worth failing the copy over.
	err := tw.tracker.update(tw.jobID, func(r *store.JobRecord) {
		r.BytesTransferred = bytes
	})
	if err != nil {
		return
	}

	tw.mu.Lock()
	tw.lastCheckpoint = bytes
	tw.lastCheckpointT = time.Now()
	tw.mu.Unlock()
}

// BytesWritten returns the total number of bytes written
func (tw *TrackedWriter) BytesWritten() int64 {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten
}
