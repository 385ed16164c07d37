package engine

import (
	"context"
	"runtime"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/franksops/gocopy/provider"
	"github.com/franksops/gocopy/store"
)

// DefaultWorkerCount is the worker count used when none is given.
var DefaultWorkerCount = runtime.NumCPU()

// Observer is notified of queue-level progress. Calls for different queues
// arrive concurrently.
type Observer interface {
	RunStarted(runID string, queueSizes []int)
	JobDone(queueID int, bytes int64)
	QueueDone(res QueueResult)
	RunDone(report *Report)
}

// Report describes one finished run.
type Report struct {
	RunID   string
	Workers int
	Files   int
	Bytes   int64
	Queues  []QueueResult
	Start   time.Time
	End     time.Time
	Elapsed time.Duration
}

// Copied returns the number of files that were copied successfully.
func (r *Report) Copied() int {
	n := 0
	for _, q := range r.Queues {
		n += q.Completed
	}
	return n
}

// Dispatcher runs a copy: it resets the destination, partitions the source
// and executes one concurrent task per worker queue.
type Dispatcher struct {
	source      provider.Provider
	destination provider.Provider
	pattern     string
	bufferSize  int
	store       store.Store
	checkpoint  CheckpointConfig
	observer    Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPattern only copies files whose name matches the glob.
func WithPattern(pattern string) Option {
	return func(d *Dispatcher) { d.pattern = pattern }
}

// WithBufferSize sets the per-worker copy buffer size.
func WithBufferSize(size int) Option {
	return func(d *Dispatcher) { d.bufferSize = size }
}

// WithStore records runs and jobs in s.
func WithStore(s store.Store, checkpoint CheckpointConfig) Option {
	return func(d *Dispatcher) {
		d.store = s
		d.checkpoint = checkpoint
	}
}

// WithObserver reports queue progress to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a dispatcher copying from src to dst.
func NewDispatcher(src, dst provider.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:      src,
		destination: dst,
		pattern:     MatchAll,
		bufferSize:  DefaultBufferSize,
		checkpoint:  DefaultCheckpointConfig,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run copies every top-level file of sourceDir into destinationDir using
// workerCount queues. destinationDir is deleted and recreated first, but only
// after sourceDir is known to exist. Elapsed time covers scheduling the queues
// until the last one has finished. When queues fail, the report is returned
// together with the joined queue errors.
func (d *Dispatcher) Run(ctx context.Context, sourceDir, destinationDir string, workerCount int) (*Report, error) {
	if workerCount < 1 {
		return nil, ErrInvalidWorkerCount
	}
	if !doublestar.ValidatePattern(d.pattern) {
		return nil, errors.Errorf("invalid pattern %q: %w", d.pattern, doublestar.ErrBadPattern)
	}
	logger := zerolog.Ctx(ctx)

	if err := CheckSource(ctx, d.source, sourceDir); err != nil {
		return nil, err
	}
	if err := checkOverlap(d.source, sourceDir, d.destination, destinationDir); err != nil {
		return nil, err
	}
	if err := d.destination.Reset(ctx, destinationDir); err != nil {
		return nil, errors.Prefix(err, ErrDirectoryCreation)
	}

	partitioner := NewPartitioner(d.source).WithPattern(d.pattern)
	queues, err := partitioner.Partition(ctx, sourceDir, destinationDir, workerCount)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:   uuid.NewString(),
		Workers: workerCount,
	}
	sizes := make([]int, len(queues))
	for i, q := range queues {
		sizes[i] = q.Len()
		report.Files += sizes[i]
	}
	logger.Info().
		Str("run_id", report.RunID).
		Str("source", sourceDir).
		Str("destination", destinationDir).
		Int("workers", workerCount).
		Int("files", report.Files).
		Msg("starting copy")

	copier := &Copier{
		Source:      d.source,
		Destination: d.destination,
		Buffers:     NewBufferPool(d.bufferSize),
	}
	if d.store != nil {
		copier.Tracker = NewJobTracker(d.store, report.RunID, d.checkpoint)
	}
	if d.observer != nil {
		d.observer.RunStarted(report.RunID, sizes)
	}

	report.Start = time.Now()

	g := new(errgroup.Group)
	g.SetLimit(workerCount)
	for _, q := range queues {
		q := q
		handle := d.handler(copier, q.ID())
		g.Go(func() error {
			err := q.Run(ctx, handle)
			if d.observer != nil {
				res, _ := q.Result()
				d.observer.QueueDone(res)
			}
			return err
		})
	}
	// Every queue error is collected from the results below.
	_ = g.Wait()

	report.End = time.Now()
	report.Elapsed = report.End.Sub(report.Start)

	var errs []error
	for _, q := range queues {
		res, _ := q.Result()
		report.Queues = append(report.Queues, res)
		report.Bytes += res.Bytes
		if res.Err != nil {
			errs = append(errs, errors.Errorf("queue %d: %w", res.QueueID, res.Err))
		}
	}

	var runErr error
	if len(errs) > 0 {
		runErr = errors.Join(errs...)
	}

	event := logger.Info()
	if runErr != nil {
		event = logger.Error().Err(runErr)
	}
	event.
		Str("run_id", report.RunID).
		Int("copied", report.Copied()).
		Int("files", report.Files).
		Int64("bytes", report.Bytes).
		Int64("elapsed_ms", report.Elapsed.Milliseconds()).
		Msg("copy finished")

	d.saveRun(ctx, sourceDir, destinationDir, report, runErr)
	if d.observer != nil {
		d.observer.RunDone(report)
	}
	return report, runErr
}

// checkOverlap refuses a destination that is the source or one of its
// ancestors, since resetting it would delete the source.
func checkOverlap(src provider.Provider, sourceDir string, dst provider.Provider, destinationDir string) error {
	srcLoc, ok := src.(provider.Locator)
	if !ok {
		return nil
	}
	dstLoc, ok := dst.(provider.Locator)
	if !ok {
		return nil
	}
	if provider.Within(srcLoc.Location(sourceDir), dstLoc.Location(destinationDir)) {
		return errors.Errorf("%w: %s would delete source %s", ErrDirectoryCreation, destinationDir, sourceDir)
	}
	return nil
}

func (d *Dispatcher) handler(c *Copier, queueID int) JobHandler {
	if d.observer == nil {
		return c.Copy
	}
	return func(ctx context.Context, job CopyJob) (CopyResult, error) {
		res, err := c.Copy(ctx, job)
		if err == nil {
			d.observer.JobDone(queueID, res.Bytes)
		}
		return res, err
	}
}

func (d *Dispatcher) saveRun(ctx context.Context, sourceDir, destinationDir string, report *Report, runErr error) {
	if d.store == nil {
		return
	}
	record := &store.RunRecord{
		ID:             report.RunID,
		SourceDir:      sourceDir,
		DestinationDir: destinationDir,
		Workers:        report.Workers,
		Files:          report.Files,
		Bytes:          report.Bytes,
		StartedAt:      report.Start,
		Elapsed:        report.Elapsed,
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}
	if err := d.store.SaveRun(record); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("run_id", report.RunID).Msg("failed to save run record")
	}
}

// RunCopy copies the top-level files of sourceDir into destinationDir on the
// local filesystem with threadCount workers. threadCount <= 0 means
// DefaultWorkerCount.
func RunCopy(ctx context.Context, sourceDir, destinationDir string, threadCount int) (*Report, error) {
	if threadCount <= 0 {
		threadCount = DefaultWorkerCount
	}
	local := provider.NewLocalProvider("")
	return NewDispatcher(local, local).Run(ctx, sourceDir, destinationDir, threadCount)
}
