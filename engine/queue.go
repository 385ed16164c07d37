package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// QueueResult is published once by a WorkerQueue when it stops running.
type QueueResult struct {
	QueueID   int
	Completed int   // jobs that finished successfully
	Remaining int   // jobs never started because the queue aborted
	Bytes     int64 // bytes copied by completed jobs
	Err       error // first failure, nil on success
}

// WorkerQueue is one worker's private FIFO of CopyJobs. Jobs are appended
// before the queue runs; Run drains them in order on a single goroutine and
// then publishes a QueueResult exactly once.
type WorkerQueue struct {
	id int

	mu      sync.Mutex
	jobs    []CopyJob
	started bool

	done   chan struct{}
	result QueueResult
}

// NewWorkerQueue creates an empty queue.
func NewWorkerQueue(id int) *WorkerQueue {
	return &WorkerQueue{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the queue index.
func (q *WorkerQueue) ID() int { return q.id }

// Len returns the number of jobs not yet taken off the queue.
func (q *WorkerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Jobs returns a copy of the pending jobs in execution order.
func (q *WorkerQueue) Jobs() []CopyJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]CopyJob(nil), q.jobs...)
}

// Enqueue appends job to the tail of the queue. It fails with ErrQueueStarted
// once Run has been called.
func (q *WorkerQueue) Enqueue(job CopyJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return ErrQueueStarted
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// Run executes the queued jobs head first. The first failing job aborts the
// queue; its error is returned and recorded in the result. Cancellation is
// observed between jobs, never during one. The result is published even when
// the queue was empty. A second call returns ErrQueueStarted.
func (q *WorkerQueue) Run(ctx context.Context, handle JobHandler) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrQueueStarted
	}
	q.started = true
	q.mu.Unlock()

	logger := zerolog.Ctx(ctx).With().Int("queue", q.id).Logger()
	res := QueueResult{QueueID: q.id}
	defer func() {
		q.mu.Lock()
		res.Remaining = len(q.jobs)
		q.result = res
		q.mu.Unlock()
		close(q.done)
	}()

	for {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return err
		}

		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			break
		}
		job := q.jobs[0]
		q.jobs[0] = CopyJob{}
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		out, err := handle(ctx, job)
		if err != nil {
			logger.Error().Err(err).Str("source", job.SourcePath).Msg("copy failed, aborting queue")
			res.Err = err
			return err
		}
		res.Completed++
		res.Bytes += out.Bytes
	}

	logger.Debug().Int("jobs", res.Completed).Int64("bytes", res.Bytes).Msg("queue drained")
	return nil
}

// Done is closed once the result has been published.
func (q *WorkerQueue) Done() <-chan struct{} { return q.done }

// Result returns the published result. ok is false while the queue has not
// finished.
func (q *WorkerQueue) Result() (res QueueResult, ok bool) {
	select {
	case <-q.done:
	default:
		return QueueResult{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result, true
}

// Wait blocks until the result is published or ctx is done.
func (q *WorkerQueue) Wait(ctx context.Context) (QueueResult, error) {
	select {
	case <-q.done:
		res, _ := q.Result()
		return res, nil
	case <-ctx.Done():
		return QueueResult{}, ctx.Err()
	}
}
