package ui

import (
	"sync"
	"time"

	"github.com/franksops/gocopy/engine"
)

var _ engine.Observer = (*UIState)(nil)

// QueueStatus is the progress of one worker queue.
type QueueStatus struct {
	ID       int
	Total    int
	Done     int
	Bytes    int64
	Finished bool
	Err      string
}

// Snapshot is a consistent copy of UIState for rendering.
type Snapshot struct {
	RunID          string
	Queues         []QueueStatus
	TotalFiles     int
	CompletedFiles int
	CompletedBytes int64
	Elapsed        time.Duration
	Done           bool
	Err            string
}

// UIState aggregates queue progress reported by the dispatcher. It is safe for
// concurrent use.
type UIState struct {
	mu    sync.Mutex
	snap  Snapshot
	start time.Time
	now   func() time.Time
}

// NewUIState creates an empty state.
func NewUIState() *UIState {
	return &UIState{now: time.Now}
}

func (s *UIState) RunStarted(runID string, queueSizes []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.start = s.now()
	s.snap = Snapshot{RunID: runID, Queues: make([]QueueStatus, len(queueSizes))}
	for i, n := range queueSizes {
		s.snap.Queues[i] = QueueStatus{ID: i, Total: n}
		s.snap.TotalFiles += n
	}
}

func (s *UIState) JobDone(queueID int, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if queueID < 0 || queueID >= len(s.snap.Queues) {
		return
	}
	q := &s.snap.Queues[queueID]
	q.Done++
	q.Bytes += bytes
	s.snap.CompletedFiles++
	s.snap.CompletedBytes += bytes
}

func (s *UIState) QueueDone(res engine.QueueResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.QueueID < 0 || res.QueueID >= len(s.snap.Queues) {
		return
	}
	q := &s.snap.Queues[res.QueueID]
	q.Finished = true
	if res.Err != nil {
		q.Err = res.Err.Error()
	}
}

func (s *UIState) RunDone(report *engine.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Done = true
	s.snap.Elapsed = report.Elapsed
	for _, q := range report.Queues {
		if q.Err != nil {
			s.snap.Err = q.Err.Error()
			break
		}
	}
}

// Fail marks the run as finished with err, e.g. when it never started.
func (s *UIState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Done = true
	if err != nil {
		s.snap.Err = err.Error()
	}
}

// Snapshot returns a copy of the current state.
func (s *UIState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap
	snap.Queues = append([]QueueStatus(nil), s.snap.Queues...)
	if !snap.Done && !s.start.IsZero() {
		snap.Elapsed = s.now().Sub(s.start)
	}
	return snap
}
