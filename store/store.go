package store

import (
	"encoding/json"
	"time"

	"gitlab.com/tozd/go/errors"
	"go.etcd.io/bbolt"
)

var (
	// ErrJobNotFound is returned when a job is not found in the state store.
	ErrJobNotFound = errors.Base("job not found")

	// ErrRunNotFound is returned when a run is not found in the state store.
	ErrRunNotFound = errors.Base("run not found")
)

var (
	jobsBucket = []byte("jobs")
	runsBucket = []byte("runs")
)

// JobState represents the current state of a single file copy.
type JobState string

const (
	StatePending    JobState = "Pending"
	StateInProgress JobState = "InProgress"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
)

// JobRecord is the ledger entry for one copy job.
type JobRecord struct {
	ID               string   `json:"id"`
	RunID            string   `json:"run_id"`
	QueueID          int      `json:"queue_id"`
	SourcePath       string   `json:"source_path"`
	DestinationPath  string   `json:"destination_path"`
	State            JobState `json:"state"`
	BytesTransferred int64    `json:"bytes_transferred"`
	TotalBytes       int64    `json:"total_bytes"`
	Checksum         uint64   `json:"checksum,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// RunRecord summarises one dispatcher run.
type RunRecord struct {
	ID             string        `json:"id"`
	SourceDir      string        `json:"source_dir"`
	DestinationDir string        `json:"destination_dir"`
	Workers        int           `json:"workers"`
	Files          int           `json:"files"`
	Bytes          int64         `json:"bytes"`
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed"`
	Error          string        `json:"error,omitempty"`
}

// Store defines the interface for recording runs and their jobs.
type Store interface {
	SaveJob(job *JobRecord) error
	GetJob(id string) (*JobRecord, error)
	ListJobs(runID string) ([]*JobRecord, error)
	SaveRun(run *RunRecord) error
	GetRun(id string) (*RunRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{jobsBucket, runsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func put(db *bbolt.DB, bucket []byte, key string, v any) error {
	return db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Errorf("failed to marshal %s record: %w", bucket, err)
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func get(db *bbolt.DB, bucket []byte, key string, v any, notFound error) error {
	return db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return notFound
		}
		if err := json.Unmarshal(data, v); err != nil {
			return errors.Errorf("failed to unmarshal %s record: %w", bucket, err)
		}
		return nil
	})
}

// SaveJob inserts or replaces a job record.
func (s *BoltStore) SaveJob(job *JobRecord) error {
	return put(s.db, jobsBucket, job.ID, job)
}

// GetJob retrieves a job record by ID.
func (s *BoltStore) GetJob(id string) (*JobRecord, error) {
	var job JobRecord
	if err := get(s.db, jobsBucket, id, &job, ErrJobNotFound); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns every job recorded for runID, in key order.
func (s *BoltStore) ListJobs(runID string) ([]*JobRecord, error) {
	var jobs []*JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(_, data []byte) error {
			var job JobRecord
			if err := json.Unmarshal(data, &job); err != nil {
				return errors.Errorf("failed to unmarshal job: %w", err)
			}
			if job.RunID == runID {
				jobs = append(jobs, &job)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// SaveRun inserts or replaces a run record.
func (s *BoltStore) SaveRun(run *RunRecord) error {
	return put(s.db, runsBucket, run.ID, run)
}

// GetRun retrieves a run record by ID.
func (s *BoltStore) GetRun(id string) (*RunRecord, error) {
	var run RunRecord
	if err := get(s.db, runsBucket, id, &run, ErrRunNotFound); err != nil {
		return nil, err
	}
	return &run, nil
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
