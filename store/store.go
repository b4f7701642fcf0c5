package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"
)

var (
	// ErrJobNotFound is returned when a record is not found in the state store.
	ErrJobNotFound = errors.New("job not found")
)

var (
	jobsBucket = []byte("jobs")
)

// JobState represents the current state of a single unit transfer.
type JobState string

const (
	StatePending    JobState = "Pending"
	StateInProgress JobState = "InProgress"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
)

// JobRecord is the journal entry for one unit of a transfer job. ID is
// RecordKey(JobID, unit id).
type JobRecord struct {
	ID               string   `json:"id"`
	JobID            string   `json:"job_id"`
	SourcePath       string   `json:"source_path"`
	DestinationPath  string   `json:"destination_path"`
	State            JobState `json:"state"`
	BytesTransferred int64    `json:"bytes_transferred"`
	TotalBytes       int64    `json:"total_bytes"`
	Error            string   `json:"error,omitempty"`
}

// RecordKey builds the key a unit is journaled under. Records of one job
// share the "<jobID>/" prefix.
func RecordKey(jobID, unitID string) string {
	return jobID + "/" + unitID
}

// JobPrefix returns the key prefix shared by all records of jobID.
func JobPrefix(jobID string) string {
	return strings.TrimSuffix(jobID, "/") + "/"
}

// Store define the interface for tracking unit status.
type Store interface {
	SaveJob(job *JobRecord) error
	GetJob(id string) (*JobRecord, error)
	// SaveJobs writes all records in a single transaction.
	SaveJobs(jobs []*JobRecord) error
	// UpdateJob applies fn to the record stored under id and saves the
	// result. fn may be called more than once and must be idempotent.
	UpdateJob(id string, fn func(*JobRecord)) error
	// List returns every record whose key starts with prefix, in key order.
	List(prefix string) ([]*JobRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveJob saves a record to the state store.
func (s *BoltStore) SaveJob(job *JobRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		if err := tx.Bucket(jobsBucket).Put([]byte(job.ID), data); err != nil {
			return fmt.Errorf("failed to put job: %w", err)
		}
		return nil
	})
}

// SaveJobs saves records in one write transaction.
func (s *BoltStore) SaveJobs(jobs []*JobRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(jobsBucket)
		for _, job := range jobs {
			data, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("failed to marshal job: %w", err)
			}
			if err := b.Put([]byte(job.ID), data); err != nil {
				return fmt.Errorf("failed to put job: %w", err)
			}
		}
		return nil
	})
}

// UpdateJob reads, modifies and writes a record inside a batched
// transaction, so concurrent updates share commits.
func (s *BoltStore) UpdateJob(id string, fn func(*JobRecord)) error {
	return s.db.Batch(func(tx *bbolt.Tx) error {
		b := tx.Bucket(jobsBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrJobNotFound
		}

		var job JobRecord
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		fn(&job)

		data, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		return b.Put([]byte(id), data)
	})
}

// GetJob retrieves a record from the state store.
func (s *BoltStore) GetJob(id string) (*JobRecord, error) {
	var job JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(jobsBucket).Get([]byte(id))
		if data == nil {
			return ErrJobNotFound
		}

		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &job, nil
}

// List scans the keys under prefix with a cursor.
func (s *BoltStore) List(prefix string) ([]*JobRecord, error) {
	var records []*JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(jobsBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			var rec JobRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
