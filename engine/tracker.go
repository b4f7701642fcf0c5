package engine

import (
	"io"
	"sync"
	"time"

	"github.com/franksops/skycp/store"
)

// CheckpointConfig defines the criteria for when to save a unit's byte count
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

// JobTracker journals the state of every unit of a job into a store.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
}

// NewJobTracker creates a new JobTracker
func NewJobTracker(s store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  s,
		config: config,
	}
}

// InitJob writes a pending record for each unit of job in one batch.
func (jt *JobTracker) InitJob(job *Job) error {
	if len(job.Units) == 0 {
		return nil
	}
	records := make([]*store.JobRecord, 0, len(job.Units))
	for _, unit := range job.Units {
		records = append(records, &store.JobRecord{
			ID:              store.RecordKey(job.ID, unit.ID),
			JobID:           job.ID,
			SourcePath:      unit.Source,
			DestinationPath: unit.Destination,
			State:           store.StatePending,
			TotalBytes:      unit.Size,
		})
	}
	return jt.store.SaveJobs(records)
}

func (jt *JobTracker) update(jobID, unitID string, fn func(*store.JobRecord)) error {
	return jt.store.UpdateJob(store.RecordKey(jobID, unitID), fn)
}

// MarkInProgress updates a unit's state to InProgress
func (jt *JobTracker) MarkInProgress(jobID, unitID string) error {
	return jt.update(jobID, unitID, func(r *store.JobRecord) {
		r.State = store.StateInProgress
	})
}

// MarkCompleted updates a unit's state to Completed
func (jt *JobTracker) MarkCompleted(jobID, unitID string) error {
	return jt.update(jobID, unitID, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.BytesTransferred = r.TotalBytes
	})
}

// MarkFailed updates a unit's state to Failed with an error message
func (jt *JobTracker) MarkFailed(jobID, unitID string, err error) error {
	return jt.update(jobID, unitID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// Records returns the journal of jobID in key order.
func (jt *JobTracker) Records(jobID string) ([]*store.JobRecord, error) {
	records, err := jt.store.List(store.JobPrefix(jobID))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, store.ErrJobNotFound
	}
	return records, nil
}

// TrackedWriter wraps an io.Writer to track bytes written and checkpoint progress
type TrackedWriter struct {
	io.Writer
	tracker *JobTracker
	key     string

	mu              sync.Mutex
	bytesWritten    int64
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

// NewTrackedWriter creates a TrackedWriter checkpointing into the record
// of unitID within jobID.
func (jt *JobTracker) NewTrackedWriter(w io.Writer, jobID, unitID string, startBytes int64) *TrackedWriter {
	return &TrackedWriter{
		Writer:          w,
		tracker:         jt,
		key:             store.RecordKey(jobID, unitID),
		bytesWritten:    startBytes,
		lastCheckpoint:  startBytes,
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
	// A lost checkpoint only costs resume precision.
	_ = tw.tracker.store.UpdateJob(tw.key, func(r *store.JobRecord) {
		r.BytesTransferred = bytes
	})

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
