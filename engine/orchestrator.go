package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/franksops/skycp/location"
	"github.com/franksops/skycp/provider"
)

// ErrUnsupportedDirection is returned for remote to remote transfers.
var ErrUnsupportedDirection = errors.New("unsupported transfer direction")

// State is a step of a transfer invocation.
type State string

const (
	StateResolving    State = "Resolving"
	StateEnumerating  State = "Enumerating"
	StateTransferring State = "Transferring"
	StateCompleted    State = "Completed"
	StateFailed       State = "Failed"
)

// TransferError wraps the failure of a single unit.
type TransferError struct {
	Op   string
	Unit TransferUnit
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s -> %s: %v", e.Op, e.Unit.Source, e.Unit.Destination, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Result summarizes an invocation. It is returned alongside any error, so
// callers always see how far a failed transfer got.
type Result struct {
	JobID     string
	State     State
	Direction Direction
	Snapshot
	Elapsed time.Duration
}

// Observer is told about every finished unit. Observers run on worker
// goroutines and must be safe for concurrent use.
type Observer func(job *Job, unit TransferUnit, err error)

// Options tune how units are executed.
type Options struct {
	// Concurrency caps parallel units; <= 0 runs every unit at once.
	Concurrency int
	// BufferSize is the copy buffer for local copies.
	BufferSize int
	// Checksum verifies local copies with a CRC64 of both files.
	Checksum bool
	// Metadata selects what is preserved on local destinations.
	Metadata provider.MetadataPolicy
}

// Orchestrator drives a transfer through resolution, enumeration and
// parallel execution.
type Orchestrator struct {
	open      provider.Opener
	opts      Options
	logger    *zap.Logger
	local     *provider.LocalProvider
	enum      *Enumerator
	buffers   *bufferPool
	tracker   *JobTracker
	observers []Observer
}

// NewOrchestrator creates an Orchestrator that reaches remote stores
// through open.
func NewOrchestrator(open provider.Opener, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		open:    open,
		opts:    opts,
		logger:  logger,
		local:   provider.NewLocalProvider("").WithMetadataPolicy(opts.Metadata),
		enum:    NewEnumerator(logger),
		buffers: newBufferPool(opts.BufferSize),
	}
}

// WithTracker journals every unit of every job through t.
func (o *Orchestrator) WithTracker(t *JobTracker) *Orchestrator {
	o.tracker = t
	return o
}

// Observe registers fn for unit completions. Register before Execute.
func (o *Orchestrator) Observe(fn Observer) {
	o.observers = append(o.observers, fn)
}

func (o *Orchestrator) transition(jobID string, state State, fields ...zap.Field) {
	fields = append([]zap.Field{zap.String("state", string(state))}, fields...)
	if jobID != "" {
		fields = append(fields, zap.String("job", jobID))
	}
	if state == StateFailed {
		o.logger.Error("transfer state", fields...)
		return
	}
	o.logger.Info("transfer state", fields...)
}

// Prepare resolves src and dst and enumerates the units of the transfer.
// Remote to remote pairs are rejected before any store is opened.
func (o *Orchestrator) Prepare(ctx context.Context, src, dst string) (*Job, error) {
	o.transition("", StateResolving, zap.String("source", src), zap.String("destination", dst))

	srcLoc, err := location.Resolve(src)
	if err != nil {
		o.transition("", StateFailed, zap.Error(err))
		return nil, err
	}
	dstLoc, err := location.Resolve(dst)
	if err != nil {
		o.transition("", StateFailed, zap.Error(err))
		return nil, err
	}

	dir := DirectionOf(srcLoc, dstLoc)
	if dir == RemoteToRemote {
		err := fmt.Errorf("%w: %s to %s", ErrUnsupportedDirection, srcLoc, dstLoc)
		o.transition("", StateFailed, zap.Error(err))
		return nil, err
	}

	var store provider.ObjectStore
	if remote, ok := remoteSide(srcLoc, dstLoc); ok {
		store, err = o.open(ctx, remote)
		if err != nil {
			err = fmt.Errorf("failed to open %s: %w", remote, err)
			o.transition("", StateFailed, zap.Error(err))
			return nil, err
		}
	}

	o.transition("", StateEnumerating, zap.Stringer("direction", dir))
	job, err := o.enum.Enumerate(ctx, srcLoc, dstLoc, store)
	if err != nil {
		o.transition("", StateFailed, zap.Error(err))
		return nil, err
	}
	o.logger.Info("enumerated source",
		zap.String("job", job.ID),
		zap.Int("units", len(job.Units)),
		zap.Int64("bytes", job.TotalBytes),
	)
	return job, nil
}

// Execute creates the job's destination directories and then runs every
// unit through Run. The first unit failure is returned as a
// *TransferError once in-flight units have drained. Jobs built by hand
// get their totals and Progress here.
func (o *Orchestrator) Execute(ctx context.Context, job *Job) (*Result, error) {
	start := time.Now()
	if job.Progress == nil {
		job.TotalBytes = 0
		for _, unit := range job.Units {
			job.TotalBytes += unit.Size
		}
		job.Progress = NewProgress(len(job.Units), job.TotalBytes)
	}
	o.transition(job.ID, StateTransferring,
		zap.Stringer("direction", job.Direction),
		zap.Int("units", len(job.Units)),
		zap.Int64("bytes", job.TotalBytes),
	)

	if o.tracker != nil {
		o.journal("init", o.tracker.InitJob(job))
	}

	for _, dir := range job.Dirs {
		if err := o.local.MkdirAll(dir); err != nil {
			return o.finish(job, start, fmt.Errorf("failed to create directory %s: %w", dir, err))
		}
	}

	var fn unitFunc
	switch job.Direction {
	case LocalToLocal:
		fn = o.copyLocal
	case LocalToRemote:
		fn = o.upload
	case RemoteToLocal:
		fn = o.download
	default:
		return o.finish(job, start, fmt.Errorf("%w: %s", ErrUnsupportedDirection, job.Direction))
	}
	op := job.Direction.String()

	_, err := Run(ctx, job.Units,
		func(ctx context.Context, unit TransferUnit) (int64, error) {
			if o.tracker != nil {
				o.journal("start", o.tracker.MarkInProgress(job.ID, unit.ID))
			}
			n, err := fn(ctx, job, unit)
			if err != nil {
				return n, &TransferError{Op: op, Unit: unit, Err: err}
			}
			return n, nil
		},
		func(c Completion[TransferUnit, int64]) {
			o.completed(job, c.Item, c.Err)
		},
		WithConcurrency(o.opts.Concurrency),
	)
	return o.finish(job, start, err)
}

func (o *Orchestrator) completed(job *Job, unit TransferUnit, err error) {
	job.Progress.OnComplete(unit, err)

	if err != nil {
		o.logger.Warn("unit failed", zap.String("job", job.ID), zap.String("unit", unit.ID), zap.Error(err))
	} else {
		o.logger.Debug("unit completed", zap.String("job", job.ID), zap.String("unit", unit.ID), zap.Int64("bytes", unit.Size))
	}

	if o.tracker != nil {
		if err != nil {
			o.journal("fail", o.tracker.MarkFailed(job.ID, unit.ID, err))
		} else {
			o.journal("complete", o.tracker.MarkCompleted(job.ID, unit.ID))
		}
	}

	for _, obs := range o.observers {
		obs(job, unit, err)
	}
}

func (o *Orchestrator) journal(op string, err error) {
	if err != nil {
		o.logger.Warn("journal write failed", zap.String("op", op), zap.Error(err))
	}
}

func (o *Orchestrator) finish(job *Job, start time.Time, err error) (*Result, error) {
	res := &Result{
		JobID:     job.ID,
		State:     StateCompleted,
		Direction: job.Direction,
		Snapshot:  job.Progress.Snapshot(),
		Elapsed:   time.Since(start),
	}
	if err != nil {
		res.State = StateFailed
		o.transition(job.ID, StateFailed, zap.Int("completed", res.UnitsCompleted), zap.Error(err))
		return res, err
	}
	o.transition(job.ID, StateCompleted,
		zap.Int("completed", res.UnitsCompleted),
		zap.Int64("bytes", res.BytesCompleted),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// Copy is Prepare followed by Execute.
func (o *Orchestrator) Copy(ctx context.Context, src, dst string) (*Result, error) {
	job, err := o.Prepare(ctx, src, dst)
	if err != nil {
		return &Result{State: StateFailed}, err
	}
	return o.Execute(ctx, job)
}

// Entry is one line of a listing.
type Entry struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// List returns the children of a local directory, a single local file, or
// every remote object under a prefix.
func (o *Orchestrator) List(ctx context.Context, p string) ([]Entry, error) {
	loc, err := location.Resolve(p)
	if err != nil {
		return nil, err
	}

	switch l := loc.(type) {
	case location.Remote:
		store, err := o.open(ctx, l)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", l, err)
		}
		objects, err := store.List(ctx, l.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", l, err)
		}
		entries := make([]Entry, 0, len(objects))
		for _, obj := range objects {
			entries = append(entries, Entry{Name: obj.Key, Size: obj.Size, ModTime: obj.ModTime})
		}
		return entries, nil

	default:
		info, err := o.local.Stat(ctx, l.String())
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, l)
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return []Entry{toEntry(info)}, nil
		}

		infos, err := o.local.List(ctx, l.String())
		if err != nil {
			return nil, err
		}
		entries := make([]Entry, 0, len(infos))
		for _, fi := range infos {
			entries = append(entries, toEntry(fi))
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		return entries, nil
	}
}

func toEntry(fi provider.FileInfo) Entry {
	name := fi.Name()
	if fi.IsDir() {
		name = path.Clean(name) + "/"
	}
	return Entry{Name: name, Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()}
}

// remoteSide returns the remote location of a pair, if any.
func remoteSide(src, dst location.Location) (location.Remote, bool) {
	if r, ok := src.(location.Remote); ok {
		return r, true
	}
	r, ok := dst.(location.Remote)
	return r, ok
}
