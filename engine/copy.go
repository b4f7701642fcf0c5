package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// DefaultBufferSize is the size of the buffers local copies stream through.
const DefaultBufferSize = 1 * 1024 * 1024

// bufferPool hands out reusable copy buffers so many concurrent copies
// do not churn the GC.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &bufferPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

func (bp *bufferPool) get() *[]byte { return bp.pool.Get().(*[]byte) }

func (bp *bufferPool) put(b *[]byte) {
	if b != nil {
		bp.pool.Put(b)
	}
}

// unitFunc performs one unit of a job and returns the bytes it moved.
type unitFunc func(ctx context.Context, job *Job, unit TransferUnit) (int64, error)

// copyLocal streams one file to its destination, journaling written bytes
// and verifying a CRC64 of both sides when checksums are on.
func (o *Orchestrator) copyLocal(ctx context.Context, job *Job, unit TransferUnit) (int64, error) {
	// The destination is truncated on open, so it must not be the source.
	if sameFile(unit.Source, unit.Destination) {
		return 0, fmt.Errorf("%w: %s", ErrSameFile, unit.Source)
	}

	r, err := o.local.OpenRead(ctx, unit.Source)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	w, err := o.local.OpenWrite(ctx, unit.Destination, unit.Info)
	if err != nil {
		return 0, err
	}

	buf := o.buffers.get()
	defer o.buffers.put(buf)

	var src io.Reader = r
	var sum *ChecksumReader
	if o.opts.Checksum {
		sum = NewChecksumReader(r)
		src = sum
	}

	var dst io.Writer = w
	if o.tracker != nil {
		dst = o.tracker.NewTrackedWriter(w, job.ID, unit.ID, 0)
	}

	n, err := io.CopyBuffer(dst, src, *buf)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, err
	}

	if sum != nil {
		got, err := fileChecksum(unit.Destination, *buf)
		if err != nil {
			return n, fmt.Errorf("failed to verify %s: %w", unit.Destination, err)
		}
		if got != sum.Checksum() {
			return n, fmt.Errorf("%w: source %016x, copy %016x", ErrChecksumMismatch, sum.Checksum(), got)
		}
	}
	return n, nil
}

func (o *Orchestrator) upload(ctx context.Context, job *Job, unit TransferUnit) (int64, error) {
	if err := job.Store.Upload(ctx, unit.Source, unit.Destination); err != nil {
		return 0, err
	}
	return unit.Size, nil
}

func (o *Orchestrator) download(ctx context.Context, job *Job, unit TransferUnit) (int64, error) {
	if err := job.Store.Download(ctx, unit.Source, unit.Destination); err != nil {
		return 0, err
	}
	if unit.Object != nil {
		if err := o.opts.Metadata.Apply(unit.Destination, unit.Object.Info()); err != nil {
			o.logger.Debug("failed to apply object metadata", zap.String("path", unit.Destination), zap.Error(err))
		}
	}
	return unit.Size, nil
}
