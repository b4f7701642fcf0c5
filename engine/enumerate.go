package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/franksops/skycp/location"
	"github.com/franksops/skycp/provider"
)

var (
	// ErrNotFound is returned when a local source does not exist.
	ErrNotFound = errors.New("source not found")
	// ErrSameFile is returned when a local copy would write a file onto
	// itself.
	ErrSameFile = errors.New("source and destination are the same file")
)

// Enumerator expands a source location into the flat list of units of a
// Job, with destinations already mapped.
type Enumerator struct {
	local  *provider.LocalProvider
	logger *zap.Logger
}

// NewEnumerator creates an Enumerator. Entries the local walk skips
// (directory links, dangling links, special files) are logged at warn.
func NewEnumerator(logger *zap.Logger) *Enumerator {
	return &Enumerator{
		local: provider.NewLocalProvider("").OnSkip(func(path, reason string) {
			logger.Warn("skipping source entry", zap.String("path", path), zap.String("reason", reason))
		}),
		logger: logger,
	}
}

// Enumerate builds the Job copying src to dst. store serves whichever side
// is remote and may be nil for local copies. TotalBytes is final when
// Enumerate returns.
func (e *Enumerator) Enumerate(ctx context.Context, src, dst location.Location, store provider.ObjectStore) (*Job, error) {
	job := &Job{
		ID:          uuid.NewString(),
		Direction:   DirectionOf(src, dst),
		Source:      src,
		Destination: dst,
		Store:       store,
	}
	if job.Direction == RemoteToRemote {
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedDirection, src, dst)
	}
	if job.Direction != LocalToLocal && store == nil {
		return nil, fmt.Errorf("no object store for %s transfer", job.Direction)
	}
	if job.Direction == LocalToLocal && sameFile(src.String(), dst.String()) {
		return nil, fmt.Errorf("%w: %s and %s", ErrSameFile, src, dst)
	}

	var err error
	switch s := src.(type) {
	case location.Local:
		err = e.enumerateLocal(ctx, job, s)
	case location.Remote:
		err = e.enumerateRemote(ctx, job, s, dst.(location.Local))
	}
	if err != nil {
		return nil, err
	}

	for _, unit := range job.Units {
		job.TotalBytes += unit.Size
	}
	job.Progress = NewProgress(len(job.Units), job.TotalBytes)
	return job, nil
}

func (e *Enumerator) enumerateLocal(ctx context.Context, job *Job, src location.Local) error {
	root := src.Path
	err := NewWalker(e.local).Walk(ctx, root, func(rel string, info provider.FileInfo) error {
		if info.IsDir() {
			if job.Direction == LocalToLocal {
				job.Dirs = append(job.Dirs, treeDest(job.Destination, rel))
			}
			return nil
		}

		unit := TransferUnit{
			ID:     root,
			Source: root,
			Size:   info.Size(),
			Info:   info,
		}
		if rel == "" {
			unit.Destination = singleDest(job.Destination, info.Name())
			if job.Direction == LocalToLocal {
				job.Dirs = append(job.Dirs, filepath.Dir(unit.Destination))
			}
		} else {
			unit.ID = filepath.Join(root, rel)
			unit.Source = unit.ID
			unit.Destination = treeDest(job.Destination, rel)
		}
		if job.Direction == LocalToLocal && sameFile(unit.Source, unit.Destination) {
			return fmt.Errorf("%w: %s and %s", ErrSameFile, unit.Source, unit.Destination)
		}
		job.Units = append(job.Units, unit)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, root)
	}
	return err
}

func (e *Enumerator) enumerateRemote(ctx context.Context, job *Job, src location.Remote, dst location.Local) error {
	objects, err := job.Store.List(ctx, src.Key)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", src, err)
	}

	dirs := make(map[string]struct{})
	for i := range objects {
		obj := &objects[i]
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}

		rel := strings.TrimLeft(strings.TrimPrefix(obj.Key, src.Key), "/")
		var dest string
		switch {
		case rel == "":
			dest = dst.Path
			if dirLike(dst.Path) {
				dest = filepath.Join(dst.Path, path.Base(obj.Key))
			}
		case !filepath.IsLocal(filepath.FromSlash(rel)):
			e.logger.Warn("skipping object outside destination", zap.String("key", obj.Key))
			continue
		default:
			dest = filepath.Join(dst.Path, filepath.FromSlash(rel))
		}

		dirs[filepath.Dir(dest)] = struct{}{}
		job.Units = append(job.Units, TransferUnit{
			ID:          obj.Key,
			Source:      obj.Key,
			Destination: dest,
			Size:        obj.Size,
			Object:      obj,
		})
	}

	for dir := range dirs {
		job.Dirs = append(job.Dirs, dir)
	}
	sort.Strings(job.Dirs)
	return nil
}

// treeDest maps rel, a path below a copied directory, to its destination.
func treeDest(dst location.Location, rel string) string {
	switch d := dst.(type) {
	case location.Remote:
		return provider.JoinKey(d.Key, filepath.ToSlash(rel))
	default:
		return filepath.Join(dst.String(), rel)
	}
}

// singleDest maps a single copied file named name to its destination.
func singleDest(dst location.Location, name string) string {
	switch d := dst.(type) {
	case location.Remote:
		if d.Key == "" || strings.HasSuffix(d.Key, "/") {
			return d.Key + name
		}
		return d.Key
	default:
		if dirLike(dst.String()) {
			return filepath.Join(dst.String(), name)
		}
		return dst.String()
	}
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// dirLike reports whether a destination names a directory: one that
// exists, or one written with a trailing separator.
func dirLike(p string) bool {
	return strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(filepath.Separator)) || isDir(p)
}

// sameFile reports whether a and b both exist and are the same file.
func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
