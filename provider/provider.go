package provider

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/franksops/skycp/location"
)

// FileInfo represents the standard metadata for a local file or directory.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider is a filesystem-like storage backend that can be walked
// directory by directory and streamed file by file.
type Provider interface {
	// Stat returns the FileInfo for the given path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the contents of the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes, applying metadata if supported.
	OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error)
}

// StoredObject is one object returned by an ObjectStore listing.
type StoredObject struct {
	Bucket  string
	Key     string
	Size    int64
	ModTime time.Time
}

// Info adapts the object to FileInfo, so a MetadataPolicy can stamp its
// modification time onto a downloaded copy.
func (o StoredObject) Info() FileInfo { return objectInfo{o} }

type objectInfo struct{ obj StoredObject }

func (i objectInfo) Name() string       { return path.Base(i.obj.Key) }
func (i objectInfo) Size() int64        { return i.obj.Size }
func (i objectInfo) IsDir() bool        { return false }
func (i objectInfo) ModTime() time.Time { return i.obj.ModTime }

// ObjectStore is the client abstraction over a remote object-store bucket
// (or azure container). Upload and Download block until the object has been
// fully transferred or the transfer failed.
type ObjectStore interface {
	// List returns every object whose key starts with prefix, across all
	// result pages.
	List(ctx context.Context, prefix string) ([]StoredObject, error)

	// Upload copies the local file at localPath to key.
	Upload(ctx context.Context, localPath, key string) error

	// Download copies key into the local file at localPath. The parent
	// directory of localPath must exist.
	Download(ctx context.Context, key, localPath string) error
}

// Opener returns the ObjectStore serving a remote location.
type Opener func(ctx context.Context, loc location.Remote) (ObjectStore, error)
