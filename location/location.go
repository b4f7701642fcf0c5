// Package location turns user supplied path strings into typed storage
// locations. Every path is either a local filesystem path or a remote
// object-store location; there is no third shape.
package location

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidPath is returned when a string looks like a remote URI but does
// not follow the grammar of its scheme.
var ErrInvalidPath = errors.New("invalid path")

// Scheme identifies the storage backend of a Location.
type Scheme string

const (
	SchemeLocal Scheme = "local"
	SchemeS3    Scheme = "s3"
	SchemeGS    Scheme = "gs"
	SchemeAzure Scheme = "azure"
)

// Location is a resolved source or destination. The only implementations
// are Local and Remote.
type Location interface {
	Scheme() Scheme
	String() string

	location()
}

// Local is a path on the local filesystem. The path is kept as given.
type Local struct {
	Path string
}

func (Local) Scheme() Scheme   { return SchemeLocal }
func (l Local) String() string { return l.Path }
func (Local) location()        {}

// Remote is an object-store location. Bucket holds the bucket name for s3
// and gs, and the storage account for azure. Container is only set for
// azure. Key may be empty, meaning the whole bucket or container.
type Remote struct {
	Kind      Scheme
	Bucket    string
	Container string
	Key       string
}

func (r Remote) Scheme() Scheme { return r.Kind }
func (Remote) location()        {}

// Account returns the azure storage account name.
func (r Remote) Account() string { return r.Bucket }

func (r Remote) String() string {
	switch r.Kind {
	case SchemeAzure:
		return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", r.Bucket, r.Container, r.Key)
	default:
		return fmt.Sprintf("%s://%s/%s", r.Kind, r.Bucket, r.Key)
	}
}

const azureHost = "blob.core.windows.net"

var azurePattern = regexp.MustCompile(`^https?://([^/.]+)\.blob\.core\.windows\.net/([^/]+)/(.*)$`)

// Resolve classifies path. Remote URIs that do not parse fail with
// ErrInvalidPath. Everything else resolves to Local, whether or not it
// exists yet, since destinations are usually created by the transfer.
func Resolve(path string) (Location, error) {
	switch {
	case strings.HasPrefix(path, "s3://"):
		return parseBucketURI(SchemeS3, path)
	case strings.HasPrefix(path, "gs://"):
		return parseBucketURI(SchemeGS, path)
	case (strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://")) && strings.Contains(path, azureHost):
		m := azurePattern.FindStringSubmatch(path)
		if m == nil {
			return nil, fmt.Errorf("%w: malformed azure blob url %q", ErrInvalidPath, path)
		}
		return Remote{Kind: SchemeAzure, Bucket: m[1], Container: m[2], Key: m[3]}, nil
	}
	return Local{Path: path}, nil
}

func parseBucketURI(scheme Scheme, path string) (Location, error) {
	rest := strings.TrimPrefix(path, string(scheme)+"://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, fmt.Errorf("%w: %q has no key separator after the bucket", ErrInvalidPath, path)
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: %q has an empty bucket", ErrInvalidPath, path)
	}
	return Remote{Kind: scheme, Bucket: bucket, Key: key}, nil
}

// IsPlausibleLocal reports whether path exists, is a directory, or lives
// in a directory that exists.
func IsPlausibleLocal(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	if info, err := os.Stat(filepath.Dir(filepath.Clean(path))); err == nil && info.IsDir() {
		return true
	}
	return false
}

// IsRemote reports whether loc addresses an object store.
func IsRemote(loc Location) bool {
	_, ok := loc.(Remote)
	return ok
}
