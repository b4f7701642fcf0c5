package engine

import (
	"github.com/franksops/skycp/location"
	"github.com/franksops/skycp/provider"
)

// Direction is the shape of a transfer: where the bytes come from and go.
type Direction int

const (
	LocalToLocal Direction = iota
	LocalToRemote
	RemoteToLocal
	RemoteToRemote
)

func (d Direction) String() string {
	switch d {
	case LocalToLocal:
		return "local-to-local"
	case LocalToRemote:
		return "upload"
	case RemoteToLocal:
		return "download"
	case RemoteToRemote:
		return "remote-to-remote"
	default:
		return "unknown"
	}
}

// DirectionOf classifies a source/destination pair.
func DirectionOf(src, dst location.Location) Direction {
	switch srcRemote, dstRemote := location.IsRemote(src), location.IsRemote(dst); {
	case srcRemote && dstRemote:
		return RemoteToRemote
	case srcRemote:
		return RemoteToLocal
	case dstRemote:
		return LocalToRemote
	default:
		return LocalToLocal
	}
}

// TransferUnit is one file or object copy with a known size.
type TransferUnit struct {
	// ID identifies the unit within its job: the source path or key.
	ID string

	// Source is a local path, or an object key for remote sources.
	Source string

	// Destination is a local path, or an object key for remote destinations.
	Destination string

	Size int64

	// Info is set for local sources.
	Info provider.FileInfo

	// Object is set for remote sources.
	Object *provider.StoredObject
}

// Job is the set of units for one transfer invocation.
type Job struct {
	ID          string
	Direction   Direction
	Source      location.Location
	Destination location.Location

	Units []TransferUnit

	// Dirs are local destination directories created before any unit runs.
	Dirs []string

	TotalBytes int64
	Progress   *Progress

	// Store serves the remote side of the job. It is nil for local copies.
	Store provider.ObjectStore
}
