package provider

import (
	"os"
	"syscall"
	"time"
)

// UnixFileInfo extends FileInfo with Unix-specific metadata
type UnixFileInfo interface {
	FileInfo
	UID() uint32
	GID() uint32
	Mode() os.FileMode
}

type unixFileInfo struct {
	FileInfo
	uid  uint32
	gid  uint32
	mode os.FileMode
}

func (u *unixFileInfo) UID() uint32       { return u.uid }
func (u *unixFileInfo) GID() uint32       { return u.gid }
func (u *unixFileInfo) Mode() os.FileMode { return u.mode }

// WrapOSFileInfo converts an os.FileInfo into a FileInfo, carrying
// ownership and permission bits when the platform exposes them.
func WrapOSFileInfo(info os.FileInfo) FileInfo {
	base := &localFileInfo{
		name:    info.Name(),
		size:    info.Size(),
		isDir:   info.IsDir(),
		modTime: info.ModTime(),
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return base
	}
	return &unixFileInfo{
		FileInfo: base,
		uid:      stat.Uid,
		gid:      stat.Gid,
		mode:     info.Mode().Perm(),
	}
}

// MetadataPolicy selects which source metadata is reapplied to a copied
// file. Remote sources carry only a modification time.
type MetadataPolicy struct {
	Mode    bool
	Owner   bool
	ModTime bool
}

// PreserveAll keeps permissions, ownership and modification times.
var PreserveAll = MetadataPolicy{Mode: true, Owner: true, ModTime: true}

// Apply writes the metadata selected by the policy onto path. Ownership
// changes usually need privileges, so an EPERM from chown is ignored.
func (mp MetadataPolicy) Apply(path string, info FileInfo) error {
	if unixInfo, ok := info.(UnixFileInfo); ok {
		if mp.Mode && unixInfo.Mode() != 0 {
			if err := os.Chmod(path, unixInfo.Mode()); err != nil {
				return err
			}
		}
		if mp.Owner {
			err := os.Lchown(path, int(unixInfo.UID()), int(unixInfo.GID()))
			if err != nil && !os.IsPermission(err) {
				return err
			}
		}
	}

	if mp.ModTime && !info.ModTime().IsZero() {
		return os.Chtimes(path, time.Now(), info.ModTime())
	}
	return nil
}
