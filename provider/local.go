package provider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"
)

type localFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (l *localFileInfo) Name() string       { return l.name }
func (l *localFileInfo) Size() int64        { return l.size }
func (l *localFileInfo) IsDir() bool        { return l.isDir }
func (l *localFileInfo) ModTime() time.Time { return l.modTime }

// LocalProvider implements the Provider interface for posix-compliant local filesystems.
//
// Listings follow symbolic links to regular files and report them with the
// target's size. Links to directories, dangling links and other
// non-regular files (devices, sockets, pipes) are left out of listings, so
// a walk never descends through a link and cannot loop.
type LocalProvider struct {
	basePath string
	policy   MetadataPolicy
	onSkip   func(path, reason string)
}

// NewLocalProvider creates a new LocalProvider rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalProvider(basePath string) *LocalProvider {
	return &LocalProvider{
		basePath: basePath,
		policy:   MetadataPolicy{ModTime: true},
	}
}

// WithMetadataPolicy sets which source metadata is applied when a written file is closed.
func (p *LocalProvider) WithMetadataPolicy(policy MetadataPolicy) *LocalProvider {
	p.policy = policy
	return p
}

// OnSkip registers fn to be told about every entry List leaves out.
func (p *LocalProvider) OnSkip(fn func(path, reason string)) *LocalProvider {
	p.onSkip = fn
	return p
}

func (p *LocalProvider) skip(path, reason string) {
	if p.onSkip != nil {
		p.onSkip(path, reason)
	}
}

func (p *LocalProvider) resolve(path string) string {
	if p.basePath == "" {
		return path
	}
	return filepath.Join(p.basePath, filepath.Clean(path))
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	info, err := os.Stat(p.resolve(path))
	if err != nil {
		return nil, err
	}
	return WrapOSFileInfo(info), nil
}

func (p *LocalProvider) List(ctx context.Context, path string) ([]FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath := p.resolve(path)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}

		entryPath := filepath.Join(fullPath, entry.Name())
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Stat(entryPath)
			switch {
			case err != nil:
				p.skip(entryPath, "dangling symlink")
				continue
			case !target.Mode().IsRegular():
				p.skip(entryPath, "symlink to non-regular file")
				continue
			}
			// Keep the link's name so destinations mirror the source tree.
			infos = append(infos, WrapOSFileInfo(&renamedInfo{FileInfo: target, name: entry.Name()}))
			continue
		}

		if !info.IsDir() && !info.Mode().IsRegular() {
			p.skip(entryPath, "not a regular file")
			continue
		}
		infos = append(infos, WrapOSFileInfo(info))
	}
	return infos, nil
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return os.Open(p.resolve(path))
}

// OpenWrite creates or truncates the file at path. The parent directory
// must already exist; directory trees are created up front by the caller
// so concurrent writers never race on mkdir.
func (p *LocalProvider) OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath := p.resolve(path)

	mode := os.FileMode(0644)
	if uInfo, ok := metadata.(UnixFileInfo); ok && p.policy.Mode && uInfo.Mode() != 0 {
		mode = uInfo.Mode()
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nil, err
	}

	return &localWriteCloser{
		File:     file,
		fullPath: fullPath,
		metadata: metadata,
		policy:   p.policy,
	}, nil
}

// MkdirAll creates the directory at path and any missing parents.
func (p *LocalProvider) MkdirAll(path string) error {
	return os.MkdirAll(p.resolve(path), 0755)
}

// localWriteCloser applies metadata on Close, after the last write has
// bumped the file's mtime.
type localWriteCloser struct {
	*os.File
	fullPath string
	metadata FileInfo
	policy   MetadataPolicy
}

func (l *localWriteCloser) Close() error {
	if err := l.File.Close(); err != nil {
		return err
	}
	if l.metadata == nil {
		return nil
	}
	// Metadata is best effort: a copy with default ownership is still a copy.
	_ = l.policy.Apply(l.fullPath, l.metadata)
	return nil
}

type renamedInfo struct {
	os.FileInfo
	name string
}

func (r *renamedInfo) Name() string { return r.name }
