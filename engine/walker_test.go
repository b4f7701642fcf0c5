package engine

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/skycp/provider"
)

type mockFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return m.size }
func (m mockFileInfo) IsDir() bool        { return m.isDir }
func (m mockFileInfo) ModTime() time.Time { return m.modTime }

type mockProvider struct {
	files map[string]mockFileInfo
	dirs  map[string][]mockFileInfo
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		files: make(map[string]mockFileInfo),
		dirs:  make(map[string][]mockFileInfo),
	}
}

func (m *mockProvider) Stat(ctx context.Context, path string) (provider.FileInfo, error) {
	if info, ok := m.files[path]; ok {
		return info, nil
	}
	return nil, fmt.Errorf("file not found: %s", path)
}

func (m *mockProvider) List(ctx context.Context, path string) ([]provider.FileInfo, error) {
	files, ok := m.dirs[path]
	if !ok {
		return nil, fmt.Errorf("directory not found: %s", path)
	}
	res := make([]provider.FileInfo, len(files))
	for i, f := range files {
		res[i] = f
	}
	return res, nil
}

func (m *mockProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockProvider) OpenWrite(ctx context.Context, path string, metadata provider.FileInfo) (io.WriteCloser, error) {
	return nil, fmt.Errorf("not implemented")
}

func TestWalker_Walk(t *testing.T) {
	mp := newMockProvider()

	// /root
	// /root/file1.txt
	// /root/dir1/file2.txt
	// /root/dir1/dir2/file3.txt
	mp.files["/root"] = mockFileInfo{name: "root", isDir: true}
	mp.dirs["/root"] = []mockFileInfo{
		{name: "file1.txt", size: 1},
		{name: "dir1", isDir: true},
	}
	mp.dirs["/root/dir1"] = []mockFileInfo{
		{name: "file2.txt", size: 2},
		{name: "dir2", isDir: true},
	}
	mp.dirs["/root/dir1/dir2"] = []mockFileInfo{
		{name: "file3.txt", size: 3},
	}

	var files, dirs []string
	var total int64
	err := NewWalker(mp).Walk(context.Background(), "/root", func(rel string, info provider.FileInfo) error {
		if info.IsDir() {
			dirs = append(dirs, rel)
			return nil
		}
		files = append(files, rel)
		total += info.Size()
		return nil
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"file1.txt", "dir1/file2.txt", "dir1/dir2/file3.txt"}, files)
	assert.Equal(t, []string{"", "dir1", "dir1/dir2"}, dirs)
	assert.Equal(t, int64(6), total)
}

func TestWalker_Walk_SingleFile(t *testing.T) {
	mp := newMockProvider()
	mp.files["/root/file1.txt"] = mockFileInfo{name: "file1.txt", size: 9}

	var visited []string
	err := NewWalker(mp).Walk(context.Background(), "/root/file1.txt", func(rel string, info provider.FileInfo) error {
		visited = append(visited, rel+"|"+info.Name())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"|file1.txt"}, visited)
}

func TestWalker_Walk_Errors(t *testing.T) {
	mp := newMockProvider()
	mp.files["/root"] = mockFileInfo{name: "root", isDir: true}

	err := NewWalker(mp).Walk(context.Background(), "/missing", func(string, provider.FileInfo) error { return nil })
	assert.ErrorContains(t, err, "failed to stat source /missing")

	err = NewWalker(mp).Walk(context.Background(), "/root", func(string, provider.FileInfo) error { return nil })
	assert.ErrorContains(t, err, "failed to list directory /root")

	stop := fmt.Errorf("stop")
	mp.dirs["/root"] = []mockFileInfo{{name: "a"}}
	err = NewWalker(mp).Walk(context.Background(), "/root", func(rel string, _ provider.FileInfo) error {
		if rel == "a" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
}
