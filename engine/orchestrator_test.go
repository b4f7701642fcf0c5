package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/franksops/skycp/location"
	"github.com/franksops/skycp/provider"
	"github.com/franksops/skycp/store"
)

func newTestOrchestrator(opts Options, stores ...*memObjectStore) (*Orchestrator, *fakeOpener) {
	opener := &fakeOpener{stores: make(map[string]*memObjectStore)}
	for _, s := range stores {
		opener.stores[s.bucket] = s
	}
	return NewOrchestrator(opener.open, opts, zap.NewNop()), opener
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(body)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestOrchestrator_UploadDownloadRoundTrip(t *testing.T) {
	files := map[string]string{
		"a":   "0123456789",
		"b/c": "01234567890123456789",
	}
	src := t.TempDir()
	writeTree(t, src, files)

	bucket := newMemObjectStore("bkt")
	o, _ := newTestOrchestrator(Options{Concurrency: 2}, bucket)
	ctx := context.Background()

	up, err := o.Copy(ctx, src, "s3://bkt/backup/")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, up.State)
	assert.Equal(t, LocalToRemote, up.Direction)
	assert.Equal(t, int64(30), up.BytesCompleted)
	assert.Equal(t, 2, up.UnitsCompleted)
	assert.Contains(t, bucket.objects, "backup/a")
	assert.Contains(t, bucket.objects, "backup/b/c")

	dst := filepath.Join(t.TempDir(), "restore")
	down, err := o.Copy(ctx, "s3://bkt/backup/", dst)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, down.State)
	assert.Equal(t, RemoteToLocal, down.Direction)
	assert.Equal(t, int64(30), down.BytesCompleted)
	assert.Equal(t, int64(30), down.TotalBytes)

	assert.Equal(t, files, readTree(t, dst))
}

func TestOrchestrator_DownloadKeepsObjectModTime(t *testing.T) {
	bucket := newMemObjectStore("bkt")
	bucket.objects["k/file"] = []byte("x")
	o, _ := newTestOrchestrator(Options{Metadata: provider.MetadataPolicy{ModTime: true}}, bucket)

	dst := t.TempDir()
	_, err := o.Copy(context.Background(), "gs://bkt/k/", dst)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dst, "file"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestOrchestrator_RemoteToRemoteRejectedUpFront(t *testing.T) {
	a, b := newMemObjectStore("a"), newMemObjectStore("b")
	a.objects["x"] = []byte("x")
	o, opener := newTestOrchestrator(Options{}, a, b)

	res, err := o.Copy(context.Background(), "s3://a/x", "gs://b/y")
	require.ErrorIs(t, err, ErrUnsupportedDirection)
	assert.Equal(t, StateFailed, res.State)
	assert.Zero(t, a.listCalls.Load())
	assert.Zero(t, b.listCalls.Load())
	assert.Zero(t, opener.calls.Load())
}

func TestOrchestrator_InvalidPath(t *testing.T) {
	o, _ := newTestOrchestrator(Options{})

	res, err := o.Copy(context.Background(), "s3://bucket-without-key", t.TempDir())
	assert.ErrorIs(t, err, location.ErrInvalidPath)
	assert.Equal(t, StateFailed, res.State)

	_, err = o.Copy(context.Background(), t.TempDir(), "https://acct.blob.core.windows.net/only-container")
	assert.ErrorIs(t, err, location.ErrInvalidPath)
}

func TestOrchestrator_MissingSource(t *testing.T) {
	o, _ := newTestOrchestrator(Options{})

	res, err := o.Copy(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StateFailed, res.State)
}

func TestOrchestrator_UnitFailureSurfacesTransferError(t *testing.T) {
	src := t.TempDir()
	// zbad sorts last, so both siblings are dispatched before it fails.
	writeTree(t, src, map[string]string{"ok1": "1", "zbad": "22", "ok2": "333"})

	bucket := newMemObjectStore("bkt")
	bucket.failKey = "dst/zbad"
	o, _ := newTestOrchestrator(Options{}, bucket)

	var (
		mu       sync.Mutex
		observed []string
	)
	o.Observe(func(_ *Job, unit TransferUnit, _ error) {
		mu.Lock()
		observed = append(observed, unit.Destination)
		mu.Unlock()
	})

	res, err := o.Copy(context.Background(), src, "s3://bkt/dst")
	require.Error(t, err)

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "dst/zbad", te.Unit.Destination)
	assert.Equal(t, "upload", te.Op)
	assert.Contains(t, err.Error(), "injected upload failure")

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, res.UnitsCompleted)
	assert.Equal(t, 1, res.UnitsFailed)
	assert.Equal(t, int64(4), res.BytesCompleted)
	assert.ElementsMatch(t, []string{"dst/ok1", "dst/zbad", "dst/ok2"}, observed)
}

func TestOrchestrator_LocalCopyWithJournalAndChecksum(t *testing.T) {
	files := map[string]string{"x": "xxxxxxxx", "y/z": "zz", "y/w/v": "vvvvv"}
	src := t.TempDir()
	writeTree(t, src, files)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "hollow"), 0755))

	journal := newMemJournal()
	tracker := NewJobTracker(journal, CheckpointConfig{BytesInterval: 1, TimeInterval: time.Hour})
	o, _ := newTestOrchestrator(Options{Concurrency: 1, BufferSize: 3, Checksum: true})
	o.WithTracker(tracker)

	dst := filepath.Join(t.TempDir(), "copy")
	job, err := o.Prepare(context.Background(), src, dst)
	require.NoError(t, err)

	res, err := o.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, job.ID, res.JobID)
	assert.Equal(t, int64(15), res.BytesCompleted)

	assert.Equal(t, files, readTree(t, dst))
	assert.DirExists(t, filepath.Join(dst, "hollow"))

	records, err := tracker.Records(job.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, store.StateCompleted, rec.State, rec.ID)
		assert.Equal(t, rec.TotalBytes, rec.BytesTransferred, rec.ID)
	}
}

func TestOrchestrator_LocalSingleFileIntoDirectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n"), 0644))
	dst := t.TempDir()

	o, _ := newTestOrchestrator(Options{})
	res, err := o.Copy(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalUnits)

	body, err := os.ReadFile(filepath.Join(dst, "report.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(body))
}

func TestOrchestrator_EmptyRemotePrefix(t *testing.T) {
	o, _ := newTestOrchestrator(Options{}, newMemObjectStore("bkt"))

	res, err := o.Copy(context.Background(), "s3://bkt/nothing/", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Zero(t, res.TotalUnits)
}

func TestOrchestrator_OpenFailure(t *testing.T) {
	o, _ := newTestOrchestrator(Options{})

	_, err := o.Copy(context.Background(), "s3://unknown/key", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open s3://unknown/key")
}

func TestOrchestrator_List(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"b.txt": "bb", "a/inner": "i"})
	bucket := newMemObjectStore("bkt")
	bucket.objects["p/one"] = []byte("1")
	bucket.objects["p/two"] = []byte("22")
	o, _ := newTestOrchestrator(Options{}, bucket)
	ctx := context.Background()

	entries, err := o.List(ctx, src)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a/", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "b.txt", entries[1].Name)
	assert.Equal(t, int64(2), entries[1].Size)

	entries, err = o.List(ctx, filepath.Join(src, "b.txt"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = o.List(ctx, "s3://bkt/p/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "p/one", entries[0].Name)
	assert.Equal(t, int64(2), entries[1].Size)

	_, err = o.List(ctx, filepath.Join(src, "missing"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOrchestrator_SameFileLeavesSourceIntact(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"hello.txt": "hello world", "sub/x": "xyz"})
	file := filepath.Join(dir, "hello.txt")
	o, _ := newTestOrchestrator(Options{})
	ctx := context.Background()

	tests := []struct {
		name     string
		src, dst string
	}{
		{"file onto itself", file, file},
		{"directory onto itself", dir, dir},
		{"directory onto itself with trailing slash", dir, dir + string(filepath.Separator)},
		{"file into its own directory", file, dir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.Copy(ctx, tt.src, tt.dst)
			require.ErrorIs(t, err, ErrSameFile)
			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, map[string]string{"hello.txt": "hello world", "sub/x": "xyz"}, readTree(t, dir))
		})
	}
}

func TestOrchestrator_CopyLocalRefusesSameFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(file, []byte("keep me"), 0644))
	link := file + ".link"
	require.NoError(t, os.Symlink(file, link))

	o, _ := newTestOrchestrator(Options{})
	_, err := o.copyLocal(context.Background(), &Job{ID: "j"}, TransferUnit{ID: file, Source: file, Destination: link, Size: 7})
	require.ErrorIs(t, err, ErrSameFile)

	body, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(body))
}

func TestOrchestrator_TrailingSeparatorNamesNewDirectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(src, []byte("local"), 0644))

	bucket := newMemObjectStore("b")
	bucket.objects["x/file.bin"] = []byte("remote")
	o, _ := newTestOrchestrator(Options{}, bucket)
	ctx := context.Background()

	newdir := filepath.Join(t.TempDir(), "newdir") + string(filepath.Separator)
	_, err := o.Copy(ctx, src, newdir)
	require.NoError(t, err)
	body, err := os.ReadFile(filepath.Join(newdir, "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(body))

	out := filepath.Join(t.TempDir(), "out") + string(filepath.Separator)
	_, err = o.Copy(ctx, "s3://b/x/file.bin", out)
	require.NoError(t, err)
	body, err = os.ReadFile(filepath.Join(out, "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, "remote", string(body))
}

func TestOrchestrator_ExecuteHandBuiltJob(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0644))
	dst := filepath.Join(dir, "out")

	o, _ := newTestOrchestrator(Options{})
	job := &Job{
		ID:        "manual",
		Direction: LocalToLocal,
		Units:     []TransferUnit{{ID: src, Source: src, Destination: dst, Size: 3}},
	}

	res, err := o.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, int64(3), res.BytesCompleted)
	assert.Equal(t, int64(3), job.TotalBytes)
	require.NotNil(t, job.Progress)
}
