package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franksops/skycp/location"
	"github.com/franksops/skycp/provider"
	"github.com/franksops/skycp/store"
)

// memObjectStore is an in-memory ObjectStore for one bucket.
type memObjectStore struct {
	mu        sync.Mutex
	bucket    string
	objects   map[string][]byte
	listCalls atomic.Int64
	failKey   string
}

func newMemObjectStore(bucket string) *memObjectStore {
	return &memObjectStore{bucket: bucket, objects: make(map[string][]byte)}
}

func (m *memObjectStore) List(_ context.Context, prefix string) ([]provider.StoredObject, error) {
	m.listCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []provider.StoredObject
	for key, body := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, provider.StoredObject{
				Bucket:  m.bucket,
				Key:     key,
				Size:    int64(len(body)),
				ModTime: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memObjectStore) Upload(_ context.Context, localPath, key string) error {
	if key == m.failKey {
		return errors.New("injected upload failure")
	}
	body, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = body
	m.mu.Unlock()
	return nil
}

func (m *memObjectStore) Download(_ context.Context, key, localPath string) error {
	m.mu.Lock()
	body, ok := m.objects[key]
	m.mu.Unlock()
	if !ok || key == m.failKey {
		return fmt.Errorf("no such key %q", key)
	}
	return os.WriteFile(localPath, body, 0644)
}

// fakeOpener serves stores from a fixed map and counts how often it is
// asked.
type fakeOpener struct {
	stores map[string]*memObjectStore
	calls  atomic.Int64
}

func (f *fakeOpener) open(_ context.Context, loc location.Remote) (provider.ObjectStore, error) {
	f.calls.Add(1)
	s, ok := f.stores[loc.Bucket]
	if !ok {
		return nil, fmt.Errorf("no bucket %s", loc.Bucket)
	}
	return s, nil
}

// memJournal is a concurrency-safe store.Store that counts write calls.
type memJournal struct {
	mu      sync.Mutex
	records map[string]store.JobRecord
	saves   int
	batches int
	updates int
}

func newMemJournal() *memJournal {
	return &memJournal{records: make(map[string]store.JobRecord)}
}

func (m *memJournal) SaveJob(job *store.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.records[job.ID] = *job
	return nil
}

func (m *memJournal) SaveJobs(jobs []*store.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	for _, job := range jobs {
		m.records[job.ID] = *job
	}
	return nil
}

func (m *memJournal) UpdateJob(id string, fn func(*store.JobRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return store.ErrJobNotFound
	}
	m.updates++
	fn(&rec)
	m.records[id] = rec
	return nil
}

func (m *memJournal) GetJob(id string) (*store.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return &rec, nil
}

func (m *memJournal) List(prefix string) ([]*store.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.JobRecord
	for key, rec := range m.records {
		if strings.HasPrefix(key, prefix) {
			rec := rec
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memJournal) Close() error { return nil }
