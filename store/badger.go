package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var _ Store = (*BadgerStore)(nil)

// BadgerStore is a Store implementation backed by a badger directory. It
// suits journals with many small records, where bbolt's single file
// grows slowly under frequent checkpoints.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) SaveJob(job *JobRecord) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(job.ID), data); err != nil {
			return fmt.Errorf("failed to put job: %w", err)
		}
		return nil
	})
}

// SaveJobs writes records through a WriteBatch.
func (s *BadgerStore) SaveJobs(jobs []*JobRecord) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		if err := wb.Set([]byte(job.ID), data); err != nil {
			return fmt.Errorf("failed to put job: %w", err)
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) UpdateJob(id string, fn func(*JobRecord)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}

		var job JobRecord
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
		if err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		fn(&job)

		data, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		return txn.Set([]byte(id), data)
	})
}

func (s *BadgerStore) GetJob(id string) (*JobRecord, error) {
	var job JobRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &job); err != nil {
				return fmt.Errorf("failed to unmarshal job: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BadgerStore) List(prefix string) ([]*JobRecord, error) {
	var records []*JobRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec JobRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", item.Key(), err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Open opens the store engine named by engine ("bolt" or "badger") at
// path. For bolt, path is a file; for badger, a directory.
func Open(engine, path string) (Store, error) {
	switch engine {
	case "", "bolt", "bbolt":
		return NewBoltStore(path)
	case "badger":
		return NewBadgerStore(path)
	default:
		return nil, fmt.Errorf("unknown state engine %q", engine)
	}
}
