// Package history persists the append-only quote measurement log.
package history

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultHistoryDir   = "./wal/history"
	historySegmentLimit = 1000
	historyMaxSegments  = 100
)

// Entry is one history record with its WAL position.
type Entry struct {
	Index  uint64
	Record domain.HistoryRecord
}

// WALStore appends quote observations to a write-ahead log. Records are
// never rewritten or deduplicated.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the history WAL under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultHistoryDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "history_",
		SegmentThreshold: historySegmentLimit,
		MaxSegments:      historyMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init history WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes records to the log in order.
func (s *WALStore) Append(records []domain.HistoryRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("history store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "marshal history record")
		}
		if err := s.wal.Write(s.wal.CurrentIndex()+1, record.ID, payload); err != nil {
			return errors.Wrapf(err, "append history record %s", record.ID)
		}
	}
	return nil
}

// RecordsAfter returns all history records written after the given WAL index.
func (s *WALStore) RecordsAfter(index uint64) ([]Entry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("history store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]Entry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		_, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		var record domain.HistoryRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode history record")
		}
		entries = append(entries, Entry{Index: idx, Record: record})
	}

	return entries, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
