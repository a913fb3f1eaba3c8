// Package history persists detected captures in a badger database.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"scanbridge/internal/domain"
)

var capturePrefix = []byte("c:")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history store is closed")

// Record is one persisted capture.
type Record struct {
	ID      string                `json:"id"`
	At      time.Time             `json:"at"`
	Capture domain.BarcodeCapture `json:"capture"`
}

// Store wraps badger for capture history.
type Store struct {
	db  *badger.DB
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates a store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path is required")
	}
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Record stores capture. Nil and empty captures are ignored.
func (s *Store) Record(capture *domain.BarcodeCapture) error {
	if capture.Empty() {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	rec := Record{
		ID:      uuid.NewString(),
		At:      s.now().UTC(),
		Capture: *capture,
	}
	// Images are large and already handed to live subscribers.
	rec.Capture.Image = nil

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(makeKey(rec.At, rec.ID), value)
	})
}

// Recent returns up to limit records, newest first. A limit <= 0 returns all.
func (s *Store) Recent(limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = capturePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from just past the prefix range.
		seek := append(append([]byte{}, capturePrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(capturePrefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return records, nil
}

func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = capturePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(capturePrefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Clear removes every record.
func (s *Store) Clear() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(capturePrefix); it.ValidForPrefix(capturePrefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// makeKey orders records by time, then by id.
func makeKey(at time.Time, id string) []byte {
	key := make([]byte, 0, len(capturePrefix)+8+len(id))
	key = append(key, capturePrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(at.UnixNano()))
	return append(key, id...)
}
