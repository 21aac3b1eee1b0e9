package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nvandessel/dotmotion/internal/models"
)

// InMemoryRecordStore implements RecordStore for testing and development.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records []models.ResponseRecord
	closed  bool
}

var (
	_ RecordStore = (*InMemoryRecordStore)(nil)
	_ Exporter    = (*InMemoryRecordStore)(nil)
	_ Replacer    = (*InMemoryRecordStore)(nil)
)

// NewInMemoryRecordStore creates a new in-memory store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{
		records: make([]models.ResponseRecord, 0),
	}
}

// Append adds a record to the store.
func (s *InMemoryRecordStore) Append(ctx context.Context, rec models.ResponseRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.records = append(s.records, rec)
	return nil
}

// LoadAll returns a copy of every record in append order.
func (s *InMemoryRecordStore) LoadAll(ctx context.Context) ([]models.ResponseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	out := make([]models.ResponseRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Export writes the records as an indented JSON array.
func (s *InMemoryRecordStore) Export(ctx context.Context, w io.Writer) error {
	recs, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	return encodeRecords(w, recs)
}

// ReplaceAll swaps the store contents for recs.
func (s *InMemoryRecordStore) ReplaceAll(ctx context.Context, recs []models.ResponseRecord) error {
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.records = append(make([]models.ResponseRecord, 0, len(recs)), recs...)
	return nil
}

// Close marks the store closed.
func (s *InMemoryRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// encodeRecords writes recs as a JSON array indented like results.json.
func encodeRecords(w io.Writer, recs []models.ResponseRecord) error {
	if recs == nil {
		recs = []models.ResponseRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(recs)
}
