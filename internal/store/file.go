package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/dotmotion/internal/models"
)

// FileRecordStore implements RecordStore as a single JSON array file
// (results.json). Every Append reads the whole file, appends one entry and
// rewrites it. The read-modify-write runs under an in-process lock, so
// concurrent appends from one process never lose records; separate processes
// sharing the file are not coordinated.
type FileRecordStore struct {
	mu     sync.Mutex
	path   string
	closed bool

	// loadErrors tracks entries skipped during the most recent read.
	loadErrors []LoadError
}

var (
	_ RecordStore       = (*FileRecordStore)(nil)
	_ Exporter          = (*FileRecordStore)(nil)
	_ Replacer          = (*FileRecordStore)(nil)
	_ LoadErrorReporter = (*FileRecordStore)(nil)
)

// NewFileRecordStore creates a file store at path. The parent directory is
// created if needed; the file itself is created on first append.
func NewFileRecordStore(path string) (*FileRecordStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileRecordStore{path: path}, nil
}

// Path returns the backing file.
func (s *FileRecordStore) Path() string {
	return s.path
}

// Append adds rec to the end of the file.
func (s *FileRecordStore) Append(ctx context.Context, rec models.ResponseRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	entry, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, corrupt := s.readRaw()
	if corrupt {
		// Keep the unreadable file instead of silently overwriting it.
		aside := fmt.Sprintf("%s.corrupt-%s", s.path, time.Now().UTC().Format("20060102T150405Z"))
		if err := os.Rename(s.path, aside); err != nil {
			return fmt.Errorf("failed to move corrupt results file aside: %w", err)
		}
	}

	raw = append(raw, entry)
	return s.writeRaw(raw)
}

// LoadAll returns every readable record in file order. A missing or corrupt
// file yields an empty sequence; entries that fail strict decoding are
// skipped and reported through LoadErrors.
func (s *FileRecordStore) LoadAll(ctx context.Context) ([]models.ResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, _ := s.readRaw()
	return s.decodeAll(raw), nil
}

// Export writes the file content verbatim when it holds a JSON array, and
// an empty array otherwise.
func (s *FileRecordStore) Export(ctx context.Context, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	data, err := os.ReadFile(s.path)
	if err != nil || !isJSONArray(data) {
		_, werr := io.WriteString(w, "[]\n")
		return werr
	}
	_, err = w.Write(data)
	return err
}

// ReplaceAll rewrites the file with recs.
func (s *FileRecordStore) ReplaceAll(ctx context.Context, recs []models.ResponseRecord) error {
	raw := make([]json.RawMessage, 0, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		entry, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		raw = append(raw, entry)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.writeRaw(raw)
}

// LoadErrors returns the entries skipped during the most recent read.
func (s *FileRecordStore) LoadErrors() []LoadError {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LoadError, len(s.loadErrors))
	copy(out, s.loadErrors)
	return out
}

// Close marks the store closed. There is no open file handle to release.
func (s *FileRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// readRaw reads the array entries without decoding them. corrupt is true
// when the file exists but is not a JSON array. Callers hold s.mu.
func (s *FileRecordStore) readRaw() (raw []json.RawMessage, corrupt bool) {
	s.loadErrors = s.loadErrors[:0]

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.loadErrors = append(s.loadErrors, LoadError{File: s.path, Error: err.Error()})
		}
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		s.loadErrors = append(s.loadErrors, LoadError{
			File:    s.path,
			Content: truncateForError(string(data)),
			Error:   err.Error(),
		})
		return nil, true
	}
	return raw, false
}

// decodeAll strictly decodes each entry, skipping and recording failures.
// Line is the 1-based entry index. Callers hold s.mu.
func (s *FileRecordStore) decodeAll(raw []json.RawMessage) []models.ResponseRecord {
	recs := make([]models.ResponseRecord, 0, len(raw))
	for i, entry := range raw {
		rec, err := models.DecodeRecord(entry)
		if err == nil {
			err = rec.Validate()
		}
		if err != nil {
			s.loadErrors = append(s.loadErrors, LoadError{
				File:    s.path,
				Line:    i + 1,
				Content: truncateForError(string(entry)),
				Error:   err.Error(),
			})
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}

// writeRaw writes entries as an indented JSON array, replacing the file
// atomically. Callers hold s.mu.
func (s *FileRecordStore) writeRaw(raw []json.RawMessage) error {
	if raw == nil {
		raw = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".results-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace results file: %w", err)
	}
	return nil
}

func isJSONArray(data []byte) bool {
	var raw []json.RawMessage
	return json.Unmarshal(data, &raw) == nil
}
