// Package store defines the RecordStore interface for persisting trial
// records, along with file, SQLite and in-memory implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/models"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// RecordStore is the append-only sequence of trial records.
//
// Append is the only mutation point for the record stream. LoadAll returns
// every record in append order; a store whose backing data is missing or
// unreadable returns an empty sequence rather than an error.
type RecordStore interface {
	Append(ctx context.Context, rec models.ResponseRecord) error
	LoadAll(ctx context.Context) ([]models.ResponseRecord, error)
	Close() error
}

// Exporter writes the entire store to w as a JSON array.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) error
}

// Replacer swaps the store contents for recs. Used when restoring backups.
type Replacer interface {
	ReplaceAll(ctx context.Context, recs []models.ResponseRecord) error
}

// LoadError represents an entry that was skipped while loading data.
type LoadError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// LoadErrorReporter is implemented by stores that skip unreadable entries.
type LoadErrorReporter interface {
	LoadErrors() []LoadError
}

// Open creates the store selected by cfg. dataDir is the directory holding
// results.json or dotmotion.db unless cfg.Path overrides the file.
func Open(ctx context.Context, cfg config.StoreConfig, dataDir string) (RecordStore, error) {
	switch cfg.Backend {
	case BackendFile, "":
		path := cfg.Path
		if path == "" {
			path = ResultsPath(dataDir)
		}
		return NewFileRecordStore(path)
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = DatabasePath(dataDir)
		}
		return NewSQLiteRecordStore(ctx, path)
	case BackendMemory:
		return NewInMemoryRecordStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// BackendName returns the backend name of a store, for logging.
func BackendName(s RecordStore) string {
	switch s.(type) {
	case *FileRecordStore:
		return BackendFile
	case *SQLiteRecordStore:
		return BackendSQLite
	case *InMemoryRecordStore:
		return BackendMemory
	default:
		return "unknown"
	}
}

// truncateForError truncates a string for error reporting to avoid huge messages.
func truncateForError(s string) string {
	const maxLen = 100
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
