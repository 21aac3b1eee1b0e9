package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteRecordStore implements RecordStore using SQLite. Records live in the
// responses table; the autoincrement seq column preserves append order.
type SQLiteRecordStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

var (
	_ RecordStore = (*SQLiteRecordStore)(nil)
	_ Exporter    = (*SQLiteRecordStore)(nil)
	_ Replacer    = (*SQLiteRecordStore)(nil)
)

// NewSQLiteRecordStore opens (or creates) the database at dbPath. When the
// database is new and a results.json sits next to it, its records are
// imported once.
func NewSQLiteRecordStore(ctx context.Context, dbPath string) (*SQLiteRecordStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteRecordStore{db: db, dbPath: dbPath}

	if err := s.autoImport(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to import results file: %w", err)
	}

	return s, nil
}

// autoImport loads results.json from the database's directory into an
// empty database.
func (s *SQLiteRecordStore) autoImport(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count responses: %w", err)
	}
	if count > 0 {
		return nil
	}

	jsonPath := filepath.Join(filepath.Dir(s.dbPath), constants.ResultsFileName)
	if _, err := os.Stat(jsonPath); err != nil {
		return nil
	}

	fs, err := NewFileRecordStore(jsonPath)
	if err != nil {
		return err
	}
	recs, err := fs.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	return s.insertAll(ctx, recs, false)
}

// Path returns the database file.
func (s *SQLiteRecordStore) Path() string {
	return s.dbPath
}

// DB returns the underlying database handle.
func (s *SQLiteRecordStore) DB() *sql.DB {
	return s.db
}

// Append inserts rec as the newest row.
func (s *SQLiteRecordStore) Append(ctx context.Context, rec models.ResponseRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (name, correct, user, correct_guess, coherence, reaction_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Name, string(rec.Correct), rec.User, boolToInt(rec.CorrectGuess), rec.Coherence, rec.ReactionTime,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// LoadAll returns every record ordered by seq.
func (s *SQLiteRecordStore) LoadAll(ctx context.Context) ([]models.ResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, correct, user, correct_guess, coherence, reaction_time
		FROM responses ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	recs := make([]models.ResponseRecord, 0)
	for rows.Next() {
		var (
			rec     models.ResponseRecord
			correct string
			guess   int
		)
		if err := rows.Scan(&rec.Name, &correct, &rec.User, &guess, &rec.Coherence, &rec.ReactionTime); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		rec.Correct = models.Direction(correct)
		rec.CorrectGuess = guess != 0
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate responses: %w", err)
	}
	return recs, nil
}

// Count returns the number of stored records.
func (s *SQLiteRecordStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n)
	return n, err
}

// Export writes every record as an indented JSON array.
func (s *SQLiteRecordStore) Export(ctx context.Context, w io.Writer) error {
	recs, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	return encodeRecords(w, recs)
}

// ReplaceAll deletes every row and inserts recs in one transaction.
func (s *SQLiteRecordStore) ReplaceAll(ctx context.Context, recs []models.ResponseRecord) error {
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	return s.insertAll(ctx, recs, true)
}

// insertAll inserts recs in a single transaction, optionally clearing the
// table first.
func (s *SQLiteRecordStore) insertAll(ctx context.Context, recs []models.ResponseRecord, clear bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if clear {
		if _, err := tx.ExecContext(ctx, `DELETE FROM responses`); err != nil {
			return fmt.Errorf("failed to clear responses: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO responses (name, correct, user, correct_guess, coherence, reaction_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.Name, string(rec.Correct), rec.User,
			boolToInt(rec.CorrectGuess), rec.Coherence, rec.ReactionTime, now); err != nil {
			return fmt.Errorf("failed to insert response: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
