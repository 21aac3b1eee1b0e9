// Package backup snapshots and restores the trial record stream.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/store"
)

// Snapshot is the payload of a backup file.
type Snapshot struct {
	Version   int                     `json:"version"`
	CreatedAt time.Time               `json:"created_at"`
	Records   []models.ResponseRecord `json:"records"`
	Metadata  map[string]string       `json:"metadata,omitempty"`
}

// DefaultBackupDir returns the default backup directory (~/.dotmotion/backups/).
func DefaultBackupDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName, "backups"), nil
}

// Backup writes every record in s to a compressed snapshot at outputPath.
func Backup(ctx context.Context, s store.RecordStore, outputPath string) (*Snapshot, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	snap := &Snapshot{
		Version:   FormatCompressed,
		CreatedAt: time.Now().UTC(),
		Records:   records,
		Metadata:  map[string]string{"backend": store.BackendName(s)},
	}
	if snap.Records == nil {
		snap.Records = []models.ResponseRecord{}
	}

	if err := WriteCompressed(outputPath, snap); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return snap, nil
}

// RestoreMode controls how restore handles existing records.
type RestoreMode string

const (
	// RestoreAppend appends the snapshot's records after the existing ones.
	RestoreAppend RestoreMode = "append"
	// RestoreReplace swaps the store contents for the snapshot's records.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode maps "" to RestoreReplace.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(s) {
	case "", RestoreReplace:
		return RestoreReplace, nil
	case RestoreAppend:
		return RestoreAppend, nil
	default:
		return "", fmt.Errorf("invalid restore mode %q (valid: append, replace)", s)
	}
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RecordsRestored int         `json:"records_restored"`
	RecordsBefore   int         `json:"records_before"`
	RecordsAfter    int         `json:"records_after"`
	Mode            RestoreMode `json:"mode"`
}

// Restore loads a snapshot (compressed or a plain results.json copy) into s.
// Replace mode requires a store implementing store.Replacer.
func Restore(ctx context.Context, s store.RecordStore, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	snap, err := ReadSnapshot(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	before, err := s.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current records: %w", err)
	}
	result := &RestoreResult{RecordsBefore: len(before), Mode: mode}

	switch mode {
	case RestoreReplace:
		r, ok := s.(store.Replacer)
		if !ok {
			return nil, fmt.Errorf("%s store does not support replace", store.BackendName(s))
		}
		if err := r.ReplaceAll(ctx, snap.Records); err != nil {
			return nil, fmt.Errorf("failed to replace records: %w", err)
		}
		result.RecordsAfter = len(snap.Records)
	case RestoreAppend:
		for i, rec := range snap.Records {
			if err := s.Append(ctx, rec); err != nil {
				return nil, fmt.Errorf("failed to restore record %d: %w", i+1, err)
			}
		}
		result.RecordsAfter = len(before) + len(snap.Records)
	default:
		return nil, fmt.Errorf("unknown restore mode: %s", mode)
	}

	result.RecordsRestored = len(snap.Records)
	return result, nil
}

// GenerateBackupPath creates a timestamped snapshot filename in dir.
func GenerateBackupPath(dir string) string {
	ts := time.Now().UTC().Format("20060102-150405.000")
	return filepath.Join(dir, fmt.Sprintf("%s%s.json.gz", backupPrefix, ts))
}
