package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/dotmotion/internal/config"
)

// backupPrefix starts every snapshot file name.
const backupPrefix = "dotmotion-backup-"

// BackupInfo holds metadata for retention decisions.
type BackupInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`

	// Records is -1 when the header could not be read.
	Records int `json:"records"`
}

// RetentionPolicy decides which backups to keep.
type RetentionPolicy interface {
	Apply(backups []BackupInfo) (keep []BackupInfo)
}

// CountPolicy keeps the N most recent backups.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount backups (assumed sorted newest-first).
func (p *CountPolicy) Apply(backups []BackupInfo) []BackupInfo {
	if len(backups) <= p.MaxCount {
		return backups
	}
	return backups[:p.MaxCount]
}

// AgePolicy keeps backups newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
}

// Apply keeps backups whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(backups []BackupInfo) []BackupInfo {
	cutoff := time.Now().Add(-p.MaxAge)
	var keep []BackupInfo
	for _, b := range backups {
		if b.CreatedAt.After(cutoff) {
			keep = append(keep, b)
		}
	}
	return keep
}

// SizePolicy keeps backups until total size exceeds MaxTotalBytes.
type SizePolicy struct {
	MaxTotalBytes int64
}

// Apply keeps backups (newest-first) until adding the next would exceed the
// limit. The newest backup is always kept.
func (p *SizePolicy) Apply(backups []BackupInfo) []BackupInfo {
	var keep []BackupInfo
	var total int64
	for _, b := range backups {
		if total+b.Size > p.MaxTotalBytes && len(keep) > 0 {
			break
		}
		keep = append(keep, b)
		total += b.Size
	}
	return keep
}

// CompositePolicy keeps a backup if ANY sub-policy wants it (union).
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the union of backups kept by any sub-policy.
func (p *CompositePolicy) Apply(backups []BackupInfo) []BackupInfo {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, b := range policy.Apply(backups) {
			kept[b.Path] = true
		}
	}

	var result []BackupInfo
	for _, b := range backups {
		if kept[b.Path] {
			result = append(result, b)
		}
	}
	return result
}

// PolicyFromConfig builds the retention policy described by cfg. A zero
// MaxCount with no age or size limit keeps everything.
func PolicyFromConfig(cfg config.BackupConfig) (RetentionPolicy, error) {
	var policies []RetentionPolicy
	if cfg.MaxCount > 0 {
		policies = append(policies, &CountPolicy{MaxCount: cfg.MaxCount})
	}
	if cfg.MaxAge != "" {
		d, err := ParseDuration(cfg.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("backup max_age: %w", err)
		}
		policies = append(policies, &AgePolicy{MaxAge: d})
	}
	if cfg.MaxSize != "" {
		n, err := ParseSize(cfg.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("backup max_size: %w", err)
		}
		policies = append(policies, &SizePolicy{MaxTotalBytes: n})
	}

	switch len(policies) {
	case 0:
		return nil, nil
	case 1:
		return policies[0], nil
	default:
		return &CompositePolicy{Policies: policies}, nil
	}
}

func isBackupFile(name string) bool {
	return strings.HasPrefix(name, backupPrefix) &&
		(strings.HasSuffix(name, ".json.gz") || strings.HasSuffix(name, ".json"))
}

// ListBackups scans dir for dotmotion-backup-* files and returns them sorted
// newest-first. Compressed snapshots report the creation time and record
// count from their header; other files fall back to the modification time.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !isBackupFile(e.Name()) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		bi := BackupInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			Records:   -1,
		}

		if version, err := DetectFormat(bi.Path); err == nil {
			bi.Version = version
		}
		if bi.Version == FormatCompressed {
			if h, err := ReadHeader(bi.Path); err == nil {
				bi.CreatedAt = h.CreatedAt
				bi.Records = h.RecordCount
			}
		}

		backups = append(backups, bi)
	}

	// Sort newest first by filename (timestamp is embedded)
	sort.Slice(backups, func(i, j int) bool {
		return filepath.Base(backups[i].Path) > filepath.Base(backups[j].Path)
	})

	return backups, nil
}

// ApplyRetention deletes backups not kept by the policy. A nil policy keeps
// everything.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	if policy == nil {
		return nil, nil
	}
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}

	keep := policy.Apply(backups)
	keepSet := make(map[string]bool, len(keep))
	for _, b := range keep {
		keepSet[b.Path] = true
	}

	for _, b := range backups {
		if !keepSet[b.Path] {
			if err := os.Remove(b.Path); err != nil {
				return deleted, fmt.Errorf("removing %s: %w", filepath.Base(b.Path), err)
			}
			deleted = append(deleted, b.Path)
		}
	}

	return deleted, nil
}

// ParseDuration parses duration strings like "30d", "2w", "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	// d (days) and w (weeks) on top of the standard units
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}

// ParseSize parses size strings like "100MB", "1GB", "500KB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longer suffixes first so "MB" is not read as "B".
	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, ss := range suffixes {
		if strings.HasSuffix(s, ss.suffix) {
			num, err := strconv.ParseInt(strings.TrimSuffix(s, ss.suffix), 10, 64)
			if err != nil || num < 0 {
				return 0, fmt.Errorf("invalid size: %q", s)
			}
			return num * ss.multiplier, nil
		}
	}

	return 0, fmt.Errorf("invalid size: %q (expected suffix: B, KB, MB, GB)", s)
}
