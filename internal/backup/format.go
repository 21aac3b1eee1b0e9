package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/dotmotion/internal/models"
)

// Snapshot formats.
const (
	// FormatPlain is a bare JSON array of records, the layout of results.json.
	FormatPlain = 1
	// FormatCompressed is a header line followed by a gzip-compressed payload.
	FormatCompressed = 2
)

// MaxDecompressedSize is the maximum allowed size of decompressed snapshot data (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// SnapshotHeader is the plain-text first line of a compressed snapshot.
type SnapshotHeader struct {
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	Checksum    string            `json:"checksum"`
	RecordCount int               `json:"record_count"`
	Compressed  bool              `json:"compressed"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DetectFormat reads the first bytes of a file to tell a compressed snapshot
// from a plain results.json copy.
func DetectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("reading first line: %w", err)
		}
		return 0, fmt.Errorf("file is empty")
	}

	firstLine := strings.TrimSpace(scanner.Text())
	if firstLine == "" {
		return 0, fmt.Errorf("first line is empty")
	}

	var header SnapshotHeader
	if err := json.Unmarshal([]byte(firstLine), &header); err == nil && header.Version == FormatCompressed {
		return FormatCompressed, nil
	}

	if firstLine[0] == '[' {
		return FormatPlain, nil
	}

	return 0, fmt.Errorf("unrecognized snapshot format")
}

// WriteCompressed writes a snapshot as a header line plus gzip payload.
func WriteCompressed(path string, s *Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := SnapshotHeader{
		Version:     FormatCompressed,
		CreatedAt:   s.CreatedAt,
		Checksum:    checksum(compressed.Bytes()),
		RecordCount: len(s.Records),
		Compressed:  true,
		Metadata:    s.Metadata,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	headerBytes = append(headerBytes, '\n')
	if _, err := f.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		return fmt.Errorf("writing compressed payload: %w", err)
	}

	return f.Sync()
}

// ReadSnapshot reads a snapshot in either format. Compressed snapshots have
// their checksum verified before decompression.
func ReadSnapshot(path string) (*Snapshot, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatPlain {
		return readPlain(path)
	}
	return readCompressed(path)
}

func readPlain(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing records: %w", err)
	}

	snap := &Snapshot{Version: FormatPlain, Records: make([]models.ResponseRecord, 0, len(raw))}
	if info, err := os.Stat(path); err == nil {
		snap.CreatedAt = info.ModTime()
	}
	for i, entry := range raw {
		rec, err := models.DecodeRecord(entry)
		if err == nil {
			err = rec.Validate()
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}

func readCompressed(path string) (*Snapshot, error) {
	header, payload, err := readHeaderAndPayload(path)
	if err != nil {
		return nil, err
	}
	if err := verify(header, payload); err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var snap Snapshot
	if err := json.Unmarshal(decompressed, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot data: %w", err)
	}
	if len(snap.Records) != header.RecordCount {
		return nil, fmt.Errorf("record count mismatch: header says %d, payload has %d", header.RecordCount, len(snap.Records))
	}
	for i, rec := range snap.Records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
	}

	return &snap, nil
}

// ReadHeader reads only the header line from a compressed snapshot.
func ReadHeader(path string) (*SnapshotHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	header, err := parseHeader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	return header, nil
}

// VerifyChecksum checks the integrity of a compressed snapshot without
// decompressing it.
func VerifyChecksum(path string) error {
	header, payload, err := readHeaderAndPayload(path)
	if err != nil {
		return err
	}
	return verify(header, payload)
}

func readHeaderAndPayload(path string) (*SnapshotHeader, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := parseHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	return header, payload, nil
}

func parseHeader(reader *bufio.Reader) (*SnapshotHeader, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}

	var header SnapshotHeader
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatCompressed {
		return nil, fmt.Errorf("expected compressed snapshot, got version %d", header.Version)
	}
	return &header, nil
}

func verify(header *SnapshotHeader, payload []byte) error {
	if actual := checksum(payload); actual != header.Checksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}
	return nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
