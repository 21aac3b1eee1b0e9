// Package export writes the record stream as JSON or CSV and describes the
// record layout as a JSON Schema.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/store"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv, case-insensitively. "" means json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q (valid: json, csv)", s)
	}
}

// Extension returns the file extension for the format, with the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// CSVHeader is the first row of a CSV export.
var CSVHeader = []string{"name", "correct", "user", "correct_guess", "coherence", "reaction_time"}

// Write exports the store to w. JSON exports use the store's own verbatim
// export when it has one.
func Write(ctx context.Context, s store.RecordStore, format Format, w io.Writer) error {
	if format == FormatJSON {
		if e, ok := s.(store.Exporter); ok {
			return e.Export(ctx, w)
		}
	}

	records, err := s.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	return WriteRecords(records, format, w)
}

// WriteRecords encodes records in the given format.
func WriteRecords(records []models.ResponseRecord, format Format, w io.Writer) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, records)
	case FormatCSV:
		return WriteCSV(w, records)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []models.ResponseRecord) error {
	if records == nil {
		records = []models.ResponseRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	return nil
}

// WriteCSV writes a header row followed by one row per record. Floats use
// the shortest representation that round-trips.
func WriteCSV(w io.Writer, records []models.ResponseRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for i, r := range records {
		row := []string{
			r.Name,
			string(r.Correct),
			r.User,
			strconv.FormatBool(r.CorrectGuess),
			strconv.FormatFloat(r.Coherence, 'g', -1, 64),
			strconv.FormatFloat(r.ReactionTime, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a CSV export back into records. Every row is validated.
func ReadCSV(r io.Reader) ([]models.ResponseRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("reading csv: missing header")
	}
	if strings.Join(rows[0], ",") != strings.Join(CSVHeader, ",") {
		return nil, fmt.Errorf("reading csv: unexpected header %v", rows[0])
	}

	out := make([]models.ResponseRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (models.ResponseRecord, error) {
	guess, err := strconv.ParseBool(row[3])
	if err != nil {
		return models.ResponseRecord{}, fmt.Errorf("correct_guess: %w", err)
	}
	coh, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return models.ResponseRecord{}, fmt.Errorf("coherence: %w", err)
	}
	rt, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return models.ResponseRecord{}, fmt.Errorf("reaction_time: %w", err)
	}
	rec := models.ResponseRecord{
		Name:         row[0],
		Correct:      models.Direction(row[1]),
		User:         row[2],
		CorrectGuess: guess,
		Coherence:    coh,
		ReactionTime: rt,
	}
	return rec, rec.Validate()
}
