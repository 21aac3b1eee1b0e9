package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/store"
)

func testRecords() []models.ResponseRecord {
	return []models.ResponseRecord{
		{Name: "ana", Correct: models.DirectionRight, User: "right", CorrectGuess: true, Coherence: 0.42, ReactionTime: 450},
		{Correct: models.DirectionLeft, User: models.NoResponse, Coherence: -0.1, ReactionTime: 2000},
		{Name: "O'Brien, Jr.", Correct: models.DirectionLeft, User: "right", Coherence: 0.333, ReactionTime: 812.25},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{" CSV ", FormatCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testRecords()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "name,correct,user,correct_guess,coherence,reaction_time" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "ana,right,right,true,0.42,450" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], `"O'Brien, Jr."`) {
		t.Errorf("row 3 does not quote the comma: %q", lines[3])
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	want := testRecords()
	if len(got) != len(want) {
		t.Fatalf("ReadCSV() returned %d records, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"wrong header":  "a,b,c,d,e,f\n",
		"bad bool":      "name,correct,user,correct_guess,coherence,reaction_time\n,left,left,maybe,0.1,1\n",
		"inconsistent":  "name,correct,user,correct_guess,coherence,reaction_time\n,left,right,true,0.1,1\n",
		"short row":     "name,correct,user,correct_guess,coherence,reaction_time\n,left\n",
		"negative time": "name,correct,user,correct_guess,coherence,reaction_time\n,left,left,true,0.1,-1\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(input)); err == nil {
				t.Error("ReadCSV() accepted invalid input")
			}
		})
	}
}

func TestWriteJSON_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("WriteJSON(nil) = %q, want []", got)
	}
}

func TestWrite_UsesVerbatimStoreExport(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewFileRecordStore(filepath.Join(t.TempDir(), "results.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range testRecords() {
		if err := s.Append(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	var viaExport, viaStore bytes.Buffer
	if err := Write(ctx, s, FormatJSON, &viaExport); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Export(ctx, &viaStore); err != nil {
		t.Fatal(err)
	}
	if viaExport.String() != viaStore.String() {
		t.Error("JSON export differs from the store's verbatim export")
	}

	var csvBuf bytes.Buffer
	if err := Write(ctx, s, FormatCSV, &csvBuf); err != nil {
		t.Fatalf("Write(csv) error = %v", err)
	}
	if n := strings.Count(csvBuf.String(), "\n"); n != 4 {
		t.Errorf("csv export has %d lines, want 4", n)
	}
}

func TestRecordSchema(t *testing.T) {
	data, err := MarshalSchema(RecordSchema())
	if err != nil {
		t.Fatalf("MarshalSchema() error = %v", err)
	}

	var doc struct {
		Type                 string                     `json:"type"`
		Required             []string                   `json:"required"`
		AdditionalProperties *bool                      `json:"additionalProperties"`
		Properties           map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if doc.Type != "object" {
		t.Errorf("type = %q, want object", doc.Type)
	}
	if doc.AdditionalProperties == nil || *doc.AdditionalProperties {
		t.Error("schema allows additional properties")
	}

	required := strings.Join(doc.Required, ",")
	for _, field := range []string{"correct", "user", "correct_guess", "coherence", "reaction_time"} {
		if !strings.Contains(required, field) {
			t.Errorf("required %v is missing %s", doc.Required, field)
		}
	}
	for _, field := range doc.Required {
		if field == "name" {
			t.Error("name must be optional")
		}
	}

	var user struct {
		Enum []string `json:"enum"`
	}
	if err := json.Unmarshal(doc.Properties["user"], &user); err != nil {
		t.Fatal(err)
	}
	if strings.Join(user.Enum, ",") != "left,right,no_response" {
		t.Errorf("user enum = %v", user.Enum)
	}

	var correct struct {
		Enum []string `json:"enum"`
	}
	if err := json.Unmarshal(doc.Properties["correct"], &correct); err != nil {
		t.Fatal(err)
	}
	if strings.Join(correct.Enum, ",") != "left,right" {
		t.Errorf("correct enum = %v, want left,right", correct.Enum)
	}
}

func TestArraySchema(t *testing.T) {
	data, err := MarshalSchema(ArraySchema())
	if err != nil {
		t.Fatalf("MarshalSchema() error = %v", err)
	}
	var doc struct {
		Schema string `json:"$schema"`
		Type   string `json:"type"`
		Items  struct {
			Schema string `json:"$schema"`
			Type   string `json:"type"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Type != "array" || doc.Items.Type != "object" || doc.Schema == "" || doc.Items.Schema != "" {
		t.Errorf("array schema = %+v", doc)
	}
}
