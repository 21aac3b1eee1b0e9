package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/models"
)

// backends returns a constructor per implementation so the same contract
// runs against each one.
func backends() map[string]func(t *testing.T) RecordStore {
	return map[string]func(t *testing.T) RecordStore{
		"file": func(t *testing.T) RecordStore {
			s, err := NewFileRecordStore(filepath.Join(t.TempDir(), "results.json"))
			if err != nil {
				t.Fatalf("NewFileRecordStore() error = %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) RecordStore {
			s, err := NewSQLiteRecordStore(context.Background(), filepath.Join(t.TempDir(), "dotmotion.db"))
			if err != nil {
				t.Fatalf("NewSQLiteRecordStore() error = %v", err)
			}
			return s
		},
		"memory": func(t *testing.T) RecordStore {
			return NewInMemoryRecordStore()
		},
	}
}

func sampleRecords() []models.ResponseRecord {
	return []models.ResponseRecord{
		{Name: "ada", Correct: models.DirectionRight, User: "right", CorrectGuess: true, Coherence: 0.3, ReactionTime: 450},
		{Correct: models.DirectionLeft, User: "right", CorrectGuess: false, Coherence: 0.05, ReactionTime: 1210.5},
		{Name: "bob", Correct: models.DirectionLeft, User: models.NoResponse, CorrectGuess: false, Coherence: -0.2, ReactionTime: 2000},
	}
}

func TestRecordStore_RoundTrip(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			want := sampleRecords()
			for _, rec := range want {
				if err := s.Append(ctx, rec); err != nil {
					t.Fatalf("Append() error = %v", err)
				}
			}

			got, err := s.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll() error = %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("LoadAll() returned %d records, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestRecordStore_EmptyLoad(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			got, err := s.LoadAll(context.Background())
			if err != nil {
				t.Fatalf("LoadAll() error = %v", err)
			}
			if len(got) != 0 {
				t.Errorf("LoadAll() on empty store returned %d records", len(got))
			}
		})
	}
}

func TestRecordStore_RejectsInvalidRecord(t *testing.T) {
	bad := models.ResponseRecord{Correct: models.DirectionLeft, User: "right", CorrectGuess: true}
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			if err := s.Append(context.Background(), bad); err == nil {
				t.Error("Append() should reject an inconsistent record")
			}
		})
	}
}

func TestRecordStore_ConcurrentAppends(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			const workers, each = 4, 10
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < each; i++ {
						rec := models.ResponseRecord{Correct: models.DirectionLeft, User: "left", CorrectGuess: true, Coherence: 0.5, ReactionTime: float64(i)}
						if err := s.Append(ctx, rec); err != nil {
							t.Errorf("Append() error = %v", err)
							return
						}
					}
				}()
			}
			wg.Wait()

			got, err := s.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll() error = %v", err)
			}
			if len(got) != workers*each {
				t.Errorf("LoadAll() returned %d records, want %d (lost updates)", len(got), workers*each)
			}
		})
	}
}

func TestRecordStore_Export(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			exp, ok := s.(Exporter)
			if !ok {
				t.Fatalf("%T does not implement Exporter", s)
			}

			var empty bytes.Buffer
			if err := exp.Export(ctx, &empty); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if got := bytes.TrimSpace(empty.Bytes()); string(got) != "[]" {
				t.Errorf("Export() of empty store = %q, want []", got)
			}

			for _, rec := range sampleRecords() {
				if err := s.Append(ctx, rec); err != nil {
					t.Fatalf("Append() error = %v", err)
				}
			}

			var buf bytes.Buffer
			if err := exp.Export(ctx, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			var decoded []models.ResponseRecord
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("Export() produced invalid JSON: %v", err)
			}
			if len(decoded) != 3 || decoded[0].Name != "ada" || decoded[2].User != models.NoResponse {
				t.Errorf("Export() = %+v", decoded)
			}
		})
	}
}

func TestRecordStore_ReplaceAll(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			for _, rec := range sampleRecords() {
				_ = s.Append(ctx, rec)
			}

			r, ok := s.(Replacer)
			if !ok {
				t.Fatalf("%T does not implement Replacer", s)
			}
			replacement := sampleRecords()[:1]
			if err := r.ReplaceAll(ctx, replacement); err != nil {
				t.Fatalf("ReplaceAll() error = %v", err)
			}

			got, _ := s.LoadAll(ctx)
			if len(got) != 1 || got[0] != replacement[0] {
				t.Errorf("after ReplaceAll() got %+v", got)
			}
		})
	}
}

func TestRecordStore_Closed(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			err := s.Append(context.Background(), sampleRecords()[0])
			if !errors.Is(err, ErrClosed) {
				t.Errorf("Append() after Close() error = %v, want ErrClosed", err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{backend: "file", want: BackendFile},
		{backend: "", want: BackendFile},
		{backend: "sqlite", want: BackendSQLite},
		{backend: "memory", want: BackendMemory},
		{backend: "postgres", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(ctx, config.StoreConfig{Backend: tt.backend}, dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer s.Close()
			if got := BackendName(s); got != tt.want {
				t.Errorf("BackendName() = %v, want %v", got, tt.want)
			}
		})
	}
}
