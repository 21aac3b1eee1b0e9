package visualization

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/stats"
	"github.com/nvandessel/dotmotion/internal/store"
)

func setupTestStore(t *testing.T, n int) store.RecordStore {
	t.Helper()
	s := store.NewInMemoryRecordStore()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		r := models.ResponseRecord{
			Name:         "ana",
			Correct:      models.DirectionRight,
			User:         "right",
			CorrectGuess: true,
			Coherence:    0.1 + 0.01*float64(i%50),
			ReactionTime: 400 + float64(i%7)*30,
		}
		if i%3 == 0 {
			r.User = "left"
			r.CorrectGuess = false
		}
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	return s
}

func TestServer_ServesHTML(t *testing.T) {
	srv := NewServer(setupTestStore(t, 40), stats.DefaultConfig(models.VariantSimple, 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "data:image/png;base64,") {
		t.Error("page does not inline the plot")
	}
	if !strings.Contains(string(body), "<td>ana</td>") {
		t.Error("page does not list the leaderboard entry")
	}
}

func TestServer_Routes(t *testing.T) {
	handler := NewServer(setupTestStore(t, 5), stats.DefaultConfig(models.VariantSimple, 1)).Handler()

	tests := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/plot.png", http.StatusOK, "image/png"},
		{"/api/results", http.StatusOK, "application/json"},
		{"/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.status)
			}
			if tt.contentType != "" && rec.Header().Get("Content-Type") != tt.contentType {
				t.Errorf("GET %s Content-Type = %q", tt.path, rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_ResultsJSON(t *testing.T) {
	handler := NewServer(setupTestStore(t, 6), stats.DefaultConfig(models.VariantSimple, 1)).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results", nil))

	var report models.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if report.TotalTrials != 6 {
		t.Errorf("TotalTrials = %d, want 6", report.TotalTrials)
	}
}

func TestServer_EmptyStore(t *testing.T) {
	handler := NewServer(store.NewInMemoryRecordStore(), stats.DefaultConfig(models.VariantSimple, 1)).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plot.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /plot.png status = %d, want 404", rec.Code)
	}
}

func TestServer_CleanShutdown(t *testing.T) {
	srv := NewServer(setupTestStore(t, 1), stats.Config{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)

	// Cancel context to trigger shutdown
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("unexpected error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down within 3 seconds")
	}
}

// waitForServer polls the server until it's ready or the timeout is reached.
func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
