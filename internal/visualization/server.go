package visualization

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nvandessel/dotmotion/internal/plot"
	"github.com/nvandessel/dotmotion/internal/stats"
	"github.com/nvandessel/dotmotion/internal/store"
)

// Server serves a live results page for a record store on localhost.
type Server struct {
	store      store.RecordStore
	stats      stats.Config
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a results server. The page is recomputed on every request.
func NewServer(s store.RecordStore, cfg stats.Config) *Server {
	return &Server{store: s, stats: cfg}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/plot.png", s.handlePlot)
	mux.HandleFunc("/api/results", s.handleResults)
	return mux
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleIndex serves the results page with the plot inlined.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	records, err := s.store.LoadAll(r.Context())
	if err != nil {
		http.Error(w, "load error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	report := stats.Aggregate(records, s.stats)

	var png bytes.Buffer
	if len(records) > 0 {
		if err := plot.Render(&png, records, report, plot.DefaultOptions()); err != nil {
			png.Reset()
		}
	}

	html, err := RenderHTML(records, report, png.Bytes())
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// handlePlot serves the results figure as PNG.
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.LoadAll(r.Context())
	if err != nil {
		http.Error(w, "load error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(records) == 0 {
		http.Error(w, plot.ErrNoData.Error(), http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := plot.Render(&buf, records, stats.Aggregate(records, s.stats), plot.DefaultOptions()); err != nil {
		http.Error(w, "plot error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// handleResults returns the aggregated report as JSON.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.LoadAll(r.Context())
	if err != nil {
		http.Error(w, "load error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	RenderJSON(w, stats.Aggregate(records, s.stats))
}
