package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvandessel/dotmotion/internal/engine"
	"github.com/nvandessel/dotmotion/internal/logging"
	"github.com/nvandessel/dotmotion/internal/ratelimit"
)

// sweepInterval is how often idle rate-limit buckets and expired trials are
// dropped.
const sweepInterval = time.Minute

// Server is the HTTP front end of an engine.
type Server struct {
	engine     *engine.Engine
	limiter    *ratelimit.ClientLimiter
	logger     *slog.Logger
	router     *gin.Engine
	httpServer *http.Server
	mu         sync.Mutex
	addr       string
}

// NewServer builds the router from the engine's server config.
func NewServer(e *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	gin.SetMode(gin.ReleaseMode)

	cfg := e.Config().Server
	limiter := ratelimit.NewClientLimiter(cfg.Rate, cfg.Burst)
	return &Server{
		engine:  e,
		limiter: limiter,
		logger:  logger,
		router:  SetupRouter(NewHandlers(e, limiter, logger)),
	}
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address the server is listening on, or "" before start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe listens on addr and blocks until ctx is cancelled.
// Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	s.logger.Info("serving", "addr", s.Addr())

	go s.sweep(ctx)
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

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dropped := s.engine.Registry().Prune()
			idle := s.limiter.Sweep(10 * sweepInterval)
			if dropped > 0 || idle > 0 {
				s.logger.Debug("swept server state", "expired_trials", dropped, "idle_clients", idle)
			}
		}
	}
}
