// Package httpapi exposes the trial engine over HTTP with gin.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvandessel/dotmotion/internal/engine"
	"github.com/nvandessel/dotmotion/internal/logging"
	"github.com/nvandessel/dotmotion/internal/ratelimit"
)

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	engine  *engine.Engine
	limiter *ratelimit.ClientLimiter
	logger  *slog.Logger
}

// NewHandlers creates the handler set. limiter and logger may be nil.
func NewHandlers(e *engine.Engine, limiter *ratelimit.ClientLimiter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handlers{engine: e, limiter: limiter, logger: logger}
}

// SetupRouter initializes the gin router with every route.
func SetupRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/results_page")
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	router.GET("/results_page", h.ResultsPage)

	api := router.Group("/api")
	api.Use(rateLimit(h.limiter))
	{
		trials := api.Group("/trials")
		{
			trials.POST("", h.CreateTrial)
			trials.GET("/:id", h.GetTrial)
			trials.GET("/:id/frame", h.TrialFrame)
		}

		api.POST("/responses", h.SubmitResponse)
		api.POST("/timeouts", h.SubmitTimeout)

		api.GET("/results", h.Results)
		api.GET("/leaderboard", h.Leaderboard)
		api.GET("/export", h.ExportJSON)
		api.GET("/export.csv", h.ExportCSV)
		api.GET("/schema", h.Schema)
		api.GET("/plot.png", h.Plot)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
