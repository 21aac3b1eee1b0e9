package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvandessel/dotmotion/internal/engine"
	"github.com/nvandessel/dotmotion/internal/evaluate"
	"github.com/nvandessel/dotmotion/internal/export"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/plot"
	"github.com/nvandessel/dotmotion/internal/ranking"
	"github.com/nvandessel/dotmotion/internal/session"
	"github.com/nvandessel/dotmotion/internal/visualization"
)

// CreateTrialRequest is the optional body of POST /api/trials.
type CreateTrialRequest struct {
	Name string `json:"name,omitempty"`
}

// TrialResponse describes an issued trial. The client renders the stimulus
// from Coherence and Direction and answers with TrialID.
type TrialResponse struct {
	TrialID    string           `json:"trial_id"`
	Coherence  float64          `json:"coherence"`
	Direction  models.Direction `json:"direction"`
	Variant    models.Variant   `json:"variant"`
	DurationMs int64            `json:"duration_ms"`
	ExpiresAt  time.Time        `json:"expires_at"`
}

// ResponseRequest is the body of POST /api/responses. With TrialID set the
// server's pending trial supplies the ground truth; otherwise the embedded
// submission must carry correct_response and coherence itself.
type ResponseRequest struct {
	TrialID string `json:"trial_id,omitempty"`
	evaluate.Submission
}

// TimeoutRequest is the body of POST /api/timeouts.
type TimeoutRequest struct {
	TrialID         string  `json:"trial_id,omitempty"`
	Name            string  `json:"name,omitempty"`
	CorrectResponse string  `json:"correct_response,omitempty"`
	Coherence       float64 `json:"coherence"`
}

// CreateTrial draws a trial and registers it as pending.
func (h *Handlers) CreateTrial(c *gin.Context) {
	var req CreateTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	p := h.engine.NewTrial(req.Name)
	c.JSON(http.StatusCreated, h.trialResponse(p))
}

// GetTrial returns a pending trial without consuming it.
func (h *Handlers) GetTrial(c *gin.Context) {
	p, err := h.engine.Registry().Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.trialResponse(p))
}

// TrialFrame returns the dot field of a pending trial ?at milliseconds into
// its playback. Replays are deterministic per trial.
func (h *Handlers) TrialFrame(c *gin.Context) {
	at := 0
	if v := c.Query("at"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at must be a non-negative number of milliseconds"})
			return
		}
		at = n
	}

	frame, err := h.engine.Frame(c.Param("id"), time.Duration(at)*time.Millisecond)
	if err != nil {
		h.fail(c, "Failed to render frame", err)
		return
	}
	c.JSON(http.StatusOK, frame)
}

// SubmitResponse scores and records an observer's answer.
func (h *Handlers) SubmitResponse(c *gin.Context) {
	var req ResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	var (
		rec models.ResponseRecord
		err error
	)
	if req.TrialID != "" {
		if strings.TrimSpace(req.Response) == "" {
			h.fail(c, "Failed to record response", fmt.Errorf("%w: response", evaluate.ErrMissingField))
			return
		}
		rec, err = h.engine.Answer(c.Request.Context(), req.TrialID, req.Name, req.Response, req.ReactionTime)
	} else {
		rec, err = h.engine.Submit(c.Request.Context(), req.Submission)
	}
	if err != nil {
		h.fail(c, "Failed to record response", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "record": rec})
}

// SubmitTimeout records a trial that ended without an answer.
func (h *Handlers) SubmitTimeout(c *gin.Context) {
	var req TimeoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	var (
		rec models.ResponseRecord
		err error
	)
	if req.TrialID != "" {
		rec, err = h.engine.Expire(c.Request.Context(), req.TrialID, req.Name)
	} else {
		rec, err = h.engine.Submit(c.Request.Context(), evaluate.Submission{
			Name:            req.Name,
			Response:        models.NoResponse,
			CorrectResponse: req.CorrectResponse,
			Coherence:       req.Coherence,
		})
	}
	if err != nil {
		h.fail(c, "Failed to record timeout", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "record": rec})
}

// Results returns the aggregated report. ?format=text returns a plain-text table.
func (h *Handlers) Results(c *gin.Context) {
	report, _, err := h.engine.Report(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to load results", err)
		return
	}

	if c.Query("format") == "text" {
		var buf bytes.Buffer
		if err := visualization.RenderText(&buf, report); err != nil {
			h.fail(c, "Failed to render results", err)
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
		return
	}

	if report == nil {
		report = &models.Report{}
	}
	c.JSON(http.StatusOK, report)
}

// Leaderboard returns the ranked observers. When nobody qualifies the
// leaderboard is null, which is different from an entry scoring 0.
func (h *Handlers) Leaderboard(c *gin.Context) {
	lb, err := h.engine.Leaderboard(c.Request.Context())
	if errors.Is(err, ranking.ErrNoLeaderboard) {
		c.JSON(http.StatusOK, gin.H{"leaderboard": nil, "message": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, "Failed to load leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": lb})
}

// ExportJSON downloads the store verbatim as results.json.
func (h *Handlers) ExportJSON(c *gin.Context) {
	h.export(c, export.FormatJSON)
}

// ExportCSV downloads every record as CSV.
func (h *Handlers) ExportCSV(c *gin.Context) {
	h.export(c, export.FormatCSV)
}

func (h *Handlers) export(c *gin.Context, format export.Format) {
	var buf bytes.Buffer
	if err := export.Write(c.Request.Context(), h.engine.Store(), format, &buf); err != nil {
		h.fail(c, "Failed to export records", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="results`+format.Extension()+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// Schema returns the JSON Schema of a stored record.
func (h *Handlers) Schema(c *gin.Context) {
	schema := export.RecordSchema()
	if c.Query("array") == "true" {
		schema = export.ArraySchema()
	}
	data, err := export.MarshalSchema(schema)
	if err != nil {
		h.fail(c, "Failed to build schema", err)
		return
	}
	c.Data(http.StatusOK, "application/schema+json", data)
}

// Plot renders the results figure as PNG.
func (h *Handlers) Plot(c *gin.Context) {
	report, records, err := h.engine.Report(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to load results", err)
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": plot.ErrNoData.Error()})
		return
	}

	var buf bytes.Buffer
	if err := plot.Render(&buf, records, report, plot.DefaultOptions()); err != nil {
		h.fail(c, "Failed to render plot", err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// ResultsPage serves the HTML results page with the plot inlined.
func (h *Handlers) ResultsPage(c *gin.Context) {
	report, records, err := h.engine.Report(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to load results", err)
		return
	}

	var png bytes.Buffer
	if len(records) > 0 {
		if err := plot.Render(&png, records, report, plot.DefaultOptions()); err != nil {
			h.logger.Warn("plot rendering failed", "error", err)
			png.Reset()
		}
	}

	page, err := visualization.RenderHTML(records, report, png.Bytes())
	if err != nil {
		h.fail(c, "Failed to render results page", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (h *Handlers) trialResponse(p session.PendingTrial) TrialResponse {
	return TrialResponse{
		TrialID:    p.ID,
		Coherence:  p.Spec.Coherence,
		Direction:  p.Spec.Direction,
		Variant:    p.Spec.Variant,
		DurationMs: h.engine.Config().Task.TrialDuration.Milliseconds(),
		ExpiresAt:  p.ExpiresAt,
	}
}

// fail writes an error response with a status derived from err.
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	}
	c.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case engine.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrTrialNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTrialExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
