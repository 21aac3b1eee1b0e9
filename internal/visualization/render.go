// Package visualization renders aggregated results as HTML, JSON or text.
package visualization

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"text/tabwriter"

	"github.com/nvandessel/dotmotion/internal/models"
)

// Format specifies the output format for results rendering.
type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// MaxPageRecords caps the trial table on the results page.
const MaxPageRecords = 500

// curveRow joins the three curves at one bin.
type curveRow struct {
	Coherence float64
	PRight    float64
	Accuracy  float64
	MeanRT    float64
	N         int
}

// pageRecord is a record with its 1-based position in the stream.
type pageRecord struct {
	models.ResponseRecord
	Index int
}

// htmlTemplateData holds data passed to the HTML template.
// PlotSrc is a data: URI built from PNG bytes rendered in-process.
type htmlTemplateData struct {
	Title       string
	TotalTrials int
	Leaderboard *models.Leaderboard
	Fit         *models.PsychometricFit
	Rows        []curveRow
	Records     []pageRecord
	Truncated   bool
	PlotSrc     template.URL
}

// RenderHTML produces a self-contained results page. report may be nil for
// an empty record stream; plotPNG may be nil to omit the figure.
func RenderHTML(records []models.ResponseRecord, report *models.Report, plotPNG []byte) ([]byte, error) {
	tmplBytes, err := templates.ReadFile("templates/results.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}

	tmpl, err := template.New("results").Funcs(template.FuncMap{
		"percent": func(v float64) float64 { return v * 100 },
	}).Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	data := htmlTemplateData{
		Title:       "Random dot motion results",
		TotalTrials: len(records),
		Rows:        curveRows(report),
	}
	if report != nil {
		data.Leaderboard = report.Leaderboard
		data.Fit = report.Fit
	}

	start := 0
	if len(records) > MaxPageRecords {
		start = len(records) - MaxPageRecords
		data.Truncated = true
	}
	for i := len(records) - 1; i >= start; i-- {
		data.Records = append(data.Records, pageRecord{ResponseRecord: records[i], Index: i + 1})
	}

	if len(plotPNG) > 0 {
		// Trusted bytes from the plot renderer, not user input.
		data.PlotSrc = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(plotPNG)) // #nosec G203
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderJSON writes the report as indented JSON. A nil report is written
// as an empty report with zero trials.
func RenderJSON(w io.Writer, report *models.Report) error {
	if report == nil {
		report = &models.Report{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// RenderText writes a plain-text summary: curve table then leaderboard.
func RenderText(w io.Writer, report *models.Report) error {
	if report == nil {
		_, err := fmt.Fprintln(w, "No trials recorded.")
		return err
	}

	fmt.Fprintf(w, "Trials: %d\n", report.TotalTrials)
	if report.Fit != nil {
		fmt.Fprintf(w, "Logistic fit: bias %.3f, slope %.2f, threshold %.3f (n=%d)\n",
			report.Fit.Bias, report.Fit.Slope, report.Fit.Threshold, report.Fit.N)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "coherence\tP(right)\taccuracy\tmean RT (ms)\tn\t")
	for _, r := range curveRows(report) {
		fmt.Fprintf(tw, "%.3f\t%.3f\t%.3f\t%.0f\t%d\t\n", r.Coherence, r.PRight, r.Accuracy, r.MeanRT, r.N)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	return RenderLeaderboardText(w, report.Leaderboard)
}

// RenderLeaderboardText writes the leaderboard as an aligned table.
func RenderLeaderboardText(w io.Writer, lb *models.Leaderboard) error {
	if lb == nil || len(lb.Entries) == 0 {
		_, err := fmt.Fprintln(w, "Leaderboard: no observer has enough trials yet.")
		return err
	}

	fmt.Fprintln(w, "Leaderboard:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  rank\tname\tscore\taccuracy\tmean RT (s)\ttrials")
	for _, e := range lb.Entries {
		fmt.Fprintf(tw, "  %d\t%s\t%.3f\t%.3f\t%.3f\t%d\n", e.Rank, e.Name, e.Score, e.MeanAccuracy, e.MeanRTSec, e.Trials)
	}
	return tw.Flush()
}

// curveRows zips the three curves. They share bins, so index i refers to
// the same non-empty bin in each.
func curveRows(report *models.Report) []curveRow {
	if report == nil {
		return nil
	}
	rows := make([]curveRow, len(report.Psychometric))
	for i, p := range report.Psychometric {
		rows[i] = curveRow{Coherence: p.Coherence, PRight: p.Value, N: p.N}
		if i < len(report.Accuracy) {
			rows[i].Accuracy = report.Accuracy[i].Value
		}
		if i < len(report.ReactionTime) {
			rows[i].MeanRT = report.ReactionTime[i].Value
		}
	}
	return rows
}
