// Package plot renders the results figure: reaction time against coherence,
// reaction time across trials, and the psychometric curve.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/stats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no records to plot")

var (
	correctColor   = color.RGBA{G: 150, A: 255}
	incorrectColor = color.RGBA{R: 200, A: 255}
	curveColor     = color.RGBA{B: 180, A: 255}
)

// Options controls the figure size.
type Options struct {
	Width  vg.Length
	Height vg.Length
}

// DefaultOptions returns an 8 x 12 inch figure.
func DefaultOptions() Options {
	return Options{Width: 8 * vg.Inch, Height: 12 * vg.Inch}
}

// Render draws the three panels stacked vertically and writes a PNG to w.
// report may be nil, in which case it is derived from records with the
// default signed binning over the observed range.
func Render(w io.Writer, records []models.ResponseRecord, report *models.Report, opts Options) error {
	if len(records) == 0 {
		return ErrNoData
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts = DefaultOptions()
	}
	if report == nil {
		report = stats.Aggregate(records, stats.Config{Fit: true})
	}

	panels := [][]*plot.Plot{
		{reactionTimeByCoherence(records)},
		{reactionTimeByTrial(records)},
		{psychometric(report)},
	}
	for _, row := range panels {
		if row[0] == nil {
			return fmt.Errorf("building plot panels")
		}
	}

	img := vgimg.New(opts.Width, opts.Height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(panels), Cols: 1,
		PadTop: vg.Points(10), PadBottom: vg.Points(10),
		PadLeft: vg.Points(10), PadRight: vg.Points(10),
		PadY: vg.Points(20),
	}
	canvases := plot.Align(panels, tiles, dc)
	for i := range panels {
		panels[i][0].Draw(canvases[i][0])
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("writing png: %w", err)
	}
	return nil
}

// SavePNG renders the figure to path, creating parent directories.
func SavePNG(path string, records []models.ResponseRecord, report *models.Report, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating plot directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating plot file: %w", err)
	}
	if err := Render(f, records, report, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func reactionTimeByCoherence(records []models.ResponseRecord) *plot.Plot {
	p := plot.New()
	p.Title.Text = "Reaction time vs coherence"
	p.X.Label.Text = "Coherence"
	p.Y.Label.Text = "Reaction time (ms)"

	var hits, misses plotter.XYs
	for _, r := range records {
		pt := plotter.XY{X: r.Coherence, Y: r.ReactionTime}
		if r.CorrectGuess {
			hits = append(hits, pt)
		} else {
			misses = append(misses, pt)
		}
	}
	addScatter(p, hits, correctColor, "correct")
	addScatter(p, misses, incorrectColor, "incorrect")
	p.Legend.Top = true
	return p
}

func reactionTimeByTrial(records []models.ResponseRecord) *plot.Plot {
	p := plot.New()
	p.Title.Text = "Reaction time over trials"
	p.X.Label.Text = "Trial"
	p.Y.Label.Text = "Reaction time (ms)"

	xys := make(plotter.XYs, len(records))
	for i, r := range records {
		xys[i] = plotter.XY{X: float64(i + 1), Y: r.ReactionTime}
	}
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil
	}
	line.Color = curveColor
	points.Shape = draw.CircleGlyph{}
	points.Color = curveColor
	p.Add(line, points)
	return p
}

func psychometric(report *models.Report) *plot.Plot {
	p := plot.New()
	p.Title.Text = "Psychometric curve"
	p.X.Label.Text = "Coherence"
	p.Y.Label.Text = "P(right)"
	p.Y.Min, p.Y.Max = 0, 1

	if report == nil || len(report.Psychometric) == 0 {
		return p
	}

	pts := make(curveErrors, len(report.Psychometric))
	copy(pts, report.Psychometric)

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil
	}
	line.Color = curveColor
	points.Color = curveColor
	p.Add(line, points)

	if bars, err := plotter.NewYErrorBars(pts); err == nil {
		bars.Color = curveColor
		p.Add(bars)
	}

	// The fit is against signed coherence, so it only lines up with the
	// binned points when the records themselves are signed.
	if report.Fit != nil && hasNegative(report.Psychometric) {
		fit := report.Fit
		fn := plotter.NewFunction(func(c float64) float64 { return stats.Logistic(fit, c) })
		fn.Color = incorrectColor
		fn.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(fn)
		p.Legend.Add("logistic fit", fn)
		p.Legend.Top = true
		p.Legend.Left = true
	}
	return p
}

func addScatter(p *plot.Plot, xys plotter.XYs, c color.Color, label string) {
	if len(xys) == 0 {
		return
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(s)
	p.Legend.Add(label, s)
}

func hasNegative(points []models.CurvePoint) bool {
	for _, pt := range points {
		if pt.Coherence < 0 {
			return true
		}
	}
	return false
}

// curveErrors adapts curve points to plotter.XYer and plotter.YErrorer.
type curveErrors []models.CurvePoint

func (c curveErrors) Len() int { return len(c) }

func (c curveErrors) XY(i int) (float64, float64) { return c[i].Coherence, c[i].Value }

func (c curveErrors) YError(i int) (float64, float64) { return c[i].StdErr, c[i].StdErr }
