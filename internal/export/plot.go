package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/signalsfoundry/trajectory-simulator/core"
)

// Plot views.
const (
	// ViewProfile plots altitude against horizontal distance from launch.
	ViewProfile = "profile"
	// ViewGroundTrack plots the x/y ground track with the target and the
	// radar range when configured.
	ViewGroundTrack = "groundtrack"
	// ViewAltitude plots altitude against time.
	ViewAltitude = "altitude"
)

var (
	// ErrUnknownView is returned for an unsupported plot view.
	ErrUnknownView = errors.New("unknown plot view")
	// ErrNoRecords is returned when there is nothing to plot.
	ErrNoRecords = errors.New("no records to plot")
)

var imageFormats = map[string]bool{"png": true, "svg": true, "pdf": true}

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
	radarRingN = 180
)

var (
	trajectoryColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	targetColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	radarColor      = color.RGBA{R: 127, G: 127, B: 127, A: 255}
)

// IsImageFormat reports whether format names an image encoding WritePlot
// supports.
func IsImageFormat(format string) bool {
	return imageFormats[strings.ToLower(format)]
}

// ImageFormatFromPath derives the image format from a file extension.
func ImageFormatFromPath(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !IsImageFormat(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	return ext, nil
}

// CheckView validates a plot view name. An empty view selects ViewProfile.
func CheckView(view string) error {
	switch strings.ToLower(view) {
	case "", ViewProfile, ViewAltitude, ViewGroundTrack:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownView, view)
}

// NewPlot builds the chart for one view of a run.
func NewPlot(records []core.Record, p core.Parameters, view string) (*plot.Plot, error) {
	if err := CheckView(view); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	pl := plot.New()
	pl.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(records))
	switch strings.ToLower(view) {
	case ViewProfile, "":
		pl.Title.Text = "Flight profile"
		pl.X.Label.Text = "Horizontal distance (m)"
		pl.Y.Label.Text = "Altitude (m)"
		for i, r := range records {
			pts[i] = plotter.XY{X: r.Position.HorizontalNorm(), Y: r.Position.Z}
		}
	case ViewAltitude:
		pl.Title.Text = "Altitude"
		pl.X.Label.Text = "Time (s)"
		pl.Y.Label.Text = "Altitude (m)"
		for i, r := range records {
			pts[i] = plotter.XY{X: r.T, Y: r.Position.Z}
		}
	case ViewGroundTrack:
		pl.Title.Text = "Ground track"
		pl.X.Label.Text = "x (m)"
		pl.Y.Label.Text = "y (m)"
		for i, r := range records {
			pts[i] = plotter.XY{X: r.Position.X, Y: r.Position.Y}
		}
		if err := addGroundMarkers(pl, p); err != nil {
			return nil, err
		}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("build trajectory line: %w", err)
	}
	line.Color = trajectoryColor
	line.Width = vg.Points(1.5)
	pl.Add(line)
	pl.Legend.Add("trajectory", line)
	pl.Legend.Top = true
	return pl, nil
}

func addGroundMarkers(pl *plot.Plot, p core.Parameters) error {
	if p.RadarRange != nil && *p.RadarRange > 0 {
		ring := make(plotter.XYs, radarRingN+1)
		for i := range ring {
			a := 2 * math.Pi * float64(i) / radarRingN
			ring[i] = plotter.XY{X: *p.RadarRange * math.Cos(a), Y: *p.RadarRange * math.Sin(a)}
		}
		line, err := plotter.NewLine(ring)
		if err != nil {
			return fmt.Errorf("build radar ring: %w", err)
		}
		line.Color = radarColor
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		pl.Add(line)
		pl.Legend.Add("radar range", line)
	}
	if p.Target != nil {
		sc, err := plotter.NewScatter(plotter.XYs{{X: p.Target.X, Y: p.Target.Y}})
		if err != nil {
			return fmt.Errorf("build target marker: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = targetColor
		sc.GlyphStyle.Radius = vg.Points(5)
		pl.Add(sc)
		pl.Legend.Add("target", sc)
	}
	return nil
}

// WritePlot renders one view of a run to w as png, svg or pdf.
func WritePlot(w io.Writer, format string, records []core.Record, p core.Parameters, view string) error {
	format = strings.ToLower(format)
	if !IsImageFormat(format) {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	pl, err := NewPlot(records, p, view)
	if err != nil {
		return err
	}
	wt, err := pl.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return fmt.Errorf("render %s plot: %w", format, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write %s plot: %w", format, err)
	}
	return nil
}

// ImageContentType returns the HTTP media type for an image format.
func ImageContentType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "svg":
		return "image/svg+xml"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
