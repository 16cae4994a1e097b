package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/trajectory-simulator/core"
	"github.com/signalsfoundry/trajectory-simulator/model"
)

func TestWritePlotPNG(t *testing.T) {
	p, records := sampleRecords(t, model.DefaultScenario())

	var buf bytes.Buffer
	if err := WritePlot(&buf, "png", records, p, ViewProfile); err != nil {
		t.Fatalf("WritePlot: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("output is not a PNG (%d bytes)", buf.Len())
	}
}

func TestWritePlotGroundTrackSVG(t *testing.T) {
	p, records := sampleRecords(t, model.DefaultScenario())

	var buf bytes.Buffer
	if err := WritePlot(&buf, "SVG", records, p, ViewGroundTrack); err != nil {
		t.Fatalf("WritePlot: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Fatalf("output is not SVG")
	}
	for _, label := range []string{"Ground track", "target", "radar range"} {
		if !strings.Contains(out, label) {
			t.Errorf("svg missing %q", label)
		}
	}
}

func TestNewPlotViews(t *testing.T) {
	p, records := sampleRecords(t, model.DefaultScenario())
	for _, view := range []string{ViewProfile, ViewAltitude, ViewGroundTrack, ""} {
		if _, err := NewPlot(records, p, view); err != nil {
			t.Errorf("NewPlot(%q): %v", view, err)
		}
	}
	if _, err := NewPlot(records, p, "isometric"); !errors.Is(err, ErrUnknownView) {
		t.Fatalf("NewPlot(isometric) error = %v, want ErrUnknownView", err)
	}
	if _, err := NewPlot(nil, p, ViewProfile); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("NewPlot(nil) error = %v, want ErrNoRecords", err)
	}
}

func TestWritePlotRejectsUnknownFormat(t *testing.T) {
	err := WritePlot(&bytes.Buffer{}, "bmp", []core.Record{{}}, core.Parameters{}, ViewProfile)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("WritePlot error = %v, want ErrUnknownFormat", err)
	}
}

func TestImageFormatFromPath(t *testing.T) {
	if got, err := ImageFormatFromPath("/tmp/run.PNG"); err != nil || got != "png" {
		t.Fatalf("ImageFormatFromPath(run.PNG) = %q, %v", got, err)
	}
	if _, err := ImageFormatFromPath("run.csv"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("ImageFormatFromPath(run.csv) error = %v", err)
	}
}
