// Package export encodes trajectory records as row-oriented output.
//
// Columns always appear in the order
//
//	t, x, y, z, u, v, w, speed, flight_path_angle_deg[, radar_detected][, distance_to_target]
//
// where the optional columns are present only when the run configures a
// radar range or a target.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/signalsfoundry/trajectory-simulator/core"
)

// Supported format names.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown output format")

var baseColumns = []string{"t", "x", "y", "z", "u", "v", "w", "speed", "flight_path_angle_deg"}

// Layout selects the optional columns.
type Layout struct {
	Radar  bool
	Target bool
}

// LayoutFor returns the layout matching the records produced for p.
func LayoutFor(p core.Parameters) Layout {
	return Layout{Radar: p.RadarRange != nil, Target: p.Target != nil}
}

// Columns returns the column names in output order.
func (l Layout) Columns() []string {
	cols := append([]string(nil), baseColumns...)
	if l.Radar {
		cols = append(cols, "radar_detected")
	}
	if l.Target {
		cols = append(cols, "distance_to_target")
	}
	return cols
}

// Row is the flat form of one record.
type Row struct {
	T                  float64  `json:"t"`
	X                  float64  `json:"x"`
	Y                  float64  `json:"y"`
	Z                  float64  `json:"z"`
	U                  float64  `json:"u"`
	V                  float64  `json:"v"`
	W                  float64  `json:"w"`
	Speed              float64  `json:"speed"`
	FlightPathAngleDeg float64  `json:"flight_path_angle_deg"`
	RadarDetected      *bool    `json:"radar_detected,omitempty"`
	DistanceToTarget   *float64 `json:"distance_to_target,omitempty"`
}

// NewRow flattens r.
func NewRow(r core.Record) Row {
	return Row{
		T:                  r.T,
		X:                  r.Position.X,
		Y:                  r.Position.Y,
		Z:                  r.Position.Z,
		U:                  r.Velocity.X,
		V:                  r.Velocity.Y,
		W:                  r.Velocity.Z,
		Speed:              r.Speed,
		FlightPathAngleDeg: r.FlightPathAngleDeg,
		RadarDetected:      r.RadarDetected,
		DistanceToTarget:   r.DistanceToTarget,
	}
}

// Rows flattens every record.
func Rows(records []core.Record) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = NewRow(r)
	}
	return rows
}

// Writer encodes records one at a time. Output may be buffered until Flush.
type Writer interface {
	Write(core.Record) error
	Flush() error
}

// NewWriter returns the writer for the named format.
func NewWriter(format string, w io.Writer, layout Layout) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return NewCSVWriter(w, layout), nil
	case FormatJSONL, "ndjson":
		return NewJSONLinesWriter(w), nil
	default:
		return nil, CheckFormat(format)
	}
}

// CheckFormat reports whether format names a supported encoding.
func CheckFormat(format string) error {
	switch strings.ToLower(format) {
	case FormatCSV, FormatJSONL, "ndjson":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ContentType returns the HTTP media type for the named format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatCSV:
		return "text/csv"
	case FormatJSONL, "ndjson":
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// WriteAll encodes records with a fresh writer and flushes it.
func WriteAll(format string, w io.Writer, layout Layout, records []core.Record) error {
	ew, err := NewWriter(format, w, layout)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := ew.Write(r); err != nil {
			return err
		}
	}
	return ew.Flush()
}

// CSVWriter writes a header followed by one line per record. The header is
// emitted on the first Write or Flush.
type CSVWriter struct {
	w           *csv.Writer
	layout      Layout
	wroteHeader bool
	buf         []string
}

// NewCSVWriter constructs a CSVWriter.
func NewCSVWriter(w io.Writer, layout Layout) *CSVWriter {
	return &CSVWriter{
		w:      csv.NewWriter(w),
		layout: layout,
		buf:    make([]string, 0, len(baseColumns)+2),
	}
}

func (c *CSVWriter) header() error {
	if c.wroteHeader {
		return nil
	}
	c.wroteHeader = true
	if err := c.w.Write(c.layout.Columns()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	return nil
}

// Write appends one record.
func (c *CSVWriter) Write(r core.Record) error {
	if err := c.header(); err != nil {
		return err
	}
	row := c.buf[:0]
	for _, v := range []float64{
		r.T,
		r.Position.X, r.Position.Y, r.Position.Z,
		r.Velocity.X, r.Velocity.Y, r.Velocity.Z,
		r.Speed, r.FlightPathAngleDeg,
	} {
		row = append(row, formatFloat(v))
	}
	if c.layout.Radar {
		cell := ""
		if r.RadarDetected != nil {
			cell = strconv.FormatBool(*r.RadarDetected)
		}
		row = append(row, cell)
	}
	if c.layout.Target {
		cell := ""
		if r.DistanceToTarget != nil {
			cell = formatFloat(*r.DistanceToTarget)
		}
		row = append(row, cell)
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write csv row at t=%s: %w", formatFloat(r.T), err)
	}
	return nil
}

// Flush writes any buffered rows.
func (c *CSVWriter) Flush() error {
	if err := c.header(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// JSONLinesWriter writes one JSON object per line.
type JSONLinesWriter struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

// NewJSONLinesWriter constructs a JSONLinesWriter.
func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	bw := bufio.NewWriter(w)
	return &JSONLinesWriter{bw: bw, enc: json.NewEncoder(bw)}
}

// Write appends one record.
func (j *JSONLinesWriter) Write(r core.Record) error {
	if err := j.enc.Encode(NewRow(r)); err != nil {
		return fmt.Errorf("encode record at t=%s: %w", formatFloat(r.T), err)
	}
	return nil
}

// Flush writes any buffered lines.
func (j *JSONLinesWriter) Flush() error {
	return j.bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
