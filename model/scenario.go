package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Scenario is the external configuration of one simulation run. Field names
// follow the JSON keys consumed by the CLI and the HTTP API.
type Scenario struct {
	Name string `json:"name,omitempty"`

	Mass          float64 `json:"mass"`           // kg
	ReferenceArea float64 `json:"reference_area"` // m²
	AirDensity    float64 `json:"air_density"`    // kg/m³
	Gravity       float64 `json:"gravity"`        // m/s²

	DragCoeffX float64 `json:"drag_coeff_x"`
	DragCoeffY float64 `json:"drag_coeff_y"`
	DragCoeffZ float64 `json:"drag_coeff_z"`

	InitialSpeed    float64 `json:"initial_speed"`     // m/s
	InitialHeight   float64 `json:"initial_height"`    // m
	LaunchAngleDeg  float64 `json:"launch_angle_deg"`  // climb angle above horizontal
	HeadingAngleDeg float64 `json:"heading_angle_deg"` // measured from X towards Y
	WindSpeed       float64 `json:"wind_speed"`        // crosswind along Y, m/s

	Dt   float64 `json:"dt"`    // s
	TMax float64 `json:"t_max"` // s

	// Optional informational checks; they never feed back into the physics.
	RadarRange *float64 `json:"radar_range,omitempty"`
	TargetX    *float64 `json:"target_x,omitempty"`
	TargetY    *float64 `json:"target_y,omitempty"`
}

// DefaultScenario returns the reference bomb-drop configuration.
func DefaultScenario() Scenario {
	return Scenario{
		Name:            "reference",
		Mass:            230,
		ReferenceArea:   0.25,
		AirDensity:      1.225,
		Gravity:         9.81,
		DragCoeffX:      0.5,
		DragCoeffY:      0.05,
		DragCoeffZ:      0.4,
		InitialSpeed:    250,
		InitialHeight:   5000,
		LaunchAngleDeg:  60,
		HeadingAngleDeg: 45,
		WindSpeed:       10,
		Dt:              0.01,
		TMax:            60,
		RadarRange:      Float64(20000),
		TargetX:         Float64(15000),
		TargetY:         Float64(8000),
	}
}

// HasTarget reports whether both target coordinates are set.
func (s Scenario) HasTarget() bool {
	return s.TargetX != nil && s.TargetY != nil
}

// Float64 returns a pointer to f, for populating optional fields.
func Float64(f float64) *float64 { return &f }

// LoadScenario decodes a scenario from JSON. Unknown keys are rejected so a
// misspelt parameter does not silently fall back to zero.
func LoadScenario(r io.Reader) (Scenario, error) {
	return MergeScenario(r, Scenario{})
}

// MergeScenario decodes a JSON scenario on top of base. Keys absent from the
// document keep base's values; an explicit null clears an optional field.
func MergeScenario(r io.Reader, base Scenario) (Scenario, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	sc := base
	if base.RadarRange != nil {
		sc.RadarRange = Float64(*base.RadarRange)
	}
	if base.TargetX != nil {
		sc.TargetX = Float64(*base.TargetX)
	}
	if base.TargetY != nil {
		sc.TargetY = Float64(*base.TargetY)
	}
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return sc, nil
}

// LoadScenarioFile reads a JSON scenario file on top of base.
func LoadScenarioFile(path string, base Scenario) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to open scenario file: %w", err)
	}
	defer f.Close()

	return MergeScenario(f, base)
}

// SaveScenario writes the scenario as indented JSON.
func SaveScenario(w io.Writer, sc Scenario) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	return nil
}
