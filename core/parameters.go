package core

import (
	"math"

	"github.com/signalsfoundry/trajectory-simulator/model"
)

// Parameters are the physical and numerical constants of one run. They are
// built once by Configure and never mutated.
type Parameters struct {
	Mass          float64
	ReferenceArea float64
	AirDensity    float64
	Gravity       float64
	// DragCoeff holds Cx, Cy and Cz, one per body axis.
	DragCoeff Vec3
	WindSpeed float64
	Dt        float64
	TMax      float64

	// RadarRange and Target are nil when not configured.
	RadarRange *float64
	Target     *Vec3
}

// MaxSteps is the number of integration steps whose start time lies
// strictly before TMax, i.e. ceil(TMax/Dt).
func (p Parameters) MaxSteps() int {
	n := p.TMax / p.Dt
	if n >= math.MaxInt {
		return math.MaxInt
	}
	// Absorb representation error so 10/0.01 yields 1000, not 1001.
	return int(math.Ceil(n - 1e-9*math.Max(1, n)))
}

// State is the simulated body at time T.
type State struct {
	T        float64
	Position Vec3
	Velocity Vec3
}

// IsFinite reports whether every component of the state is finite.
func (s State) IsFinite() bool {
	return isFinite(s.T) && s.Position.IsFinite() && s.Velocity.IsFinite()
}

// Configure validates a scenario and derives the run parameters and the
// launch state.
func Configure(sc model.Scenario) (Parameters, State, error) {
	if err := validate(sc); err != nil {
		return Parameters{}, State{}, err
	}

	p := Parameters{
		Mass:          sc.Mass,
		ReferenceArea: sc.ReferenceArea,
		AirDensity:    sc.AirDensity,
		Gravity:       sc.Gravity,
		DragCoeff:     Vec3{X: sc.DragCoeffX, Y: sc.DragCoeffY, Z: sc.DragCoeffZ},
		WindSpeed:     sc.WindSpeed,
		Dt:            sc.Dt,
		TMax:          sc.TMax,
	}
	if sc.RadarRange != nil {
		r := *sc.RadarRange
		p.RadarRange = &r
	}
	if sc.HasTarget() {
		p.Target = &Vec3{X: *sc.TargetX, Y: *sc.TargetY}
	}

	return p, LaunchState(sc), nil
}

// LaunchState derives the t=0 state from launch speed, climb angle, heading
// and crosswind. The wind is added to the lateral component only.
func LaunchState(sc model.Scenario) State {
	el := radians(sc.LaunchAngleDeg)
	hd := radians(sc.HeadingAngleDeg)
	return State{
		Position: Vec3{Z: sc.InitialHeight},
		Velocity: Vec3{
			X: sc.InitialSpeed * math.Cos(el) * math.Cos(hd),
			Y: sc.InitialSpeed*math.Cos(el)*math.Sin(hd) + sc.WindSpeed,
			Z: sc.InitialSpeed * math.Sin(el),
		},
	}
}

func validate(sc model.Scenario) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"mass", sc.Mass},
		{"reference_area", sc.ReferenceArea},
		{"air_density", sc.AirDensity},
		{"gravity", sc.Gravity},
		{"drag_coeff_x", sc.DragCoeffX},
		{"drag_coeff_y", sc.DragCoeffY},
		{"drag_coeff_z", sc.DragCoeffZ},
		{"initial_speed", sc.InitialSpeed},
		{"initial_height", sc.InitialHeight},
		{"launch_angle_deg", sc.LaunchAngleDeg},
		{"heading_angle_deg", sc.HeadingAngleDeg},
		{"wind_speed", sc.WindSpeed},
		{"dt", sc.Dt},
		{"t_max", sc.TMax},
	}
	for _, f := range fields {
		if !isFinite(f.value) {
			return &ConfigurationError{Field: f.name, Value: f.value, Reason: "must be finite"}
		}
	}
	optional := []struct {
		name  string
		value *float64
	}{
		{"radar_range", sc.RadarRange},
		{"target_x", sc.TargetX},
		{"target_y", sc.TargetY},
	}
	for _, f := range optional {
		if f.value != nil && !isFinite(*f.value) {
			return &ConfigurationError{Field: f.name, Value: *f.value, Reason: "must be finite"}
		}
	}

	switch {
	case sc.Mass <= 0:
		return &ConfigurationError{Field: "mass", Value: sc.Mass, Reason: "must be > 0"}
	case sc.ReferenceArea < 0:
		return &ConfigurationError{Field: "reference_area", Value: sc.ReferenceArea, Reason: "must be >= 0"}
	case sc.AirDensity < 0:
		return &ConfigurationError{Field: "air_density", Value: sc.AirDensity, Reason: "must be >= 0"}
	case sc.Dt <= 0:
		return &ConfigurationError{Field: "dt", Value: sc.Dt, Reason: "must be > 0"}
	case sc.TMax <= 0:
		return &ConfigurationError{Field: "t_max", Value: sc.TMax, Reason: "must be > 0"}
	case sc.RadarRange != nil && *sc.RadarRange < 0:
		return &ConfigurationError{Field: "radar_range", Value: *sc.RadarRange, Reason: "must be >= 0"}
	}
	return nil
}
