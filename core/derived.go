package core

import "math"

// Record is one output row: a trajectory sample plus its derived metrics.
// RadarDetected and DistanceToTarget are nil when the corresponding check is
// not configured.
type Record struct {
	State
	Speed              float64
	FlightPathAngleDeg float64
	RadarDetected      *bool
	DistanceToTarget   *float64
}

// Derive computes the metrics of a single sample.
func Derive(s State, p Parameters) Record {
	r := Record{
		State:              s,
		Speed:              s.Velocity.Norm(),
		FlightPathAngleDeg: degrees(math.Atan2(s.Velocity.Z, s.Velocity.HorizontalNorm())),
	}
	if p.RadarRange != nil {
		// Straight-line distance from the ground origin, not from a sensor.
		detected := s.Position.Norm() <= *p.RadarRange
		r.RadarDetected = &detected
	}
	if p.Target != nil {
		d := math.Hypot(s.Position.X-p.Target.X, s.Position.Y-p.Target.Y)
		r.DistanceToTarget = &d
	}
	return r
}

// DeriveAll computes the metrics for every sample of a finished trajectory
// in one pass.
func DeriveAll(tr *Trajectory, p Parameters) []Record {
	if tr == nil {
		return nil
	}
	out := make([]Record, tr.Len())
	for i := range out {
		out[i] = Derive(tr.At(i), p)
	}
	return out
}
