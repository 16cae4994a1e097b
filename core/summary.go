package core

// Summary condenses a run. FinalPosition is the last emitted sample, which
// is the approximate impact point when ReachedGround is set; no
// interpolation to Z = 0 is attempted.
type Summary struct {
	Samples       int     `json:"samples"`
	FlightTime    float64 `json:"flight_time"`
	ApexAltitude  float64 `json:"apex_altitude"`
	ApexTime      float64 `json:"apex_time"`
	MaxSpeed      float64 `json:"max_speed"`
	FinalPosition Vec3    `json:"final_position"`
	FinalVelocity Vec3    `json:"final_velocity"`
	ReachedGround bool    `json:"reached_ground"`
	// Range is the horizontal distance of the final sample from the origin.
	Range float64 `json:"range"`

	ClosestApproach     *float64 `json:"closest_approach,omitempty"`
	ClosestApproachTime *float64 `json:"closest_approach_time,omitempty"`
	FirstRadarDetection *float64 `json:"first_radar_detection,omitempty"`
}

// SummaryBuilder accumulates a Summary one record at a time so streaming
// consumers do not need to buffer the whole run.
type SummaryBuilder struct {
	s Summary
}

// Add folds the next record into the summary. Records must arrive in order.
func (b *SummaryBuilder) Add(r Record) {
	s := &b.s
	if s.Samples == 0 || r.Position.Z > s.ApexAltitude {
		s.ApexAltitude = r.Position.Z
		s.ApexTime = r.T
	}
	if r.Speed > s.MaxSpeed {
		s.MaxSpeed = r.Speed
	}
	if r.DistanceToTarget != nil && (s.ClosestApproach == nil || *r.DistanceToTarget < *s.ClosestApproach) {
		d, t := *r.DistanceToTarget, r.T
		s.ClosestApproach, s.ClosestApproachTime = &d, &t
	}
	if r.RadarDetected != nil && *r.RadarDetected && s.FirstRadarDetection == nil {
		t := r.T
		s.FirstRadarDetection = &t
	}

	s.Samples++
	s.FlightTime = r.T
	s.FinalPosition = r.Position
	s.FinalVelocity = r.Velocity
	s.ReachedGround = r.Position.Z <= 0
	s.Range = r.Position.HorizontalNorm()
}

// Summary returns the summary of the records added so far.
func (b *SummaryBuilder) Summary() Summary { return b.s }

// Summarize builds the summary of a complete record sequence.
func Summarize(records []Record) Summary {
	var b SummaryBuilder
	for _, r := range records {
		b.Add(r)
	}
	return b.Summary()
}
