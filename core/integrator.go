package core

// Step advances s by one fixed step of p.Dt using semi-implicit Euler:
// the velocity is updated from the acceleration at the current velocity,
// then the position is advanced with the updated velocity.
func Step(s State, p Parameters) State {
	a := Acceleration(s.Velocity, p)
	v := s.Velocity.Add(a.Scale(p.Dt))

	return State{
		T:        s.T + p.Dt,
		Position: s.Position.Add(v.Scale(p.Dt)),
		Velocity: v,
	}
}
