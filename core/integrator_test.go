package core

import "testing"

func TestStep_PositionUsesUpdatedVelocity(t *testing.T) {
	p := testParams()
	p.DragCoeff = Vec3{}
	p.Dt = 0.5

	s0 := State{Position: Vec3{Z: 100}, Velocity: Vec3{X: 10, Z: 20}}
	s1 := Step(s0, p)

	wantW := 20 - 9.81*0.5
	if !almostEqual(s1.Velocity.Z, wantW, 1e-12) {
		t.Fatalf("w = %v, want %v", s1.Velocity.Z, wantW)
	}
	// Semi-implicit: z advances with the new w, not the old one.
	if want := 100 + wantW*0.5; !almostEqual(s1.Position.Z, want, 1e-12) {
		t.Fatalf("z = %v, want %v", s1.Position.Z, want)
	}
	if want := 100 + 20*0.5; almostEqual(s1.Position.Z, want, 1e-9) {
		t.Fatalf("z = %v matches explicit Euler, expected semi-implicit update", s1.Position.Z)
	}
	if s1.Position.X != 5 || s1.Velocity.X != 10 {
		t.Fatalf("x/u = %v/%v, want 5/10", s1.Position.X, s1.Velocity.X)
	}
	if s1.T != 0.5 {
		t.Fatalf("t = %v, want 0.5", s1.T)
	}
}

func TestStep_DoesNotMutateInput(t *testing.T) {
	p := testParams()
	s0 := State{T: 1, Position: Vec3{X: 1, Y: 2, Z: 3}, Velocity: Vec3{X: 4, Y: 5, Z: 6}}
	before := s0
	_ = Step(s0, p)
	if s0 != before {
		t.Fatalf("Step mutated its input: %+v -> %+v", before, s0)
	}
}
