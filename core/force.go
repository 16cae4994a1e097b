package core

// Acceleration is the force model: gravity on Z plus one quadratic drag term
// per axis. Every axis scales its own coefficient by the same dynamic
// pressure built from the total speed; drag is not resolved along the
// velocity vector. Always negative on each axis, whatever the direction of
// travel.
func Acceleration(velocity Vec3, p Parameters) Vec3 {
	speed := velocity.Norm()
	q := 0.5 * p.AirDensity * speed * speed * p.ReferenceArea

	return Vec3{
		X: -p.DragCoeff.X * q / p.Mass,
		Y: -p.DragCoeff.Y * q / p.Mass,
		Z: -p.Gravity - p.DragCoeff.Z*q/p.Mass,
	}
}
