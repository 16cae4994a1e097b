package core

// Trajectory is the ordered sample sequence of one run. Index 0 is the
// launch state. It only grows until Finalize; after that it is read-only and
// safe to share between goroutines.
type Trajectory struct {
	states    []State
	finalized bool
}

// NewTrajectory starts a trajectory at the launch state. capacity is a hint.
func NewTrajectory(launch State, capacity int) *Trajectory {
	if capacity < 1 {
		capacity = 1
	}
	states := make([]State, 0, capacity)
	return &Trajectory{states: append(states, launch)}
}

// Append adds the next accepted state.
func (tr *Trajectory) Append(s State) error {
	if tr.finalized {
		return ErrTrajectoryFinalized
	}
	tr.states = append(tr.states, s)
	return nil
}

// Finalize marks the trajectory complete. It is idempotent.
func (tr *Trajectory) Finalize() { tr.finalized = true }

// Finalized reports whether Finalize has been called.
func (tr *Trajectory) Finalized() bool { return tr.finalized }

// Len returns the number of samples.
func (tr *Trajectory) Len() int { return len(tr.states) }

// At returns sample i.
func (tr *Trajectory) At(i int) State { return tr.states[i] }

// Last returns the most recent sample.
func (tr *Trajectory) Last() State { return tr.states[len(tr.states)-1] }

// States returns a copy of all samples.
func (tr *Trajectory) States() []State {
	out := make([]State, len(tr.states))
	copy(out, tr.states)
	return out
}
