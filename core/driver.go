package core

import (
	"context"
	"iter"
)

// cancelCheckInterval is how many steps Run takes between context checks.
const cancelCheckInterval = 256

// maxPrealloc caps the sample buffer Run reserves up front.
const maxPrealloc = 1 << 16

// Stepper produces the samples of one run on demand, in the manner of
// bufio.Scanner:
//
//	st := core.NewStepper(params, launch)
//	for st.Next() {
//		use(st.State())
//	}
//	if err := st.Err(); err != nil { ... }
//
// The first call to Next yields the launch state. Each later call takes one
// integration step, provided fewer than Parameters.MaxSteps steps have been
// taken and the current sample is above ground (Z > 0). The sample that
// reaches or crosses the ground is therefore the last one produced. A caller
// may stop calling Next at any point; no work is done ahead of demand.
type Stepper struct {
	params   Parameters
	cur      State
	steps    int
	maxSteps int
	started  bool
	done     bool
	err      error
}

// NewStepper prepares a run from validated parameters and a launch state.
func NewStepper(p Parameters, launch State) *Stepper {
	return &Stepper{
		params:   p,
		cur:      launch,
		maxSteps: p.MaxSteps(),
	}
}

// Next advances to the next sample and reports whether one is available.
func (s *Stepper) Next() bool {
	if s.done {
		return false
	}
	if !s.started {
		s.started = true
		if !s.cur.IsFinite() {
			s.fail(s.cur)
			return false
		}
		return true
	}
	if s.steps >= s.maxSteps || s.cur.Position.Z <= 0 {
		s.done = true
		return false
	}

	next := Step(s.cur, s.params)
	s.steps++
	if !next.IsFinite() {
		s.fail(next)
		return false
	}
	s.cur = next
	return true
}

func (s *Stepper) fail(diverged State) {
	s.err = &NumericalInstabilityError{
		Step:       s.steps,
		Time:       diverged.T,
		LastFinite: s.cur,
		Diverged:   diverged,
	}
	s.done = true
}

// State returns the sample produced by the last successful Next.
func (s *Stepper) State() State { return s.cur }

// Steps returns the number of integration steps taken so far.
func (s *Stepper) Steps() int { return s.steps }

// Done reports whether the run has terminated, normally or not.
func (s *Stepper) Done() bool { return s.done }

// Err returns the error that ended the run, if any. Reaching TMax or the
// ground is not an error.
func (s *Stepper) Err() error { return s.err }

// All adapts the stepper to a range-over-func iterator yielding the sample
// index and state. Breaking out of the loop stops the run; check Err
// afterwards.
func (s *Stepper) All() iter.Seq2[int, State] {
	return func(yield func(int, State) bool) {
		for i := 0; s.Next(); i++ {
			if !yield(i, s.State()) {
				return
			}
		}
	}
}

// Run drives a Stepper to completion and returns the finalized trajectory.
//
// On a NumericalInstabilityError the trajectory holds every finite sample up
// to the failure and is returned together with the error. If ctx is
// cancelled the partial trajectory is returned with ctx.Err(). The returned
// trajectory is nil only when the launch state itself is not finite.
func Run(ctx context.Context, p Parameters, launch State) (*Trajectory, error) {
	st := NewStepper(p, launch)

	var tr *Trajectory
	for st.Next() {
		if tr == nil {
			tr = NewTrajectory(st.State(), min(p.MaxSteps(), maxPrealloc-1)+1)
			continue
		}
		// Append cannot fail here: tr is finalized only after the loop.
		_ = tr.Append(st.State())

		if st.Steps()%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				tr.Finalize()
				return tr, err
			}
		}
	}

	if tr != nil {
		tr.Finalize()
	}
	return tr, st.Err()
}
