package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is wrapped by every ConfigurationError.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrNumericalInstability is wrapped by every NumericalInstabilityError.
	ErrNumericalInstability = errors.New("numerical instability")
	// ErrTrajectoryFinalized is returned when appending to a finished trajectory.
	ErrTrajectoryFinalized = errors.New("trajectory already finalized")
)

// ConfigurationError reports a scenario field that failed validation. It is
// returned before any state is constructed.
type ConfigurationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s = %g %s", ErrInvalidConfiguration, e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfiguration }

// NumericalInstabilityError reports that integration produced a non-finite
// state. Step and Time identify the offending step; LastFinite is the last
// state that was accepted into the trajectory.
type NumericalInstabilityError struct {
	Step       int
	Time       float64
	LastFinite State
	Diverged   State
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("%s: non-finite state at step %d (t=%.4fs)", ErrNumericalInstability, e.Step, e.Time)
}

func (e *NumericalInstabilityError) Unwrap() error { return ErrNumericalInstability }
