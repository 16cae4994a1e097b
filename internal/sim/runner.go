// Package sim runs trajectory simulations on behalf of the CLI and the HTTP
// API, adding run identity, logging, tracing and metrics around the core
// engine.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/trajectory-simulator/core"
	"github.com/signalsfoundry/trajectory-simulator/internal/logging"
	"github.com/signalsfoundry/trajectory-simulator/model"
)

const tracerName = "github.com/signalsfoundry/trajectory-simulator/internal/sim"

// Outcome labels describing how a run ended.
const (
	OutcomeGroundImpact = "ground_impact"
	OutcomeTimeLimit    = "time_limit"
	OutcomeUnstable     = "unstable"
	OutcomeInvalid      = "invalid_config"
	OutcomeCancelled    = "cancelled"
	OutcomeError        = "error"
)

// streamCancelCheckInterval is how many records Stream delivers between
// context checks.
const streamCancelCheckInterval = 256

// RunRecorder receives one observation per finished run.
type RunRecorder interface {
	ObserveRun(outcome string, steps int, elapsed time.Duration)
}

// SweepRecorder tracks sweep progress.
type SweepRecorder interface {
	SweepStarted()
	SweepRunStarted()
	SweepRunDone()
}

// RunnerOption customises Runner construction.
type RunnerOption func(*Runner)

// WithMetricsRecorder attaches an optional recorder for run outcomes.
func WithMetricsRecorder(m RunRecorder) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithSweepRecorder attaches an optional recorder for sweep progress.
func WithSweepRecorder(m SweepRecorder) RunnerOption {
	return func(r *Runner) {
		r.sweeps = m
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) RunnerOption {
	return func(r *Runner) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// Runner executes simulation runs. It holds no per-run state and is safe
// for concurrent use.
type Runner struct {
	log     logging.Logger
	metrics RunRecorder
	sweeps  SweepRecorder
	tracer  trace.Tracer
}

// NewRunner constructs a Runner.
func NewRunner(log logging.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logging.Noop()
	}
	r := &Runner{
		log:    log,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Result is the outcome of one run. Records is nil for streamed runs.
type Result struct {
	RunID    string
	Scenario model.Scenario
	Params   core.Parameters
	Records  []core.Record
	Summary  core.Summary
	Outcome  string
	Steps    int
	Elapsed  time.Duration
}

// Run simulates sc to completion and derives the per-sample metrics.
//
// Configuration errors return a nil Result. On numerical instability or
// cancellation the Result holds everything computed up to that point and is
// returned together with the error.
func (r *Runner) Run(ctx context.Context, sc model.Scenario) (*Result, error) {
	ctx, log, span := r.begin(ctx, "trajectory.run", sc)
	defer span.End()

	p, launch, err := core.Configure(sc)
	if err != nil {
		r.fail(ctx, log, span, OutcomeInvalid, err)
		return nil, err
	}

	start := time.Now()
	tr, runErr := core.Run(ctx, p, launch)
	res := &Result{
		RunID:    logging.RunIDFromContext(ctx),
		Scenario: sc,
		Params:   p,
		Elapsed:  time.Since(start),
	}
	if tr != nil {
		res.Records = core.DeriveAll(tr, p)
		res.Summary = core.Summarize(res.Records)
		res.Steps = tr.Len() - 1
	}

	r.finish(ctx, log, span, res, runErr)
	return res, runErr
}

// Stream simulates sc and hands each record to fn as soon as it is
// produced, without buffering the trajectory. If fn returns an error the run
// stops and that error is returned.
func (r *Runner) Stream(ctx context.Context, sc model.Scenario, fn func(core.Record) error) (*Result, error) {
	ctx, log, span := r.begin(ctx, "trajectory.stream", sc)
	defer span.End()

	p, launch, err := core.Configure(sc)
	if err != nil {
		r.fail(ctx, log, span, OutcomeInvalid, err)
		return nil, err
	}

	start := time.Now()
	st := core.NewStepper(p, launch)
	var sb core.SummaryBuilder
	var runErr error
	for st.Next() {
		rec := core.Derive(st.State(), p)
		sb.Add(rec)
		if err := fn(rec); err != nil {
			runErr = fmt.Errorf("deliver record at t=%.4fs: %w", rec.T, err)
			break
		}
		if st.Steps()%streamCancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
		}
	}
	if runErr == nil {
		runErr = st.Err()
	}

	res := &Result{
		RunID:    logging.RunIDFromContext(ctx),
		Scenario: sc,
		Params:   p,
		Summary:  sb.Summary(),
		Steps:    st.Steps(),
		Elapsed:  time.Since(start),
	}
	r.finish(ctx, log, span, res, runErr)
	return res, runErr
}

func (r *Runner) begin(ctx context.Context, spanName string, sc model.Scenario) (context.Context, logging.Logger, trace.Span) {
	ctx, log := logging.WithRunLogger(ctx, logging.LoggerFromContext(ctx, r.log))
	if sc.Name != "" {
		log = log.With(logging.String("scenario", sc.Name))
	}
	ctx = logging.ContextWithLogger(ctx, log)

	ctx, span := r.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("run_id", logging.RunIDFromContext(ctx)),
		attribute.String("scenario", sc.Name),
		attribute.Float64("dt", sc.Dt),
		attribute.Float64("t_max", sc.TMax),
	))
	return ctx, log, span
}

func (r *Runner) fail(ctx context.Context, log logging.Logger, span trace.Span, outcome string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("outcome", outcome))
	if r.metrics != nil {
		r.metrics.ObserveRun(outcome, 0, 0)
	}
	log.Warn(ctx, "scenario rejected", logging.Err(err))
}

func (r *Runner) finish(ctx context.Context, log logging.Logger, span trace.Span, res *Result, runErr error) {
	res.Outcome = outcomeOf(res.Summary, runErr)

	span.SetAttributes(
		attribute.String("outcome", res.Outcome),
		attribute.Int("steps", res.Steps),
		attribute.Int("samples", res.Summary.Samples),
		attribute.Float64("flight_time", res.Summary.FlightTime),
	)
	if r.metrics != nil {
		r.metrics.ObserveRun(res.Outcome, res.Steps, res.Elapsed)
	}

	fields := []logging.Field{
		logging.String("outcome", res.Outcome),
		logging.Int("samples", res.Summary.Samples),
		logging.Float64("flight_time", res.Summary.FlightTime),
		logging.Float64("apex_altitude", res.Summary.ApexAltitude),
		logging.Float64("range", res.Summary.Range),
		logging.Duration("elapsed", res.Elapsed),
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Warn(ctx, "run ended early", append(fields, logging.Err(runErr))...)
		return
	}
	log.Info(ctx, "run finished", fields...)
}

func outcomeOf(s core.Summary, err error) string {
	switch {
	case err == nil && s.ReachedGround:
		return OutcomeGroundImpact
	case err == nil:
		return OutcomeTimeLimit
	case errors.Is(err, core.ErrNumericalInstability):
		return OutcomeUnstable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}
