package sim

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/signalsfoundry/trajectory-simulator/core"
	"github.com/signalsfoundry/trajectory-simulator/internal/logging"
	"github.com/signalsfoundry/trajectory-simulator/model"
)

type fakeRecorder struct {
	mu        sync.Mutex
	outcomes  []string
	steps     int
	sweeps    int
	inFlight  int
	maxFlight int
}

func (f *fakeRecorder) ObserveRun(outcome string, steps int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	f.steps += steps
}

func (f *fakeRecorder) SweepStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
}

func (f *fakeRecorder) SweepRunStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
}

func (f *fakeRecorder) SweepRunDone() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
}

func (f *fakeRecorder) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.outcomes...)
}

func unstableScenario() model.Scenario {
	sc := model.DefaultScenario()
	sc.DragCoeffX, sc.DragCoeffY, sc.DragCoeffZ = 1e6, 1e6, 1e6
	sc.Dt = 1
	sc.InitialHeight = 1e300
	return sc
}

func TestRunReferenceScenario(t *testing.T) {
	rec := &fakeRecorder{}
	r := NewRunner(logging.Noop(), WithMetricsRecorder(rec))

	res, err := r.Run(context.Background(), model.DefaultScenario())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID == "" {
		t.Fatalf("missing run ID")
	}
	if res.Outcome != OutcomeGroundImpact {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeGroundImpact)
	}
	if len(res.Records) != res.Summary.Samples {
		t.Fatalf("records = %d, summary samples = %d", len(res.Records), res.Summary.Samples)
	}
	if res.Steps != len(res.Records)-1 {
		t.Fatalf("Steps = %d, want %d", res.Steps, len(res.Records)-1)
	}
	if last := res.Records[len(res.Records)-1]; last.Position.Z > 0 {
		t.Fatalf("last sample altitude = %v, want <= 0", last.Position.Z)
	}
	if res.Records[0].RadarDetected == nil || res.Records[0].DistanceToTarget == nil {
		t.Fatalf("reference scenario should derive radar and target metrics")
	}

	if got := rec.snapshot(); len(got) != 1 || got[0] != OutcomeGroundImpact {
		t.Fatalf("recorded outcomes = %v", got)
	}
	if rec.steps != res.Steps {
		t.Fatalf("recorded steps = %d, want %d", rec.steps, res.Steps)
	}
}

func TestRunKeepsCallerRunID(t *testing.T) {
	r := NewRunner(nil)
	ctx := logging.ContextWithRunID(context.Background(), "run-42")

	res, err := r.Run(ctx, model.DefaultScenario())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "run-42" {
		t.Fatalf("RunID = %q, want run-42", res.RunID)
	}
}

func TestRunTimeLimitOutcome(t *testing.T) {
	sc := model.DefaultScenario()
	sc.TMax = 1
	res, err := NewRunner(nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeTimeLimit {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeTimeLimit)
	}
	if res.Summary.Samples != 101 {
		t.Fatalf("samples = %d, want 101", res.Summary.Samples)
	}
}

func TestRunRejectsInvalidScenario(t *testing.T) {
	rec := &fakeRecorder{}
	r := NewRunner(nil, WithMetricsRecorder(rec))

	sc := model.DefaultScenario()
	sc.Mass = 0
	res, err := r.Run(context.Background(), sc)
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Fatalf("Run error = %v, want ErrInvalidConfiguration", err)
	}
	if res != nil {
		t.Fatalf("expected nil result for rejected scenario, got %+v", res)
	}
	if got := rec.snapshot(); len(got) != 1 || got[0] != OutcomeInvalid {
		t.Fatalf("recorded outcomes = %v", got)
	}
}

func TestRunInstabilityReturnsPartialResult(t *testing.T) {
	res, err := NewRunner(nil).Run(context.Background(), unstableScenario())
	if !errors.Is(err, core.ErrNumericalInstability) {
		t.Fatalf("Run error = %v, want ErrNumericalInstability", err)
	}
	if res == nil || len(res.Records) < 2 {
		t.Fatalf("expected partial records, got %+v", res)
	}
	if res.Outcome != OutcomeUnstable {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeUnstable)
	}
	for i, rec := range res.Records {
		if !rec.IsFinite() {
			t.Fatalf("record %d not finite: %+v", i, rec)
		}
	}
}

func TestRunCancelledOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewRunner(nil).Run(ctx, model.DefaultScenario())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeCancelled)
	}
}

func TestRunRecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	r := NewRunner(nil, WithTracerProvider(tp))

	res, err := r.Run(context.Background(), model.DefaultScenario())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "trajectory.run" {
		t.Fatalf("span name = %q", span.Name())
	}
	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["run_id"] != res.RunID {
		t.Fatalf("span run_id = %q, want %q", attrs["run_id"], res.RunID)
	}
	if attrs["outcome"] != OutcomeGroundImpact {
		t.Fatalf("span outcome = %q", attrs["outcome"])
	}
}

func TestStreamMatchesRun(t *testing.T) {
	r := NewRunner(nil)
	sc := model.DefaultScenario()

	full, err := r.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got []core.Record
	res, err := r.Stream(context.Background(), sc, func(rec core.Record) error {
		got = append(got, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if res.Records != nil {
		t.Fatalf("streamed result should not buffer records")
	}
	if len(got) != len(full.Records) {
		t.Fatalf("streamed %d records, want %d", len(got), len(full.Records))
	}
	for i := range got {
		if got[i].State != full.Records[i].State {
			t.Fatalf("record %d differs: %+v vs %+v", i, got[i].State, full.Records[i].State)
		}
	}
	if !reflect.DeepEqual(res.Summary, full.Summary) {
		t.Fatalf("summary differs:\n%+v\n%+v", res.Summary, full.Summary)
	}
	if res.Outcome != OutcomeGroundImpact {
		t.Fatalf("Outcome = %q", res.Outcome)
	}
}

func TestStreamStopsOnConsumerError(t *testing.T) {
	errFull := errors.New("sink full")
	delivered := 0
	res, err := NewRunner(nil).Stream(context.Background(), model.DefaultScenario(), func(core.Record) error {
		delivered++
		if delivered == 10 {
			return errFull
		}
		return nil
	})
	if !errors.Is(err, errFull) {
		t.Fatalf("Stream error = %v, want %v", err, errFull)
	}
	if delivered != 10 {
		t.Fatalf("delivered = %d, want 10", delivered)
	}
	if res.Summary.Samples != 10 {
		t.Fatalf("summary samples = %d, want 10", res.Summary.Samples)
	}
	if res.Outcome != OutcomeError {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeError)
	}
}

func TestStreamHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	delivered := 0
	_, err := NewRunner(nil).Stream(ctx, model.DefaultScenario(), func(core.Record) error {
		delivered++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Stream error = %v, want context.Canceled", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want only the launch record", delivered)
	}
}

func TestStreamRejectsInvalidScenario(t *testing.T) {
	sc := model.DefaultScenario()
	sc.Dt = 0
	called := false
	res, err := NewRunner(nil).Stream(context.Background(), sc, func(core.Record) error {
		called = true
		return nil
	})
	if !errors.Is(err, core.ErrInvalidConfiguration) || res != nil || called {
		t.Fatalf("Stream = (%v, %v), called=%v; want config error before any record", res, err, called)
	}
}

func TestStreamInstabilityReportsError(t *testing.T) {
	delivered := 0
	res, err := NewRunner(nil).Stream(context.Background(), unstableScenario(), func(rec core.Record) error {
		if !rec.IsFinite() {
			t.Fatalf("non-finite record delivered: %+v", rec)
		}
		delivered++
		return nil
	})
	if !errors.Is(err, core.ErrNumericalInstability) {
		t.Fatalf("Stream error = %v, want ErrNumericalInstability", err)
	}
	if delivered < 2 || res.Summary.Samples != delivered {
		t.Fatalf("delivered = %d, summary samples = %d", delivered, res.Summary.Samples)
	}
}
