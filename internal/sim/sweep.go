package sim

import (
	"context"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/trajectory-simulator/internal/logging"
	"github.com/signalsfoundry/trajectory-simulator/model"
)

// SweepResult pairs one sweep entry with its outcome. Result is nil when the
// scenario was rejected or never started.
type SweepResult struct {
	Index  int
	Result *Result
	Err    error
}

// Sweep runs independent scenarios in parallel, at most workers at a time
// (GOMAXPROCS when workers <= 0). Results are returned in input order and
// per-run failures are reported on the matching SweepResult. The returned
// error is non-nil only when ctx ends before the sweep completes.
func (r *Runner) Sweep(ctx context.Context, scenarios []model.Scenario, workers int) ([]SweepResult, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, span := r.tracer.Start(ctx, "trajectory.sweep")
	defer span.End()
	span.SetAttributes(
		attribute.Int("scenarios", len(scenarios)),
		attribute.Int("workers", workers),
	)
	if r.sweeps != nil {
		r.sweeps.SweepStarted()
	}
	log := logging.LoggerFromContext(ctx, r.log)
	log.Info(ctx, "sweep started",
		logging.Int("scenarios", len(scenarios)),
		logging.Int("workers", workers),
	)

	results := make([]SweepResult, len(scenarios))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, sc := range scenarios {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if r.sweeps != nil {
				r.sweeps.SweepRunStarted()
				defer r.sweeps.SweepRunDone()
			}
			// Each entry gets its own run ID and logger.
			res, err := r.Run(logging.ContextWithRunID(ctx, ""), sc)
			results[i].Result = res
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	log.Info(ctx, "sweep finished",
		logging.Int("scenarios", len(scenarios)),
		logging.Int("failed", failed),
	)
	return results, ctx.Err()
}
