// Command trajectory simulates one flight and writes the sampled trajectory
// as CSV or JSON Lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/trajectory-simulator/core"
	"github.com/signalsfoundry/trajectory-simulator/internal/export"
	"github.com/signalsfoundry/trajectory-simulator/internal/logging"
	"github.com/signalsfoundry/trajectory-simulator/internal/observability"
	"github.com/signalsfoundry/trajectory-simulator/internal/playback"
	"github.com/signalsfoundry/trajectory-simulator/internal/sim"
	"github.com/signalsfoundry/trajectory-simulator/model"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

// override binds a command-line flag to one scenario field.
type override struct {
	name  string
	usage string
	set   func(*model.Scenario, float64)
}

var overrides = []override{
	{"mass", "body mass in kg", func(s *model.Scenario, v float64) { s.Mass = v }},
	{"area", "reference area in m²", func(s *model.Scenario, v float64) { s.ReferenceArea = v }},
	{"density", "air density in kg/m³", func(s *model.Scenario, v float64) { s.AirDensity = v }},
	{"gravity", "gravitational acceleration in m/s²", func(s *model.Scenario, v float64) { s.Gravity = v }},
	{"cx", "drag coefficient along x", func(s *model.Scenario, v float64) { s.DragCoeffX = v }},
	{"cy", "drag coefficient along y", func(s *model.Scenario, v float64) { s.DragCoeffY = v }},
	{"cz", "drag coefficient along z", func(s *model.Scenario, v float64) { s.DragCoeffZ = v }},
	{"speed", "initial speed in m/s", func(s *model.Scenario, v float64) { s.InitialSpeed = v }},
	{"height", "initial height in m", func(s *model.Scenario, v float64) { s.InitialHeight = v }},
	{"elevation", "launch elevation angle in degrees", func(s *model.Scenario, v float64) { s.LaunchAngleDeg = v }},
	{"heading", "heading angle in degrees", func(s *model.Scenario, v float64) { s.HeadingAngleDeg = v }},
	{"wind", "crosswind added to the initial y velocity in m/s", func(s *model.Scenario, v float64) { s.WindSpeed = v }},
	{"dt", "integration time step in s", func(s *model.Scenario, v float64) { s.Dt = v }},
	{"tmax", "simulated time limit in s", func(s *model.Scenario, v float64) { s.TMax = v }},
	{"radar-range", "radar detection range in m", func(s *model.Scenario, v float64) { s.RadarRange = model.Float64(v) }},
	{"target-x", "target x coordinate in m", func(s *model.Scenario, v float64) { s.TargetX = model.Float64(v) }},
	{"target-y", "target y coordinate in m", func(s *model.Scenario, v float64) { s.TargetY = model.Float64(v) }},
}

type options struct {
	scenarioPath    string
	name            string
	noRadar         bool
	noTarget        bool
	format          string
	outPath         string
	stream          bool
	metricsAddr     string
	playbackMode    string
	playbackSpeedup float64
	writeScenario   string
	plotPath        string
	plotView        string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trajectory", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.scenarioPath, "scenario", "", "path to a JSON scenario; keys it omits keep the built-in defaults")
	fs.StringVar(&opts.name, "name", "", "scenario name recorded in logs")
	fs.BoolVar(&opts.noRadar, "no-radar", false, "disable the radar detection check")
	fs.BoolVar(&opts.noTarget, "no-target", false, "disable the distance-to-target metric")
	fs.StringVar(&opts.format, "format", export.FormatCSV, "output format: csv or jsonl")
	fs.StringVar(&opts.outPath, "out", "", "output file (default stdout)")
	fs.BoolVar(&opts.stream, "stream", false, "write each sample as it is computed instead of after the run")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address while running")
	fs.StringVar(&opts.playbackMode, "playback", "off", "replay the finished run onto telemetry gauges: off, realtime or accelerated")
	fs.Float64Var(&opts.playbackSpeedup, "playback-speedup", 1, "real-time playback speed multiplier")
	fs.StringVar(&opts.plotPath, "plot", "", "also render the run as an image; the extension selects png, svg or pdf")
	fs.StringVar(&opts.plotView, "plot-view", export.ViewProfile, "plot view: profile, altitude or groundtrack")
	fs.StringVar(&opts.writeScenario, "write-scenario", "", "write the effective scenario JSON to this path (- for stdout) and exit")

	values := make(map[string]*float64, len(overrides))
	for _, o := range overrides {
		values[o.name] = fs.Float64(o.name, 0, o.usage)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	log := logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Output: stderr,
	})

	sc, err := buildScenario(fs, opts, values)
	if err != nil {
		log.Error(ctx, "invalid scenario", logging.Err(err))
		return exitConfig
	}

	if opts.writeScenario != "" {
		if err := writeScenario(opts.writeScenario, stdout, sc); err != nil {
			log.Error(ctx, "write scenario failed", logging.Err(err))
			return exitError
		}
		return exitOK
	}

	params, _, err := core.Configure(sc)
	if err != nil {
		log.Error(ctx, "invalid scenario", logging.Err(err))
		return exitConfig
	}
	if err := export.CheckFormat(opts.format); err != nil {
		log.Error(ctx, "invalid output format", logging.Err(err))
		return exitConfig
	}
	var plotFormat string
	if opts.plotPath != "" {
		if plotFormat, err = export.ImageFormatFromPath(opts.plotPath); err == nil {
			err = export.CheckView(opts.plotView)
		}
		if err != nil {
			log.Error(ctx, "invalid plot options", logging.Err(err))
			return exitConfig
		}
	}
	mode := playback.Accelerated
	if opts.playbackMode != "off" {
		if mode, err = playback.ParseMode(opts.playbackMode); err != nil {
			log.Error(ctx, "invalid playback mode", logging.Err(err))
			return exitConfig
		}
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("trajectory"), log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	var collector *observability.SimCollector
	runnerOpts := []sim.RunnerOption{}
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if collector, err = observability.NewSimCollector(reg); err != nil {
			log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
			return exitError
		}
		runnerOpts = append(runnerOpts, sim.WithMetricsRecorder(collector))
		metricsSrv := serveMetrics(ctx, opts.metricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}
	runner := sim.NewRunner(log, runnerOpts...)

	out, closeOut, err := openOutput(opts.outPath, stdout)
	if err != nil {
		log.Error(ctx, "open output failed", logging.Err(err))
		return exitError
	}
	defer closeOut()

	ew, err := export.NewWriter(opts.format, out, export.LayoutFor(params))
	if err != nil {
		log.Error(ctx, "invalid output format", logging.Err(err))
		return exitConfig
	}

	var res *sim.Result
	var runErr error
	var plotted []core.Record
	if opts.stream {
		res, runErr = runner.Stream(ctx, sc, func(rec core.Record) error {
			collector.ObserveTelemetry(rec)
			if plotFormat != "" {
				plotted = append(plotted, rec)
			}
			return ew.Write(rec)
		})
	} else {
		res, runErr = runner.Run(ctx, sc)
		if res != nil {
			for _, rec := range res.Records {
				if err := ew.Write(rec); err != nil {
					log.Error(ctx, "write output failed", logging.Err(err))
					return exitError
				}
			}
			plotted = res.Records
		}
	}
	if err := ew.Flush(); err != nil {
		log.Error(ctx, "flush output failed", logging.Err(err))
		return exitError
	}
	if res == nil {
		log.Error(ctx, "run failed", logging.Err(runErr))
		if errors.Is(runErr, core.ErrInvalidConfiguration) {
			return exitConfig
		}
		return exitError
	}

	logSummary(ctx, log, res)
	if plotFormat != "" {
		if err := writePlot(opts.plotPath, plotFormat, opts.plotView, plotted, res.Params); err != nil {
			log.Error(ctx, "write plot failed", logging.Err(err))
			return exitError
		}
		log.Info(ctx, "wrote trajectory plot", logging.String("path", opts.plotPath), logging.String("view", opts.plotView))
	}
	if runErr != nil {
		log.Error(ctx, "run ended early", logging.String("run_id", res.RunID), logging.Err(runErr))
		return exitError
	}

	if opts.playbackMode != "off" && len(res.Records) > 0 {
		if err := replay(ctx, mode, opts.playbackSpeedup, res.Records, collector, log); err != nil {
			log.Warn(ctx, "playback interrupted", logging.Err(err))
		}
	}
	return exitOK
}

func buildScenario(fs *flag.FlagSet, opts options, values map[string]*float64) (model.Scenario, error) {
	sc := model.DefaultScenario()
	if opts.scenarioPath != "" {
		loaded, err := model.LoadScenarioFile(opts.scenarioPath, sc)
		if err != nil {
			return model.Scenario{}, err
		}
		sc = loaded
	}

	setters := make(map[string]override, len(overrides))
	for _, o := range overrides {
		setters[o.name] = o
	}
	fs.Visit(func(f *flag.Flag) {
		if o, ok := setters[f.Name]; ok {
			o.set(&sc, *values[f.Name])
		}
	})

	if opts.name != "" {
		sc.Name = opts.name
	}
	if opts.noRadar {
		sc.RadarRange = nil
	}
	if opts.noTarget {
		sc.TargetX, sc.TargetY = nil, nil
	}
	return sc, nil
}

func writeScenario(path string, stdout io.Writer, sc model.Scenario) error {
	if path == "-" {
		return model.SaveScenario(stdout, sc)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := model.SaveScenario(f, sc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePlot(path, format, view string, records []core.Record, p core.Parameters) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WritePlot(f, format, records, p, view); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func replay(ctx context.Context, mode playback.Mode, speedup float64, records []core.Record, collector *observability.SimCollector, log logging.Logger) error {
	player := playback.NewPlayer(mode)
	player.Speedup = speedup

	nextReport := 0.0
	player.AddListener(func(rec core.Record) {
		collector.ObserveTelemetry(rec)
		if rec.T >= nextReport {
			log.Debug(ctx, "playback",
				logging.Float64("t", rec.T),
				logging.Float64("altitude", rec.Position.Z),
				logging.Float64("speed", rec.Speed),
			)
			nextReport = rec.T + 1
		}
	})

	log.Info(ctx, "replaying trajectory",
		logging.String("mode", mode.String()),
		logging.Int("samples", len(records)),
	)
	return player.Replay(ctx, records)
}

func logSummary(ctx context.Context, log logging.Logger, res *sim.Result) {
	s := res.Summary
	fields := []logging.Field{
		logging.String("run_id", res.RunID),
		logging.String("outcome", res.Outcome),
		logging.Int("samples", s.Samples),
		logging.Float64("flight_time", s.FlightTime),
		logging.Float64("apex_altitude", s.ApexAltitude),
		logging.Float64("apex_time", s.ApexTime),
		logging.Float64("max_speed", s.MaxSpeed),
		logging.Float64("final_x", s.FinalPosition.X),
		logging.Float64("final_y", s.FinalPosition.Y),
		logging.Float64("final_z", s.FinalPosition.Z),
		logging.Float64("range", s.Range),
	}
	if s.ClosestApproach != nil {
		fields = append(fields,
			logging.Float64("closest_approach", *s.ClosestApproach),
			logging.Float64("closest_approach_time", *s.ClosestApproachTime),
		)
	}
	if s.FirstRadarDetection != nil {
		fields = append(fields, logging.Float64("first_radar_detection", *s.FirstRadarDetection))
	}
	log.Info(ctx, "trajectory summary", fields...)
}

func serveMetrics(ctx context.Context, addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
