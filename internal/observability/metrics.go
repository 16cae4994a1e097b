package observability

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/trajectory-simulator/core"
)

// SimCollector bundles Prometheus metrics for simulation runs, the HTTP API
// and live flight telemetry.
type SimCollector struct {
	gatherer prometheus.Gatherer

	RunsTotal     *prometheus.CounterVec
	RunDurations  prometheus.Histogram
	StepsTotal    prometheus.Counter
	SweepsTotal   prometheus.Counter
	SweepInFlight prometheus.Gauge

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Altitude        prometheus.Gauge
	Speed           prometheus.Gauge
	FlightPathAngle prometheus.Gauge
	Range           prometheus.Gauge
	RadarDetected   prometheus.Gauge
	SimTime         prometheus.Gauge
}

// NewSimCollector registers the simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SimCollector{gatherer: gatherer}
	var err error

	if c.RunsTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trajectory_runs_total",
		Help: "Completed simulation runs, labeled by termination outcome.",
	}, []string{"outcome"}), "trajectory_runs_total"); err != nil {
		return nil, err
	}
	if c.RunDurations, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trajectory_run_duration_seconds",
		Help:    "Wall-clock time spent integrating one run.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "trajectory_run_duration_seconds"); err != nil {
		return nil, err
	}
	if c.StepsTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trajectory_steps_total",
		Help: "Integration steps taken across all runs.",
	}), "trajectory_steps_total"); err != nil {
		return nil, err
	}
	if c.SweepsTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trajectory_sweeps_total",
		Help: "Parameter sweeps started.",
	}), "trajectory_sweeps_total"); err != nil {
		return nil, err
	}
	if c.SweepInFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trajectory_sweep_runs_in_flight",
		Help: "Sweep runs currently executing.",
	}), "trajectory_sweep_runs_in_flight"); err != nil {
		return nil, err
	}

	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trajectory_http_requests_total",
		Help: "Handled HTTP API requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "trajectory_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trajectory_http_request_duration_seconds",
		Help:    "HTTP API latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"}), "trajectory_http_request_duration_seconds"); err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.Altitude, "trajectory_altitude_meters", "Altitude of the sample being replayed."},
		{&c.Speed, "trajectory_speed_mps", "Speed of the sample being replayed."},
		{&c.FlightPathAngle, "trajectory_flight_path_angle_degrees", "Flight-path angle of the sample being replayed."},
		{&c.Range, "trajectory_range_meters", "Horizontal distance from the launch origin."},
		{&c.RadarDetected, "trajectory_radar_detected", "1 when the replayed sample is inside radar range."},
		{&c.SimTime, "trajectory_sim_time_seconds", "Simulated time of the sample being replayed."},
	}
	for _, g := range gauges {
		if *g.dst, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}), g.name); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ObserveRun records the outcome of one run. It satisfies sim.RunRecorder.
func (c *SimCollector) ObserveRun(outcome string, steps int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues(outcome).Inc()
	c.RunDurations.Observe(elapsed.Seconds())
	c.StepsTotal.Add(float64(steps))
}

// SweepStarted counts a new sweep. With SweepRunStarted and SweepRunDone it
// satisfies sim.SweepRecorder.
func (c *SimCollector) SweepStarted() {
	if c == nil {
		return
	}
	c.SweepsTotal.Inc()
}

// SweepRunStarted marks one sweep run as executing.
func (c *SimCollector) SweepRunStarted() {
	if c == nil {
		return
	}
	c.SweepInFlight.Inc()
}

// SweepRunDone marks one sweep run as finished.
func (c *SimCollector) SweepRunDone() {
	if c == nil {
		return
	}
	c.SweepInFlight.Dec()
}

// ObserveTelemetry publishes a single record on the telemetry gauges.
func (c *SimCollector) ObserveTelemetry(r core.Record) {
	if c == nil {
		return
	}
	c.Altitude.Set(r.Position.Z)
	c.Speed.Set(r.Speed)
	c.FlightPathAngle.Set(r.FlightPathAngleDeg)
	c.Range.Set(r.Position.HorizontalNorm())
	c.SimTime.Set(r.T)
	if r.RadarDetected != nil {
		v := 0.0
		if *r.RadarDetected {
			v = 1
		}
		c.RadarDetected.Set(v)
	}
}

// Middleware records request counts and durations, labeling by the mux
// route template so path parameters do not explode cardinality.
func (c *SimCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		if c == nil {
			return
		}
		route := RouteTemplate(r)
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.code)).Inc()
		c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RouteTemplate returns the path template of the matched mux route, or
// "unknown" when the request did not match one.
func RouteTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
			return tpl
		}
	}
	return "unknown"
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Flush lets streaming handlers push partial responses through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		var zero T
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return zero, err
	}
	return collector, nil
}
