package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/trajectory-simulator/core"
)

func TestObserveRunRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ObserveRun("ground_impact", 3593, 20*time.Millisecond)
	collector.ObserveRun("unstable", 7, time.Millisecond)

	if got := testutil.ToFloat64(collector.RunsTotal.WithLabelValues("ground_impact")); got != 1 {
		t.Fatalf("trajectory_runs_total{ground_impact} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.StepsTotal); got != 3600 {
		t.Fatalf("trajectory_steps_total = %v, want 3600", got)
	}
	if count := histogramSampleCount(t, reg, "trajectory_run_duration_seconds", nil); count != 2 {
		t.Fatalf("trajectory_run_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestNewSimCollectorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("first NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}
	second.ObserveRun("time_limit", 1, 0)
	if got := testutil.ToFloat64(first.RunsTotal.WithLabelValues("time_limit")); got != 1 {
		t.Fatalf("collectors should share registered metrics, got %v", got)
	}
}

func TestObserveTelemetrySetsGauges(t *testing.T) {
	collector, err := NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	detected := true
	collector.ObserveTelemetry(core.Record{
		State: core.State{
			T:        2.5,
			Position: core.Vec3{X: 300, Y: 400, Z: 1200},
		},
		Speed:              180,
		FlightPathAngleDeg: -12,
		RadarDetected:      &detected,
	})

	checks := map[string]struct {
		g    prometheus.Gauge
		want float64
	}{
		"altitude": {collector.Altitude, 1200},
		"speed":    {collector.Speed, 180},
		"fpa":      {collector.FlightPathAngle, -12},
		"range":    {collector.Range, 500},
		"radar":    {collector.RadarDetected, 1},
		"time":     {collector.SimTime, 2.5},
	}
	for name, c := range checks {
		if got := testutil.ToFloat64(c.g); got != c.want {
			t.Errorf("%s gauge = %v, want %v", name, got, c.want)
		}
	}
}

func TestMiddlewareLabelsByRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	router := mux.NewRouter()
	router.Use(collector.Middleware)
	router.HandleFunc("/v1/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/things/42", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/v1/things/{id}", "GET", "418")); got != 1 {
		t.Fatalf("trajectory_http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "trajectory_http_request_duration_seconds", map[string]string{
		"route":  "/v1/things/{id}",
		"method": "GET",
	}); count != 1 {
		t.Fatalf("trajectory_http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMetricsHandlerExposesTelemetry(t *testing.T) {
	collector, err := NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.ObserveRun("ground_impact", 10, time.Millisecond)

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}

	body := rr.Body.String()
	for _, metric := range []string{
		"trajectory_runs_total",
		"trajectory_steps_total",
		"trajectory_altitude_meters",
		"trajectory_radar_detected",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
