// Package api exposes the simulator over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/trajectory-simulator/core"
	"github.com/signalsfoundry/trajectory-simulator/internal/export"
	"github.com/signalsfoundry/trajectory-simulator/internal/logging"
	"github.com/signalsfoundry/trajectory-simulator/internal/observability"
	"github.com/signalsfoundry/trajectory-simulator/internal/sim"
	"github.com/signalsfoundry/trajectory-simulator/model"
)

const (
	defaultMaxBodyBytes = 4 << 20
	defaultMaxSweepSize = 256

	// streamFlushInterval is how many records are written between flushes
	// of a streamed response.
	streamFlushInterval = 64
)

// Option customises Server construction.
type Option func(*Server)

// WithMetrics records HTTP request metrics on c.
func WithMetrics(c *observability.SimCollector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithMaxSweepSize bounds the number of scenarios accepted by one sweep.
func WithMaxSweepSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSweep = n
		}
	}
}

// WithMaxBodyBytes bounds request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server serves the trajectory API.
type Server struct {
	runner   *sim.Runner
	log      logging.Logger
	metrics  *observability.SimCollector
	maxSweep int
	maxBody  int64
	router   *mux.Router
}

// NewServer wires the API routes around runner.
func NewServer(runner *sim.Runner, log logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		runner:   runner,
		log:      log,
		maxSweep: defaultMaxSweepSize,
		maxBody:  defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	r := mux.NewRouter()
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(s.requestID, s.tracing)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/scenarios/default", s.handleDefaultScenario).Methods(http.MethodGet)
	v1.HandleFunc("/trajectories", s.handleTrajectory).Methods(http.MethodPost)
	v1.HandleFunc("/trajectories:stream", s.handleStream).Methods(http.MethodPost)
	v1.HandleFunc("/sweeps", s.handleSweep).Methods(http.MethodPost)
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDefaultScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.DefaultScenario())
}

type trajectoryResponse struct {
	RunID   string       `json:"run_id"`
	Outcome string       `json:"outcome"`
	Summary core.Summary `json:"summary"`
	Records []export.Row `json:"records"`
	Error   string       `json:"error,omitempty"`
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	view := r.URL.Query().Get("view")
	switch {
	case format == "json":
	case export.IsImageFormat(format):
		if err := export.CheckView(view); err != nil {
			s.writeError(w, r, err)
			return
		}
	default:
		if err := export.CheckFormat(format); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	sc, err := s.decodeScenario(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, runErr := s.runner.Run(ctx, sc)
	if res == nil {
		s.writeError(w, r, runErr)
		return
	}
	w.Header().Set("X-Run-Outcome", res.Outcome)
	status := statusFor(runErr)

	if format == "json" {
		resp := trajectoryResponse{
			RunID:   res.RunID,
			Outcome: res.Outcome,
			Summary: res.Summary,
			Records: export.Rows(res.Records),
		}
		if runErr != nil {
			resp.Error = runErr.Error()
		}
		writeJSON(w, status, resp)
		return
	}

	if export.IsImageFormat(format) {
		var buf bytes.Buffer
		if err := export.WritePlot(&buf, format, res.Records, res.Params, view); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", export.ImageContentType(format))
		w.WriteHeader(status)
		_, _ = buf.WriteTo(w)
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.WriteHeader(status)
	if err := export.WriteAll(format, w, export.LayoutFor(res.Params), res.Records); err != nil {
		logging.LoggerFromContext(ctx, s.log).Warn(ctx, "write trajectory response failed", logging.Err(err))
	}
}

type streamTrailer struct {
	RunID   string       `json:"run_id"`
	Outcome string       `json:"outcome"`
	Summary core.Summary `json:"summary"`
	Error   string       `json:"error,omitempty"`
}

// handleStream writes one JSON line per record as the run produces it and a
// final line carrying the run summary.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc, err := s.decodeScenario(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, _, err := core.Configure(sc); err != nil {
		s.writeError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", export.ContentType(export.FormatJSONL))
	w.WriteHeader(http.StatusOK)

	out := export.NewJSONLinesWriter(w)
	written := 0
	res, runErr := s.runner.Stream(ctx, sc, func(rec core.Record) error {
		if err := out.Write(rec); err != nil {
			return err
		}
		written++
		if written%streamFlushInterval == 0 {
			if err := out.Flush(); err != nil {
				return err
			}
			_ = rc.Flush()
		}
		return nil
	})
	if res == nil {
		// Configuration was checked above; only a racing failure lands here.
		logging.LoggerFromContext(ctx, s.log).Warn(ctx, "stream failed to start", logging.Err(runErr))
		return
	}

	trailer := streamTrailer{RunID: res.RunID, Outcome: res.Outcome, Summary: res.Summary}
	if runErr != nil {
		trailer.Error = runErr.Error()
	}
	_ = out.Flush()
	if err := json.NewEncoder(w).Encode(trailer); err != nil {
		logging.LoggerFromContext(ctx, s.log).Warn(ctx, "write stream trailer failed", logging.Err(err))
	}
	_ = rc.Flush()
}

type sweepRequest struct {
	Scenarios []json.RawMessage `json:"scenarios"`
	Workers   int               `json:"workers"`
}

type sweepEntry struct {
	Index   int           `json:"index"`
	RunID   string        `json:"run_id,omitempty"`
	Outcome string        `json:"outcome"`
	Summary *core.Summary `json:"summary,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type sweepResponse struct {
	Results []sweepEntry `json:"results"`
	Failed  int          `json:"failed"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req sweepRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode sweep: %w", ErrBadRequest, err))
		return
	}
	if len(req.Scenarios) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: sweep has no scenarios", ErrBadRequest))
		return
	}
	if len(req.Scenarios) > s.maxSweep {
		s.writeError(w, r, fmt.Errorf("%w: sweep has %d scenarios, limit is %d", ErrBadRequest, len(req.Scenarios), s.maxSweep))
		return
	}

	scenarios := make([]model.Scenario, len(req.Scenarios))
	for i, raw := range req.Scenarios {
		sc, err := model.MergeScenario(bytes.NewReader(raw), model.DefaultScenario())
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: scenario %d: %v", ErrBadRequest, i, err))
			return
		}
		scenarios[i] = sc
	}

	results, err := s.runner.Sweep(ctx, scenarios, req.Workers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := sweepResponse{Results: make([]sweepEntry, len(results))}
	for i, sr := range results {
		entry := sweepEntry{Index: sr.Index}
		if sr.Result != nil {
			summary := sr.Result.Summary
			entry.RunID = sr.Result.RunID
			entry.Outcome = sr.Result.Outcome
			entry.Summary = &summary
		} else if errors.Is(sr.Err, core.ErrInvalidConfiguration) {
			entry.Outcome = sim.OutcomeInvalid
		} else {
			entry.Outcome = sim.OutcomeCancelled
		}
		if sr.Err != nil {
			entry.Error = sr.Err.Error()
			resp.Failed++
		}
		resp.Results[i] = entry
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeScenario reads the request body over the default scenario. An empty
// body runs the default scenario unchanged.
func (s *Server) decodeScenario(w http.ResponseWriter, r *http.Request) (model.Scenario, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	sc, err := model.MergeScenario(r.Body, model.DefaultScenario())
	if errors.Is(err, io.EOF) {
		return model.DefaultScenario(), nil
	}
	if err != nil {
		return model.Scenario{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return sc, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := statusFor(err)
	log := logging.LoggerFromContext(ctx, s.log)
	if code >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logging.Err(err))
	} else {
		log.Debug(ctx, "request rejected", logging.Int("status", code), logging.Err(err))
	}
	writeJSON(w, code, errorResponse{
		Error: err.Error(),
		Code:  code,
		RunID: logging.RunIDFromContext(ctx),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
