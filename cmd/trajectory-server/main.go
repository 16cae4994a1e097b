// Command trajectory-server serves the trajectory simulator over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/trajectory-simulator/internal/api"
	"github.com/signalsfoundry/trajectory-simulator/internal/logging"
	"github.com/signalsfoundry/trajectory-simulator/internal/observability"
	"github.com/signalsfoundry/trajectory-simulator/internal/sim"
)

// Config holds the server settings taken from flags.
type Config struct {
	ListenAddress   string
	MetricsAddress  string
	LogLevel        string
	LogFormat       string
	MaxSweepSize    int
	ShutdownTimeout time.Duration
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ListenAddress, "http-addr", ":8080", "TCP address the HTTP API listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty to serve it on the API listener)")
	flag.StringVar(&cfg.LogLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", os.Getenv("LOG_FORMAT"), "log format: text or json")
	flag.IntVar(&cfg.MaxSweepSize, "max-sweep", 256, "maximum scenarios accepted by one sweep request")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("trajectory-server"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the API on lis until ctx ends, then drains in-flight requests.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		return err
	}

	runner := sim.NewRunner(log,
		sim.WithMetricsRecorder(collector),
		sim.WithSweepRecorder(collector),
	)
	apiServer := api.NewServer(runner, log,
		api.WithMetrics(collector),
		api.WithMaxSweepSize(cfg.MaxSweepSize),
	)

	var handler http.Handler = apiServer
	var metricsSrv *http.Server
	if cfg.MetricsAddress == "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		mux.Handle("/", apiServer)
		handler = mux
	} else {
		metricsSrv = serveMetrics(cfg.MetricsAddress, collector, log)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	log.Info(ctx, "starting trajectory HTTP server", logging.String("addr", lis.Addr().String()))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	log.Info(context.Background(), "shutting down trajectory server")
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
