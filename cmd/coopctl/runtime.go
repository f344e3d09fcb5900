package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/Swind/go-coop-runner/core"
	obs "github.com/Swind/go-coop-runner/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
)

// runtime holds what every command needs: resolved config, logger and the
// metrics pipeline.
type runtime struct {
	cfg      Config
	logger   *core.ZerologLogger
	registry *prom.Registry
	exporter *obs.MetricsExporter
	poller   *obs.SnapshotPoller
	server   *http.Server
	undo     func()
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c.String("config"), os.Getenv)
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		level, err := parseLevel(c.String("log-level"))
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}

	r := &runtime{
		cfg:      cfg,
		logger:   core.NewConsoleLogger(os.Stderr, cfg.LogLevel),
		registry: prom.NewRegistry(),
		undo:     func() {},
	}

	if err = r.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if r.exporter, err = obs.NewMetricsExporter(cfg.MetricsNamespace, r.registry, obs.ExporterOptions{}); err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}
	if r.poller, err = obs.NewSnapshotPoller(r.registry, cfg.PollInterval); err != nil {
		return nil, fmt.Errorf("create snapshot poller: %w", err)
	}

	if cfg.MetricsAddr != "" {
		if err := r.serveMetrics(cfg.MetricsAddr); err != nil {
			return nil, err
		}
	}

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		r.logger.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		r.logger.Warn("failed to set GOMAXPROCS", core.F("error", err))
	} else {
		r.undo = undo
	}

	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)
	if err != nil {
		r.logger.Debug("GOMEMLIMIT left unchanged", core.F("error", err))
	} else {
		r.logger.Debug("GOMEMLIMIT set", core.F("bytes", limit))
	}
	return r, nil
}

// schedulerConfig returns a scheduler config wired to the runtime's logger
// and metrics exporter.
func (r *runtime) schedulerConfig(name string) *core.SchedulerConfig {
	cfg := core.DefaultSchedulerConfig()
	cfg.Name = name
	cfg.Logger = r.logger
	cfg.PanicHandler = &core.DefaultPanicHandler{Logger: r.logger}
	cfg.RejectedPushHandler = &core.DefaultRejectedPushHandler{Logger: r.logger}
	cfg.Metrics = r.exporter
	cfg.RetryCeiling = r.cfg.RetryCeiling
	if r.cfg.HistoryCapacity > 0 {
		cfg.HistoryCapacity = r.cfg.HistoryCapacity
	}
	return cfg
}

func (r *runtime) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	r.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server stopped", core.F("error", err))
		}
	}()
	r.logger.Info("serving metrics", core.F("addr", ln.Addr().String()))
	return nil
}

func (r *runtime) Close() {
	r.poller.Stop()
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.server.Shutdown(ctx)
	}
	r.undo()
}
