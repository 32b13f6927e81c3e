package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-triage/pkg/config"
	"github.com/vango-go/vai-triage/pkg/metrics"
)

type globalFlags struct {
	configPath  string
	logLevel    string
	logFile     string
	metricsAddr string
	trace       bool
}

func newRootCmd(d deps) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "triage",
		Short:         "Spoken emergency triage assistant",
		Long:          "triage listens for a caller, extracts the situation, and answers with safety advice, nearby help, or recent reports while staying interruptible.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (yaml, toml or json)")
	pf.StringVar(&flags.logLevel, "log-level", "", "override log level (debug|info|warn|error)")
	pf.StringVar(&flags.logFile, "log-file", "", "also write logs to this rotating file")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.BoolVar(&flags.trace, "trace", false, "print OpenTelemetry spans to stderr")

	root.AddCommand(
		newListenCmd(d, flags),
		newChatCmd(d, flags),
		newSimulateCmd(d, flags),
	)
	return root
}

// runtime is the per-invocation ambient state shared by every subcommand.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	out     io.Writer
	errOut  io.Writer

	closers []func(context.Context) error
}

func (rt *runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

func (rt *runtime) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// syncWriter serializes writes from the turn and follow-up printers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (f *globalFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if f.logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(f.logLevel)); err != nil {
			return errors.New("--log-level must be one of debug|info|warn|error")
		}
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if f.trace {
		cfg.Trace = true
	}
	return nil
}

// withRuntime loads configuration and sets up logging, tracing and metrics
// around fn.
func withRuntime(d deps, flags *globalFlags, fn func(ctx context.Context, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		cfg, err := d.loadConfig(flags.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := flags.apply(cmd, &cfg); err != nil {
			return err
		}

		rt := &runtime{
			cfg:    cfg,
			out:    &syncWriter{w: cmd.OutOrStdout()},
			errOut: cmd.ErrOrStderr(),
		}
		defer func() {
			if cerr := rt.close(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		logger, closeLog := newLogger(cfg.LogLevel, cfg.LogFile, rt.errOut)
		rt.logger = logger
		rt.onClose(func(context.Context) error { return closeLog() })

		if cfg.Trace {
			shutdown, err := setupTracing(rt.errOut)
			if err != nil {
				return err
			}
			rt.onClose(shutdown)
		}

		rt.metrics = metrics.New("triage")
		if cfg.MetricsAddr != "" {
			srv := serveMetrics(cfg.MetricsAddr, rt.metrics, logger)
			rt.onClose(srv.Shutdown)
		}

		ctx, stop := d.withSignals(cmd.Context())
		defer stop()
		return fn(ctx, rt)
	}
}

func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
