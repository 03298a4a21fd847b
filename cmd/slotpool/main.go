package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/slotpool/internal/stress"
	"github.com/ajitpratap0/slotpool/pkg/config"
	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/observability"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "slotpool",
		Short: "slotpool - fixed-capacity lock-free object pools",
		Long: `slotpool exercises fixed-capacity, lock-free pools of reusable values.
It runs concurrency stress tests against a pool and manages configuration files.`,
		SilenceUsage: true,
	}
	root.SetOut(out)

	root.AddCommand(newVersionCmd())
	root.AddCommand(newStressCmd())
	root.AddCommand(newConfigCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "slotpool v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

type stressFlags struct {
	configFile   string
	capacity     int
	workers      int
	iterations   int
	extra        int
	handoffEvery int
	jsonOutput   bool
	metricsAddr  string
	trace        string
	timeout      time.Duration
}

func newStressCmd() *cobra.Command {
	var flags stressFlags

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a concurrency stress test against a pool",
		Long: `Run many goroutines checking slots out of one pool and verify that no slot
is ever held twice and that every release is accounted for.

Settings come from the config file, then SLOTPOOL_* environment variables,
then flags.

Example:
  slotpool stress --capacity 64 --workers 32 --iterations 100000 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return err
			}
			applyStressFlags(cmd, cfg, &flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runStress(cmd.Context(), cmd.OutOrStdout(), cfg, &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVar(&flags.capacity, "capacity", 0, "Number of slots in the pool")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Number of goroutines checking out slots")
	cmd.Flags().IntVar(&flags.iterations, "iterations", 0, "Checkout attempts per worker")
	cmd.Flags().IntVar(&flags.extra, "extra", 0, "Extra bytes per slot")
	cmd.Flags().IntVar(&flags.handoffEvery, "handoff-every", 0, "Release every Nth checkout from another goroutine (0 disables)")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&flags.trace, "trace", "", "Trace exporter (none, stdout)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Minute, "Abort the run after this long")

	return cmd
}

// applyStressFlags overrides cfg with flags that were set explicitly.
func applyStressFlags(cmd *cobra.Command, cfg *config.Config, flags *stressFlags) {
	changed := cmd.Flags().Changed
	if changed("capacity") {
		cfg.Pool.Capacity = flags.capacity
	}
	if changed("workers") {
		cfg.Stress.Workers = flags.workers
	}
	if changed("iterations") {
		cfg.Stress.Iterations = flags.iterations
	}
	if changed("extra") {
		cfg.Pool.ExtraBytes = flags.extra
	}
	if changed("handoff-every") {
		cfg.Stress.HandoffEvery = flags.handoffEvery
	}
	if changed("metrics-addr") {
		cfg.Metrics.Address = flags.metricsAddr
	}
	if changed("trace") {
		cfg.Tracing.Exporter = flags.trace
	}
}

func runStress(ctx context.Context, out io.Writer, cfg *config.Config, flags *stressFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("component", "slotpool-cli"), zap.String("pool", cfg.Pool.Name))

	tp, err := observability.InitTracing(ctx, cfg.ObservabilityTracing(version), os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	opts := stress.Options{
		Capacity:     cfg.Pool.Capacity,
		Workers:      cfg.Stress.Workers,
		Iterations:   cfg.Stress.Iterations,
		ExtraBytes:   cfg.Pool.ExtraBytes,
		HandoffEvery: cfg.Stress.HandoffEvery,
		PoolOptions:  cfg.PoolOptions(),
	}

	if cfg.Tracing.Exporter == observability.ExporterStdout {
		reader := sdkmetric.NewManualReader()
		mp, err := observability.InitMetrics(ctx, cfg.ObservabilityTracing(version), reader)
		if err != nil {
			return err
		}
		defer func() {
			if err := observability.WriteMetrics(context.Background(), reader, os.Stderr); err != nil {
				log.Warn("failed to export pool metrics", zap.Error(err))
			}
			_ = mp.Shutdown(context.Background())
		}()
		opts.Meter = observability.Meter()
	}

	if cfg.Metrics.Address != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts.PoolOptions = append(opts.PoolOptions, pool.WithMetrics(metrics.NewCollector(reg)))

		stopServer, err := serveMetrics(cfg.Metrics.Address, cfg.Metrics.Path, reg, log)
		if err != nil {
			return err
		}
		defer stopServer()
	}

	log.Info("starting stress run",
		zap.Int("capacity", opts.Capacity),
		zap.Int("workers", opts.Workers),
		zap.Int("iterations", opts.Iterations))

	report, err := stress.Run(ctx, opts, log)
	if report != nil {
		if flags.jsonOutput {
			if werr := report.WriteJSON(out); werr != nil {
				return werr
			}
		} else {
			printReport(out, report)
		}
	}
	return err
}

// serveMetrics starts a Prometheus endpoint and returns a function that
// shuts it down.
func serveMetrics(addr, path string, reg *prometheus.Registry, log *zap.Logger) (func(), error) {
	if path == "" {
		path = "/metrics"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("address", ln.Addr().String()), zap.String("path", path))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printReport(out io.Writer, r *stress.Report) {
	fmt.Fprintf(out, "Pool:          %s (capacity %d)\n", r.Stats.Name, r.Capacity)
	fmt.Fprintf(out, "Workers:       %d x %d iterations\n", r.Workers, r.Iterations)
	fmt.Fprintf(out, "Checkouts:     %d (observed %d)\n", r.Expected, r.Observed)
	fmt.Fprintf(out, "Exhausted:     %d\n", r.Exhausted)
	fmt.Fprintf(out, "Handoffs:      %d\n", r.Handoffs)
	fmt.Fprintf(out, "CAS retries:   %d\n", r.Stats.CASRetries)
	fmt.Fprintf(out, "Duration:      %v\n", r.Duration)
	fmt.Fprintf(out, "Throughput:    %.0f ops/sec\n", r.OpsPerSecond)
	fmt.Fprintf(out, "RSS:           %d bytes\n", r.Resources.RSSBytes)
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a configuration file with default values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Print the effective configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
