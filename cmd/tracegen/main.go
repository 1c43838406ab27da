// Synthetic distributed trace generator
// Reads declarative scenario definitions and emits traces, metrics, and logs via the OTel SDK
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/andrewh/tracegen/pkg/semconv"
	"github.com/andrewh/tracegen/pkg/synth"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tracegen",
		Short:        "Synthetic distributed trace generator",
		SilenceUsage: true,
	}

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(versionCmd())

	return root
}

// runOptions bundles every run flag, layered through viper so each can also
// be set via a TRACEGEN_* environment variable.
type runOptions struct {
	workers               int
	intervalMin           time.Duration
	intervalMax           time.Duration
	maxTemplateIterations int
	contextStoreSize      int
	seed                  uint64
	endpoint              string
	protocol              string
	stdout                bool
	signals               string
	store                 string
	storePath             string
	storeSize             int
	semconvDir            string
}

func bindRunFlags(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("tracegen")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenarios_dir>",
		Short: "Generate synthetic traces from a directory of scenario definitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := bindRunFlags(cmd)
			if err != nil {
				return err
			}
			opts := runOptions{
				workers:               v.GetInt("workers"),
				intervalMin:           v.GetDuration("interval-min"),
				intervalMax:           v.GetDuration("interval-max"),
				maxTemplateIterations: v.GetInt("max-template-iterations"),
				contextStoreSize:      v.GetInt("context-store-size"),
				seed:                  uint64(v.GetInt64("seed")),
				endpoint:              v.GetString("endpoint"),
				protocol:              v.GetString("protocol"),
				stdout:                v.GetBool("stdout"),
				signals:               v.GetString("signals"),
				store:                 v.GetString("store"),
				storePath:             v.GetString("store-path"),
				storeSize:             v.GetInt("store-size"),
				semconvDir:            v.GetString("semconv-dir"),
			}
			return runGenerate(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().Int("workers", 1, "number of concurrent trace-generating workers")
	cmd.Flags().Duration("interval-min", 100*time.Millisecond, "minimum delay between traces started by a single worker")
	cmd.Flags().Duration("interval-max", time.Second, "maximum delay between traces started by a single worker")
	cmd.Flags().Int("max-template-iterations", 10, "maximum fixed-point iterations when resolving nested templates")
	cmd.Flags().Int("context-store-size", 100, "maximum number of exported context entries retained for cross-trace linking")
	cmd.Flags().Int64("seed", 0, "base RNG seed (0 picks a random seed and logs it)")
	cmd.Flags().String("endpoint", "", "OTLP endpoint (e.g. localhost:4318)")
	cmd.Flags().String("protocol", "http/protobuf", "OTLP protocol (http/protobuf or grpc)")
	cmd.Flags().Bool("stdout", false, "emit signals to stdout instead of OTLP")
	cmd.Flags().String("signals", "traces", "comma-separated signals to emit: traces,metrics,logs")
	cmd.Flags().String("store", "", "optional persistence backend for emitted span records: memory or sqlite")
	cmd.Flags().String("store-path", "tracegen.db", "sqlite database path, used when --store=sqlite")
	cmd.Flags().Int("store-size", 1000, "maximum records retained by the memory store")
	cmd.Flags().String("semconv-dir", "", "optional directory of additional semantic convention YAML files, merged on top of the embedded set")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenarios_dir>",
		Short: "Parse and validate a directory of scenario definitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, scenarios, err := synth.LoadScenarios(args[0])
			if err != nil {
				return err
			}
			warnings, errs := synth.ValidateScenarios(base, scenarios)
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			if len(errs) > 0 {
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"File", "Field", "Reason"})
				for _, e := range errs {
					t.AppendRow(table.Row{e.Path, e.Field, e.Reason})
				}
				t.Render()
				return errs
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scenarios valid: %d scenario(s), %d warning(s)\n", len(scenarios), len(warnings))
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <scenarios_dir>",
		Short: "Report structural size of every scenario before a long run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, scenarioConfigs, err := synth.LoadScenarios(args[0])
			if err != nil {
				return err
			}
			scenarios, err := synth.BuildScenarios(scenarioConfigs)
			if err != nil {
				return err
			}

			results := synth.Check(scenarios)
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Scenario", "Max Depth", "Max Fan-Out", "Max Spans"})
			for _, r := range results {
				t.AppendRow(table.Row{r.Scenario, r.MaxDepth, r.MaxFanOut, r.MaxSpans})
			}
			t.Render()
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tracegen %s (commit: %s, built: %s)\n", version, commit, buildTime)
		},
	}
}

var validSignals = map[string]bool{
	"traces":  true,
	"metrics": true,
	"logs":    true,
}

func parseSignals(s string) (map[string]bool, error) {
	set := make(map[string]bool)
	for _, sig := range strings.Split(s, ",") {
		sig = strings.TrimSpace(sig)
		if sig == "" {
			continue
		}
		if !validSignals[sig] {
			return nil, fmt.Errorf("unknown signal %q, valid signals: traces, metrics, logs", sig)
		}
		set[sig] = true
	}
	return set, nil
}

const shutdownTimeout = 5 * time.Second

func runGenerate(ctx context.Context, scenariosDir string, opts runOptions) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// The OTel SDK has no synchronous error path from span.End(); exporter
	// failures surface here instead, asynchronously, never aborting the run.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("otel export error", zap.Error(err))
	}))

	base, scenarioConfigs, err := synth.LoadScenarios(scenariosDir)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}
	if _, errs := synth.ValidateScenarios(base, scenarioConfigs); len(errs) > 0 {
		return errs
	}
	scenarios, err := synth.BuildScenarios(scenarioConfigs)
	if err != nil {
		return fmt.Errorf("building scenarios: %w", err)
	}

	enabledSignals, err := parseSignals(opts.signals)
	if err != nil {
		return err
	}

	services := collectServices(scenarios)

	baseRes, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("tracegen.version", version),
	))
	if err != nil {
		return fmt.Errorf("creating resource: %w", err)
	}

	serviceResources := make(map[string]*resource.Resource, len(services))
	for _, name := range services {
		svcRes, resErr := resource.Merge(baseRes, resource.NewSchemaless(attribute.String("service.name", name)))
		if resErr != nil {
			return fmt.Errorf("creating resource for service %s: %w", name, resErr)
		}
		serviceResources[name] = svcRes
	}

	traceProviders, shutdownTraces, err := createTraceProviders(ctx, opts, enabledSignals["traces"], serviceResources)
	if err != nil {
		return fmt.Errorf("creating trace providers: %w", err)
	}
	defer shutdownTraces()

	var observers []synth.SpanObserver
	stats := &synth.Stats{}

	if enabledSignals["metrics"] {
		mp, shutdownMetrics, mErr := createMetricProvider(ctx, opts, baseRes)
		if mErr != nil {
			return fmt.Errorf("creating metric provider: %w", mErr)
		}
		defer shutdownMetrics()
		obs, mErr := synth.NewMetricObserver(mp)
		if mErr != nil {
			return fmt.Errorf("creating metric observer: %w", mErr)
		}
		observers = append(observers, obs)
	}

	if enabledSignals["logs"] {
		lp, shutdownLogs, lErr := createLogProvider(ctx, opts, baseRes)
		if lErr != nil {
			return fmt.Errorf("creating log provider: %w", lErr)
		}
		defer shutdownLogs()
		observers = append(observers, synth.NewLogObserver(lp, time.Second))
	}

	store, closeStore, err := createStore(opts)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if store != nil {
		defer closeStore()
		observers = append(observers, &synth.TraceRecorder{Store: store, Logger: logger, Stats: stats})
	}

	reg, err := semconv.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("loading semantic conventions: %w", err)
	}
	if opts.semconvDir != "" {
		userReg, userErr := semconv.Load(os.DirFS(opts.semconvDir))
		if userErr != nil {
			return fmt.Errorf("loading semantic conventions from %s: %w", opts.semconvDir, userErr)
		}
		reg = reg.Merge(userReg)
	}

	seed := opts.seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // synthetic data, not security-sensitive
		logger.Info("generated random seed", zap.Uint64("seed", seed))
	}

	engine := &synth.Engine{
		Selector: synth.NewSelector(scenarios),
		Store:    synth.NewContextStore(opts.contextStoreSize),
		TracerFor: func(name string) trace.Tracer {
			tp := traceProviders[name]
			if tp == nil {
				return nil
			}
			return tp.Tracer(name)
		},
		Resolver:       &synth.Resolver{MaxIterations: opts.maxTemplateIterations},
		DomainResolver: domainResolver(reg),
		Observers:      observers,
		Stats:          stats,
	}

	pool := &synth.WorkerPool{
		Engine:      engine,
		Workers:     opts.workers,
		IntervalMin: opts.intervalMin,
		IntervalMax: opts.intervalMax,
		Seed:        seed,
		Logger:      logger,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool.Run(ctx)

	return json.NewEncoder(os.Stderr).Encode(statsSnapshot(engine.Stats))
}

// statsSnapshot copies an Engine's atomic counters into a plain map so it
// can be JSON-encoded without exposing sync/atomic internals.
func statsSnapshot(s *synth.Stats) map[string]int64 {
	return map[string]int64{
		"traces_completed":     s.TracesCompleted.Load(),
		"traces_aborted":       s.TracesAborted.Load(),
		"spans_emitted":        s.SpansEmitted.Load(),
		"simulated_errors":     s.SimulatedErrors.Load(),
		"unresolved_templates": s.UnresolvedTemplates.Load(),
		"store_errors":         s.StoreErrors.Load(),
	}
}

func collectServices(scenarios []*synth.Scenario) []string {
	seen := map[string]bool{}
	var walk func(n *synth.SpanNode)
	walk = func(n *synth.SpanNode) {
		if n == nil {
			return
		}
		seen[n.Service] = true
		for _, c := range n.Calls {
			walk(c)
		}
	}
	for _, s := range scenarios {
		walk(s.RootSpan)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func createStore(opts runOptions) (synth.Store, func(), error) {
	switch opts.store {
	case "":
		return nil, func() {}, nil
	case "memory":
		return synth.NewInMemoryStore(opts.storeSize), func() {}, nil
	case "sqlite":
		s, err := synth.NewSQLiteStore(opts.storePath)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported store %q, supported: memory, sqlite", opts.store)
	}
}

func domainResolver(reg *semconv.Registry) synth.DomainResolver {
	return func(domain string) map[string]synth.AttributeGenerator {
		return semconv.GeneratorsForDomain(reg, domain)
	}
}

func createTraceProviders(ctx context.Context, opts runOptions, enabled bool, resources map[string]*resource.Resource) (map[string]*sdktrace.TracerProvider, func(), error) {
	providers := make(map[string]*sdktrace.TracerProvider, len(resources))

	if !enabled {
		noopTP := sdktrace.NewTracerProvider()
		for name := range resources {
			providers[name] = noopTP
		}
		return providers, func() { _ = noopTP.Shutdown(context.Background()) }, nil
	}

	exporter, err := createTraceExporter(ctx, opts)
	if err != nil {
		return nil, func() {}, err
	}

	var sp sdktrace.SpanProcessor
	if opts.stdout {
		sp = sdktrace.NewSimpleSpanProcessor(exporter)
	} else {
		sp = sdktrace.NewBatchSpanProcessor(exporter)
	}

	for name, res := range resources {
		providers[name] = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sp),
			sdktrace.WithResource(res),
		)
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownAll(shutdownCtx, slices.Collect(maps.Values(providers)), "tracer provider")
	}
	return providers, shutdown, nil
}

func createTraceExporter(ctx context.Context, opts runOptions) (sdktrace.SpanExporter, error) {
	if opts.stdout {
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	}
	switch opts.protocol {
	case "grpc":
		var grpcOpts []otlptracegrpc.Option
		if opts.endpoint != "" {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpoint(opts.endpoint), otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	case "http/protobuf", "":
		var httpOpts []otlptracehttp.Option
		if opts.endpoint != "" {
			httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(opts.endpoint), otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, httpOpts...)
	default:
		return nil, fmt.Errorf("unsupported protocol %q, supported: http/protobuf, grpc", opts.protocol)
	}
}

func createMetricProvider(ctx context.Context, opts runOptions, res *resource.Resource) (*sdkmetric.MeterProvider, func(), error) {
	exporter, err := createMetricExporter(ctx, opts)
	if err != nil {
		return nil, func() {}, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "error shutting down meter provider: %v\n", err)
		}
	}
	return mp, shutdown, nil
}

func createMetricExporter(ctx context.Context, opts runOptions) (sdkmetric.Exporter, error) {
	if opts.stdout {
		return stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
	}
	switch opts.protocol {
	case "grpc":
		var grpcOpts []otlpmetricgrpc.Option
		if opts.endpoint != "" {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithEndpoint(opts.endpoint), otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, grpcOpts...)
	case "http/protobuf", "":
		var httpOpts []otlpmetrichttp.Option
		if opts.endpoint != "" {
			httpOpts = append(httpOpts, otlpmetrichttp.WithEndpoint(opts.endpoint), otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, httpOpts...)
	default:
		return nil, fmt.Errorf("unsupported protocol %q for metrics", opts.protocol)
	}
}

func createLogProvider(ctx context.Context, opts runOptions, res *resource.Resource) (*sdklog.LoggerProvider, func(), error) {
	exporter, err := createLogExporter(ctx, opts)
	if err != nil {
		return nil, func() {}, err
	}

	var processor sdklog.Processor
	if opts.stdout {
		processor = sdklog.NewSimpleProcessor(exporter)
	} else {
		processor = sdklog.NewBatchProcessor(exporter)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(res),
	)

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := lp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "error shutting down logger provider: %v\n", err)
		}
	}
	return lp, shutdown, nil
}

func createLogExporter(ctx context.Context, opts runOptions) (sdklog.Exporter, error) {
	if opts.stdout {
		return stdoutlog.New(stdoutlog.WithWriter(os.Stdout))
	}
	switch opts.protocol {
	case "grpc":
		var grpcOpts []otlploggrpc.Option
		if opts.endpoint != "" {
			grpcOpts = append(grpcOpts, otlploggrpc.WithEndpoint(opts.endpoint), otlploggrpc.WithInsecure())
		}
		return otlploggrpc.New(ctx, grpcOpts...)
	case "http/protobuf", "":
		var httpOpts []otlploghttp.Option
		if opts.endpoint != "" {
			httpOpts = append(httpOpts, otlploghttp.WithEndpoint(opts.endpoint), otlploghttp.WithInsecure())
		}
		return otlploghttp.New(ctx, httpOpts...)
	default:
		return nil, fmt.Errorf("unsupported protocol %q for logs", opts.protocol)
	}
}

type shutdownable interface {
	Shutdown(context.Context) error
}

func shutdownAll[S shutdownable](ctx context.Context, items []S, label string) {
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Go(func() {
			if err := item.Shutdown(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "error shutting down %s: %v\n", label, err)
			}
		})
	}
	wg.Wait()
}
