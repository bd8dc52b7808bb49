// Command gocorodemo is a small CLI exercising the gocoro runtime end to
// end, grounded on internal/cli.BuildCLI's root/run/status command layout -
// generalized from "start a job queue, expose metrics, wait for a signal"
// to "start a scope, run it, expose metrics, wait for a signal".
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nyrix-labs/gocoro/internal/config"
	"github.com/nyrix-labs/gocoro/pkg/ambient"
	"github.com/nyrix-labs/gocoro/pkg/deferred"
	"github.com/nyrix-labs/gocoro/pkg/dispatcher"
	"github.com/nyrix-labs/gocoro/pkg/flow"
	"github.com/nyrix-labs/gocoro/pkg/gocorometrics"
	"github.com/nyrix-labs/gocoro/pkg/job"
	"github.com/nyrix-labs/gocoro/pkg/scope"
)

var configFile string

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "gocorodemo",
		Short:   "Demonstrates scopes, flows, and dispatchers from the gocoro runtime",
		Version: "0.1.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (defaults built in if omitted)")

	root.AddCommand(buildRunCommand())
	root.AddCommand(buildBenchCommand())

	return root
}

func loadConfig() config.Config {
	if configFile == "" {
		return config.Defaults()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Warn("failed to load config file, using defaults", "path", configFile, "error", err)
		return config.Defaults()
	}
	return cfg
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Launch a scope that produces a shared flow of ticks and prints them until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(loadConfig())
		},
	}
}

func runDemo(cfg config.Config) error {
	reg := prometheus.NewRegistry()
	collector := gocorometrics.NewCollector(reg)

	if cfg.Metrics.Enabled {
		go serveMetrics(reg, cfg.Metrics.Port)
	}

	disp := dispatcher.NewPooled(cfg.Dispatcher.PooledWorkers, cfg.Dispatcher.PooledQueue)
	defer disp.Close()

	s := scope.New(disp, ambient.NewContext(), job.WithMetrics(collector))

	statsDone := make(chan struct{})
	go pollDispatcherStats(disp, collector, "default", statsDone)
	defer close(statsDone)

	shared := flow.NewSharedFlow[int](4)
	s.Launch(func(ctx context.Context) error {
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
				shared.Emit(i)
				collector.RecordFlowEmission("ticker")
			}
		}
	})

	printer := s.Launch(func(ctx context.Context) error {
		return shared.AsFlow().Collect(ctx, func(v int) error {
			slog.Info("tick", "value", v)
			return nil
		})
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	s.Cancel("interrupt received")
	_ = printer.Join(context.Background())
	shared.Close()
	return nil
}

func buildBenchCommand() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Launch n concurrent Deferred computations and report throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(loadConfig(), n)
		},
	}
	cmd.Flags().IntVar(&n, "n", 10_000, "number of concurrent Deferred computations to launch")
	return cmd
}

func runBench(cfg config.Config, n int) error {
	disp := dispatcher.NewIO(cfg.Dispatcher.IOQueue)
	defer disp.Close()

	s := scope.New(disp, ambient.NewContext())

	start := time.Now()
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		d := scope.Async(s, deferred.Default, func(ctx context.Context) (int, error) {
			return i * i, nil
		})
		go func() {
			_, err := d.Await(context.Background())
			results <- err
		}()
	}

	var failed int
	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			failed++
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("launched=%d failed=%d elapsed=%s throughput=%.0f/s\n",
		n, failed, elapsed, float64(n)/elapsed.Seconds())
	return nil
}

// pollDispatcherStats samples disp's queue depth and busy-worker count every
// second and reports them to collector under name, until done is closed.
func pollDispatcherStats(disp dispatcher.StatsReporter, collector *gocorometrics.Collector, name string, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			queued, busy := disp.Stats()
			collector.SetDispatcherStats(name, queued, busy)
		case <-done:
			return
		}
	}
}

func serveMetrics(reg *prometheus.Registry, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", gocorometrics.Handler(reg))
	addr := fmt.Sprintf(":%d", port)
	slog.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}
