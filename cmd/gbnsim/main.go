package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btclog/v2"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/gbn-sim/netsim"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		os.Exit(0)
	}
	if err != nil {
		exit(err)
	}

	// Hook interceptor for os signals.
	shutdownInterceptor, err := signal.Intercept()
	if err != nil {
		exit(err)
	}

	logMgr := build.NewSubLoggerManager(btclog.NewDefaultHandler(os.Stdout))
	setupLoggers(logMgr, shutdownInterceptor)

	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			logMgr.SupportedSubsystems())
		os.Exit(0)
	}

	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, logMgr)
	if err != nil {
		exit(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-shutdownInterceptor.ShutdownChannel():
			log.Infof("Received shutdown request, stopping runs")
			cancel()

		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		exit(err)
	}
}

// run simulates what the configuration asks for and verifies every report.
// Metrics are written to w if requested.
func run(ctx context.Context, cfg *config, w io.Writer) error {
	reg := prometheus.NewRegistry()

	var (
		reports []*netsim.Report
		err     error
	)
	if cfg.Pace > 0 {
		reports, err = runPaced(ctx, cfg, reg)
	} else {
		reports, err = runAll(ctx, cfg, reg)
	}
	if err != nil {
		return err
	}

	var failed int
	for _, report := range reports {
		if err := report.Verify(); err != nil {
			log.Errorf("Run %v failed verification: %v", report, err)
			failed++

			continue
		}

		log.Infof("Run %v", report)
	}

	if cfg.Metrics {
		if err := writeMetrics(w, reg); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed verification", failed,
			len(reports))
	}

	return nil
}

// newSimulator creates a simulator whose counters are registered with reg,
// labelled with the seed of the run.
func newSimulator(simCfg *netsim.Config,
	reg prometheus.Registerer) (*netsim.Simulator, error) {

	metrics, err := netsim.NewMetrics(prometheus.WrapRegistererWith(
		prometheus.Labels{"seed": strconv.FormatInt(simCfg.Seed, 10)},
		reg,
	))
	if err != nil {
		return nil, fmt.Errorf("unable to register metrics: %w", err)
	}

	return netsim.New(simCfg, netsim.WithMetrics(metrics))
}

// runAll simulates cfg.Runs runs with consecutive seeds, at most cfg.Parallel
// of them at the same time.
func runAll(ctx context.Context, cfg *config,
	reg prometheus.Registerer) ([]*netsim.Report, error) {

	reports := make([]*netsim.Report, cfg.Runs)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)

	for i := 0; i < cfg.Runs; i++ {
		simCfg := *cfg.Sim
		simCfg.Seed += int64(i)

		g.Go(func() error {
			sim, err := newSimulator(&simCfg, reg)
			if err != nil {
				return err
			}

			log.Debugf("Starting run with seed %d", simCfg.Seed)

			report, err := sim.Run(ctx)
			if err != nil {
				return fmt.Errorf("run with seed %d: %w",
					simCfg.Seed, err)
			}
			reports[i] = report

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return reports, nil
}

// runPaced simulates a single run in real time.
func runPaced(ctx context.Context, cfg *config,
	reg prometheus.Registerer) ([]*netsim.Report, error) {

	sim, err := newSimulator(cfg.Sim, reg)
	if err != nil {
		return nil, err
	}

	log.Infof("Simulating %v every %v", cfg.PaceStep, cfg.Pace)

	report, err := sim.RunPaced(ctx, ticker.New(cfg.Pace), cfg.PaceStep)
	if err != nil {
		return nil, err
	}

	return []*netsim.Report{report}, nil
}

// writeMetrics writes everything registered with reg in the Prometheus text
// format.
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("unable to gather metrics: %w", err)
	}

	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}

	return nil
}

func exit(err error) {
	// We use the fmt package for this error statement here instead of the
	// logger so that we can use this exit function before the logger has
	// been initialised.
	fmt.Fprintf(os.Stderr, "Error running gbnsim: %v\n",
		strings.TrimSpace(err.Error()))
	os.Exit(1)
}
