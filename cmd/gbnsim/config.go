package main

import (
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/gbn-sim/netsim"
)

const (
	defaultRuns       = 1
	defaultParallel   = 4
	defaultPaceStep   = 10 * time.Millisecond
	defaultDebugLevel = "info"
)

type config struct {
	Scenario   string        `long:"scenario" description:"Path to a YAML scenario file. Flags given on the command line override its values"`
	Runs       int           `long:"runs" description:"The number of runs, each with its own seed counting up from the configured one"`
	Parallel   int           `long:"parallel" description:"The maximum number of runs simulated at the same time"`
	Pace       time.Duration `long:"pace" description:"Run a single simulation that processes one pacestep of simulated time per pace of real time"`
	PaceStep   time.Duration `long:"pacestep" description:"The simulated time processed per tick of a paced run"`
	Metrics    bool          `long:"metrics" description:"Print the link and timer counters of every run when done"`
	DebugLevel string        `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	Sim *netsim.Config `group:"Simulation" namespace:"sim"`
}

// defaultConfig returns the configuration used when neither a scenario nor
// flags say otherwise.
func defaultConfig() *config {
	return &config{
		Runs:       defaultRuns,
		Parallel:   defaultParallel,
		PaceStep:   defaultPaceStep,
		DebugLevel: defaultDebugLevel,
		Sim:        netsim.DefaultConfig(),
	}
}

// loadConfig builds the configuration in three steps: the defaults, then the
// scenario file if one was given, then the command line flags.
func loadConfig(args []string) (*config, error) {
	// Pre-parse the command line to find the scenario file.
	preCfg := defaultConfig()
	if _, err := flags.NewParser(preCfg, flags.Default).ParseArgs(
		args,
	); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if preCfg.Scenario != "" {
		sim, err := netsim.LoadScenario(preCfg.Scenario)
		if err != nil {
			return nil, err
		}
		cfg.Sim = sim
	}

	// Parse the command line again so flags take precedence over the
	// scenario. Errors were already printed during the pre-parse.
	if _, err := flags.NewParser(cfg, flags.None).ParseArgs(
		args,
	); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks the options that don't belong to a single run.
func validateConfig(cfg *config) error {
	if cfg.Runs < 1 {
		return fmt.Errorf("runs must be at least 1, got %d", cfg.Runs)
	}

	if cfg.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d",
			cfg.Parallel)
	}

	if cfg.Pace < 0 {
		return fmt.Errorf("pace must not be negative, got %v", cfg.Pace)
	}

	if cfg.Pace > 0 {
		if cfg.Runs != 1 {
			return fmt.Errorf("a paced simulation is a single run, " +
				"got runs > 1")
		}

		if cfg.PaceStep <= 0 {
			return fmt.Errorf("pacestep must be positive, got %v",
				cfg.PaceStep)
		}
	}

	if err := cfg.Sim.Validate(); err != nil {
		return fmt.Errorf("invalid simulation: %w", err)
	}

	return nil
}
