package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLoadConfig checks that flags override the scenario and the scenario
// overrides the defaults.
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	err := os.WriteFile(
		path, []byte("window_size: 4\nloss: 0.3\nmessages: 10\n"), 0600,
	)
	require.NoError(t, err)

	cfg, err := loadConfig([]string{
		"--scenario", path, "--sim.loss=0.1", "--runs=3",
	})
	require.NoError(t, err)

	require.Equal(t, 4, cfg.Sim.WindowSize)
	require.Equal(t, 10, cfg.Sim.Messages)
	require.Equal(t, 0.1, cfg.Sim.Loss)
	require.Equal(t, 3, cfg.Runs)
	require.Equal(t, defaultParallel, cfg.Parallel)
	require.Equal(t, defaultDebugLevel, cfg.DebugLevel)

	cfg, err = loadConfig(nil)
	require.NoError(t, err)
	require.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
	}{
		{
			name: "no runs",
			args: []string{"--runs=0"},
		},
		{
			name: "no parallelism",
			args: []string{"--parallel=0"},
		},
		{
			name: "paced with several runs",
			args: []string{"--pace=1s", "--runs=2"},
		},
		{
			name: "invalid simulation",
			args: []string{"--sim.loss=2"},
		},
		{
			name: "missing scenario",
			args: []string{"--scenario=/does/not/exist.yaml"},
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := loadConfig(tc.args)
			require.Error(t, err)
		})
	}
}

// TestRun runs several seeds in parallel and checks the metrics of every run
// are written with its seed.
func TestRun(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Runs = 3
	cfg.Parallel = 2
	cfg.Metrics = true
	cfg.Sim.Messages = 20
	cfg.Sim.Loss = 0.1
	cfg.Sim.Corrupt = 0.1

	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &buf))

	for _, seed := range []string{"1", "2", "3"} {
		require.Contains(t, buf.String(),
			`gbn_sim_payloads_delivered_total{entity="B",seed="`+
				seed+`"} 20`)
	}
}

func TestRunPacedCLI(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Pace = time.Millisecond
	cfg.PaceStep = time.Second
	cfg.Sim.Messages = 5

	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &buf))
	require.Empty(t, buf.String())
}

// TestRunVerificationFailure runs over a link that loses everything, which
// must be reported as an error.
func TestRunVerificationFailure(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Sim.Messages = 5
	cfg.Sim.Loss = 1
	cfg.Sim.MaxTime = 100 * time.Millisecond

	err := run(context.Background(), cfg, &bytes.Buffer{})
	require.ErrorContains(t, err, "1 of 1 runs failed verification")
}
