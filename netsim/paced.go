package netsim

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

// RunPaced processes step worth of simulated time on every tick of t, so a
// run can be followed in real time. It returns once nothing is left to
// simulate, the maximum simulated time is reached or the context is
// cancelled. The ticker is stopped on return.
func (s *Simulator) RunPaced(ctx context.Context, t ticker.Ticker,
	step time.Duration) (*Report, error) {

	t.Resume()
	defer t.Stop()

	deadline := epoch.Add(s.cfg.MaxTime)
	horizon := s.clock.Now()

	for !s.done() {
		select {
		case <-t.Ticks():
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		horizon = horizon.Add(step)
		if horizon.After(deadline) {
			horizon = deadline
		}

		for s.processNext(horizon) {
		}

		// Time passes even when nothing happens.
		s.advanceTo(horizon)

		s.log.Debugf("Simulated %v", s.Elapsed())
	}

	return s.report(), nil
}
