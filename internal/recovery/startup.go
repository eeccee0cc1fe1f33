package recovery

import (
	"context"
	"time"

	"timelapse/internal/logging"
	"timelapse/internal/overflow"
)

// Startup waits, for at most the configured network wait, until the collector
// answers a probe, then drains the store once regardless of the pending hint.
// The delivery state stays degraded until a drain completes or a worker probe
// succeeds.
func (s *Sweeper) Startup(ctx context.Context) overflow.DrainResult {
	reachable := s.waitForNetwork(ctx)
	if ctx.Err() != nil {
		return overflow.DrainResult{Status: overflow.DrainAborted, Err: ctx.Err()}
	}
	if !reachable {
		logging.WarnWithContext(s.logger, "collector not reachable at startup; draining anyway", "startup_network_timeout",
			logging.Duration("waited", s.opts.NetworkWait),
			logging.String(logging.FieldErrorHint, "check server.url and network connectivity"),
			logging.String(logging.FieldImpact, "captures are buffered on disk until the collector is reachable"),
		)
	}
	result := s.Sweep(ctx)
	s.logger.Info("startup drain finished",
		logging.String("status", result.Status.String()),
		logging.Int("delivered", result.Delivered),
		logging.String(logging.FieldEventType, "startup_drain"),
	)
	return result
}

func (s *Sweeper) waitForNetwork(ctx context.Context) bool {
	if s.opts.Prober == nil {
		return true
	}
	deadline := time.Now().Add(s.opts.NetworkWait)
	for {
		err := s.opts.Prober.Probe(ctx)
		if err == nil {
			s.logger.Info("collector reachable",
				logging.String(logging.FieldEventType, "startup_network_ready"),
			)
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		s.logger.Debug("collector not reachable yet", logging.Error(err))
		wait := min(s.opts.CheckInterval, remaining)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}
