/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Background ticker driving Compute over the just-closed
             window for every window type, on AGGREGATION_INTERVAL_SECONDS.
Root Cause:  Aggregation Engine scheduling (4.D) — each tick
             computes the window before the current one for every
             kind, so a tick never aggregates a window that's still
             open.
Context:     Graceful shutdown drains the current tick via
             sync.WaitGroup and context cancellation, matching the
             teacher codebase's async-worker shutdown idiom.
Suitability: L2 — a ticker loop, nothing novel.
──────────────────────────────────────────────────────────────
*/

package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/moasakthi/metering/window"
)

// Scheduler drives Engine.Compute for every window kind on a fixed
// interval. Each tick computes the window before the current one, so it
// never aggregates a window that is still open.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	kinds    []window.Kind
	logger   zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler constructs a Scheduler over engine, ticking every interval.
func NewScheduler(engine *Engine, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		kinds:    []window.Kind{window.Hourly, window.Daily, window.Monthly, window.Yearly},
		logger:   logger,
	}
}

// Start runs the ticker loop in its own goroutine. Stop must be called to
// shut it down cleanly.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the ticker loop and waits (up to timeout) for the current
// tick to finish.
func (s *Scheduler) Stop(timeout time.Duration) {
	if s.cancel == nil {
		return
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn().Msg("aggregate scheduler: shutdown timed out waiting for in-flight tick")
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	for _, k := range s.kinds {
		currentStart, _ := window.Window(now, k)
		// Lag by one full window of kind k so the tick only ever closes a
		// window that has fully elapsed, not the one still accumulating.
		prevStart, prevEnd := window.Window(currentStart.Add(-time.Nanosecond), k)

		if _, err := s.engine.Compute(ctx, k, prevStart, prevEnd); err != nil {
			s.logger.Error().Err(err).Str("window_type", string(k)).Msg("aggregate scheduler: compute failed")
		}
	}
}
