// Package scheduler owns the sync engine lifecycle: a recurring timer that
// runs pull-then-push cycles, and an on-demand trigger for operators.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	enginepkg "github.com/edgetill/possync/internal/sync"
)

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration // cycle cadence (default 30s)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second}
}

// Scheduler drives the engine. Exactly one cycle is in flight at any time:
// the loop is the only caller of runCycle, so two drains can never
// double-claim a row. Stop waits for the in-flight cycle, never killing
// mid-transaction work.
type Scheduler struct {
	engine *enginepkg.Engine
	config Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

// New creates a Scheduler in the Stopped state.
func New(engine *enginepkg.Engine, config Config) *Scheduler {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	return &Scheduler{
		engine:  engine,
		config:  config,
		trigger: make(chan struct{}, 1),
	}
}

// Start transitions Stopped -> Running. Starting a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	slog.Info("scheduler started", "interval", s.config.Interval)
}

// Stop transitions Running -> Stopped. It cancels the timer and blocks
// until any in-flight cycle finishes. Stopping a stopped scheduler is a
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("scheduler stopped")
}

// Running reports the lifecycle state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// TriggerNow requests one immediate cycle outside the regular interval.
// Triggers are coalesced: while a cycle is running or one is already
// requested, further triggers fold into the pending one, so concurrent
// triggers never launch overlapping cycles.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.trigger:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	tracer := otel.Tracer("possync/scheduler")
	ctx, span := tracer.Start(ctx, "sync.cycle")
	defer span.End()

	start := time.Now()
	stats := s.engine.SyncCycle(ctx)

	pulled := 0
	for _, ps := range stats.Pull {
		pulled += ps.Records
	}
	span.SetAttributes(
		attribute.Int("pull.records", pulled),
		attribute.Int("push.attempted", stats.Drain.Attempted),
		attribute.Int("push.dead_lettered", stats.Drain.DeadLettered),
	)

	// Aggregate counts only; item-level errors live on the queue rows.
	slog.Info("sync cycle complete",
		"duration", time.Since(start).Round(time.Millisecond),
		"pull_records", pulled,
		"pull_errors", stats.PullErrors,
		"push_attempted", stats.Drain.Attempted,
		"push_succeeded", stats.Drain.Succeeded,
		"push_failed", stats.Drain.Failed,
		"push_dead_lettered", stats.Drain.DeadLettered)
}

// RunOnce executes a single cycle synchronously. Useful for testing and
// the CLI trigger path.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runCycle(ctx)
}
