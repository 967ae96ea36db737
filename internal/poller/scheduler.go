package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FindoraNetwork/findora-exporter/internal/task"
	"github.com/FindoraNetwork/findora-exporter/target"
)

// minBaseInterval floors the pusher's tick to prevent CPU thrashing.
const minBaseInterval = 10 * time.Millisecond

// State is the scheduler lifecycle stage.
type State int

const (
	// Created means bindings are ready and no goroutine has started.
	Created State = iota
	// Running means the pusher and workers are active.
	Running
	// Stopping means Stop was called and goroutines are winding down.
	Stopping
	// Stopped is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of executing one binding once.
type Outcome struct {
	ID        target.ID
	Kind      target.Kind
	Address   string
	Value     float64
	Err       error
	Duration  time.Duration
	CheckedAt time.Time
}

// Observer receives every outcome. It is called from worker goroutines and
// must be safe for concurrent use.
type Observer func(Outcome)

// Config tunes a [Scheduler].
type Config struct {
	// TickInterval is the default interval for bindings without their own
	// frequency.
	TickInterval time.Duration

	// Workers is the number of worker goroutines. Values below 1 mean 1.
	Workers int

	// PushOnStart enqueues every binding as soon as the scheduler starts
	// instead of waiting for the first due tick.
	PushOnStart bool

	// Observer, if set, receives every outcome.
	Observer Observer

	// Metrics, if set, records scheduler self-metrics.
	Metrics *Metrics
}

// Scheduler drives periodic execution of task bindings.
//
// One pusher goroutine ticks at the GCD of all effective intervals and
// enqueues the bindings that are due, in binding order. A fixed pool of
// workers drains the queue. A binding that is still queued or running is
// skipped rather than enqueued twice, so one binding is never executed by
// two workers at once.
//
// All lifecycle methods (Start, Stop, State) are safe for concurrent use.
type Scheduler struct {
	bindings     []*task.Binding
	interval     time.Duration // global default interval
	workers      int
	pushOnStart  bool
	observer     Observer
	metrics      *Metrics
	logger       *slog.Logger
	queue        chan *task.Binding
	baseInterval time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	mu    sync.Mutex
	state State
}

// NewScheduler creates a [Scheduler] in the [Created] state.
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop].
func NewScheduler(bindings []*task.Binding, cfg Config, logger *slog.Logger) *Scheduler {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	// the pending guard keeps at most one entry per binding in the queue
	capacity := len(bindings)
	if capacity < 1 {
		capacity = 1
	}

	s := &Scheduler{
		bindings:    bindings,
		interval:    cfg.TickInterval,
		workers:     workers,
		pushOnStart: cfg.PushOnStart,
		observer:    cfg.Observer,
		metrics:     cfg.Metrics,
		logger:      logger,
		queue:       make(chan *task.Binding, capacity),
	}
	s.baseInterval = s.calculateBaseInterval()
	return s
}

// State returns the current lifecycle stage.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BaseInterval returns the pusher's tick interval.
func (s *Scheduler) BaseInterval() time.Duration {
	return s.baseInterval
}

// effectiveInterval is the binding's own frequency or the global default.
func (s *Scheduler) effectiveInterval(b *task.Binding) time.Duration {
	if f := b.Frequency(); f > 0 {
		return f
	}
	return s.interval
}

// calculateBaseInterval determines the tick interval for the pusher.
// Uses the GCD of all effective intervals so every binding lands on a tick.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	result := s.interval
	if len(s.bindings) > 0 {
		result = s.effectiveInterval(s.bindings[0])
		for _, b := range s.bindings[1:] {
			result = gcdDuration(result, s.effectiveInterval(b))
		}
	}

	if result < minBaseInterval {
		result = minBaseInterval
	}
	return result
}

// gcdDuration calculates the greatest common divisor of two durations.
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start spawns the pusher and the workers and returns immediately.
//
// If ctx is nil, context.Background() is used as the parent context.
// Cancelling ctx stops the goroutines like [Scheduler.Stop] does, but the
// state only becomes [Stopped] once Stop is called.
// Start is idempotent; it is a no-op unless the scheduler is [Created].
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != Created {
		s.mu.Unlock()
		return
	}
	s.state = Running

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1 + s.workers)
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"bindings", len(s.bindings),
		"workers", s.workers,
		"base_interval", s.baseInterval.String(),
	)

	go s.push(ctx)
	for i := 0; i < s.workers; i++ {
		go s.work(ctx)
	}
}

// Stop signals the pusher and workers and waits for them to exit.
//
// Workers finish the binding they are executing; in-flight collector calls
// are not interrupted and end through their own request timeout.
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	switch s.state {
	case Created:
		s.state = Stopped
		s.mu.Unlock()
		return
	case Running:
		s.state = Stopping
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	if s.state == Stopping {
		s.state = Stopped
		s.logger.Info("scheduler stopped")
	}
	s.mu.Unlock()
}

// push is the pusher loop.
//
// A binding with interval n*base is due on every n-th tick. Tick 0 is the
// optional push at start.
func (s *Scheduler) push(ctx context.Context) {
	defer s.wg.Done()

	if s.pushOnStart {
		s.enqueueDue(ctx, 0)
	}

	ticker := time.NewTicker(s.baseInterval)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			s.enqueueDue(ctx, tick)
		}
	}
}

// enqueueDue enqueues every binding due on the given tick, in binding order.
func (s *Scheduler) enqueueDue(ctx context.Context, tick uint64) {
	for _, b := range s.bindings {
		every := uint64(s.effectiveInterval(b) / s.baseInterval)
		if every == 0 {
			every = 1
		}
		if tick%every != 0 {
			continue
		}

		if !b.TryAcquire() {
			s.logger.Debug("task still pending, skipping", "task", b.Kind(), "address", b.Address())
			s.metrics.skipped(b.Kind())
			continue
		}

		select {
		case s.queue <- b:
		case <-ctx.Done():
			b.Release()
			return
		}
	}
	s.metrics.queueDepth(len(s.queue))
}

// work is one worker loop. It runs until the scheduler is stopped.
func (s *Scheduler) work(ctx context.Context) {
	defer s.wg.Done()

	// executions outlive the stop signal; the client timeout bounds them
	execCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-s.queue:
			if !ok {
				s.logger.Warn("work queue closed")
				return
			}
			// both cases may be ready at once; never start new work after stop
			if ctx.Err() != nil {
				b.Release()
				return
			}
			s.metrics.queueDepth(len(s.queue))
			s.run(execCtx, b)
		}
	}
}

// run executes one binding and reports its outcome.
func (s *Scheduler) run(ctx context.Context, b *task.Binding) {
	defer b.Release()

	start := time.Now()
	value, err := s.safeExecute(ctx, b)
	outcome := Outcome{
		ID:        b.ID(),
		Kind:      b.Kind(),
		Address:   b.Address(),
		Value:     value,
		Err:       err,
		Duration:  time.Since(start),
		CheckedAt: time.Now(),
	}

	s.metrics.observe(outcome)

	if err != nil {
		s.logger.Warn("task failed",
			"task", b.Kind(),
			"address", b.Address(),
			"options", b.Options(),
			"error", err,
		)
	} else {
		s.logger.Debug("task succeeded",
			"task", b.Kind(),
			"address", b.Address(),
			"value", value,
			"duration", outcome.Duration.String(),
		)
	}

	if s.observer != nil {
		s.observer(outcome)
	}
}

// safeExecute calls the binding with panic recovery.
// If the collector panics, it logs the full stack trace with a correlation ID
// and returns an error containing the ID.
func (s *Scheduler) safeExecute(ctx context.Context, b *task.Binding) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			s.logger.Error("collector panic",
				"correlation_id", correlationID,
				"task", b.Kind(),
				"address", b.Address(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			value = 0
			err = fmt.Errorf("%s: collector panic (correlation_id: %s)", b, correlationID)
		}
	}()
	return b.Execute(ctx)
}
