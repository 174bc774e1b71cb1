package ambient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval keeps transitions smooth; 60s is the coarse alternative
const DefaultRefreshInterval = 5 * time.Second

// ErrEvaluatorRunning is returned when Run is called on a running or stopped evaluator
var ErrEvaluatorRunning = errors.New("evaluator already started")

// PublishFunc receives every value the evaluator publishes. It is called from
// the evaluator goroutine, one call at a time, and must not call Stop.
type PublishFunc func(Value)

// TickerFunc starts a repeating timer and returns its channel and stop function
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTimeTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithInterval sets the refresh cadence
func WithInterval(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithTicker replaces the time.Ticker based timer
func WithTicker(f TickerFunc) EvaluatorOption {
	return func(e *Evaluator) { e.newTicker = f }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = logger }
}

// Evaluator re-resolves a schedule on a fixed cadence while enabled and
// publishes the result.
//
// It is Disabled while the enabled flag is false or the schedule is empty,
// publishing a single no-value on entry. Becoming Active publishes
// immediately and then on every tick. Schedule changes while Active are
// applied at once without resetting the timer.
type Evaluator struct {
	resolver  Resolver
	publish   PublishFunc
	interval  time.Duration
	now       func() time.Time
	newTicker TickerFunc
	logger    *slog.Logger

	// Desired state, written by setters and read by the loop
	mu         sync.Mutex
	enabled    bool
	schedule   Schedule
	generation uint64
	started    bool

	changed  chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	lastMu sync.RWMutex
	last   Value
	active bool
}

// NewEvaluator creates a disabled evaluator
func NewEvaluator(resolver Resolver, publish PublishFunc, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		resolver:  resolver,
		publish:   publish,
		interval:  DefaultRefreshInterval,
		now:       time.Now,
		newTicker: newTimeTicker,
		logger:    slog.Default(),
		changed:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetEnabled toggles the feature flag
func (e *Evaluator) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
	e.notify()
}

// SetAnchors replaces the anchor set. The evaluator keeps its own copy.
func (e *Evaluator) SetAnchors(anchors AnchorSet) {
	e.SetSchedule(anchors.Clone())
}

// SetSchedule replaces the schedule, e.g. with a solar Template
func (e *Evaluator) SetSchedule(s Schedule) {
	e.mu.Lock()
	e.schedule = s
	e.generation++
	e.mu.Unlock()
	e.notify()
}

func (e *Evaluator) notify() {
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

func (e *Evaluator) desired() (bool, Schedule, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled, e.schedule, e.generation
}

// Current returns the most recently published value
func (e *Evaluator) Current() Value {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return e.last
}

// Active reports whether the refresh timer is running
func (e *Evaluator) Active() bool {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return e.active
}

// Run drives the evaluator until ctx is cancelled or Stop is called.
// The timer is released on every exit path.
func (e *Evaluator) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrEvaluatorRunning
	}
	e.started = true
	e.mu.Unlock()
	defer close(e.done)

	select {
	case <-e.stop:
		return nil
	default:
	}

	var (
		ticks      <-chan time.Time
		stopTicker func()
		schedule   Schedule
		seenGen    uint64
	)
	defer func() {
		if stopTicker != nil {
			stopTicker()
		}
		e.setActive(false)
	}()

	e.emit(NoValue(e.now()))

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("Evaluator stopping", "reason", ctx.Err())
			return nil

		case <-e.stop:
			e.logger.Debug("Evaluator stopped")
			return nil

		case <-e.changed:
			enabled, next, gen := e.desired()
			shouldRun := enabled && next != nil && next.Len() > 0
			scheduleChanged := gen != seenGen
			schedule, seenGen = next, gen

			switch {
			case shouldRun && ticks == nil:
				ticks, stopTicker = e.newTicker(e.interval)
				e.setActive(true)
				e.logger.Debug("Evaluator active", "interval", e.interval, "anchor_count", schedule.Len())
				e.recompute(schedule)

			case shouldRun && scheduleChanged:
				e.recompute(schedule)

			case !shouldRun && ticks != nil:
				stopTicker()
				ticks, stopTicker = nil, nil
				e.setActive(false)
				e.logger.Debug("Evaluator disabled", "enabled", enabled)
				e.emit(NoValue(e.now()))
			}

		case <-ticks:
			e.recompute(schedule)
		}
	}
}

// Stop ends Run and waits for it to return. Nothing is published afterwards.
func (e *Evaluator) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })

	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		<-e.done
	}
}

func (e *Evaluator) recompute(schedule Schedule) {
	now := e.now()
	c, ok, err := e.resolver.Resolve(schedule.AnchorsAt(now), now)
	if err != nil {
		e.logger.Warn("Failed to resolve colour, publishing no value", "error", err)
		e.emit(NoValue(now))
		return
	}
	if !ok {
		e.emit(NoValue(now))
		return
	}
	e.emit(Value{Color: c, Valid: true, At: now})
}

func (e *Evaluator) emit(v Value) {
	e.lastMu.Lock()
	e.last = v
	e.lastMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Publish hook panicked", "panic", r)
		}
	}()
	e.publish(v)
}

func (e *Evaluator) setActive(active bool) {
	e.lastMu.Lock()
	e.active = active
	e.lastMu.Unlock()
}
