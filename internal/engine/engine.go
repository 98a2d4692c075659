package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/hydroexec/internal/fleet"
	"github.com/roach88/hydroexec/internal/ir"
)

// Engine runs one Executive per unit of a plant.
//
// Each unit has a bounded queue and a single worker goroutine, so a unit's
// cycles run one at a time in submission order while different units run
// in parallel. After every cycle the worker publishes the unit's status to
// the fleet board; a cycle whose metadata carries no fleet snapshot is
// given the board's snapshot.
//
// Thread-safety model:
//   - Submit(), Reconfigure(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine, once
type Engine struct {
	plant     ir.PlantSpec
	board     *fleet.Board
	dispatch  *Dispatcher
	runIDs    RunIDGenerator
	now       func() time.Time
	onOutcome func(Outcome)

	units map[string]*worker
	order []string

	mu      sync.Mutex
	started bool
	stopped bool
}

type worker struct {
	exec  *Executive
	queue *queue[work]
}

// work is one queued item: a sample to decide, or new settings.
type work struct {
	telemetry ir.Telemetry
	meta      ir.Metadata
	settings  *Settings
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher sets the event dispatcher. Its run ID names the run.
func WithDispatcher(d *Dispatcher) Option {
	return func(e *Engine) { e.dispatch = d }
}

// WithRunIDGenerator sets the generator used when no dispatcher is given.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithBoard shares a fleet board with the engine.
func WithBoard(b *fleet.Board) Option {
	return func(e *Engine) { e.board = b }
}

// WithWallClock sets the wall clock the executives check liveness against.
func WithWallClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOutcomeHook registers fn to be called by the unit worker after every
// cycle. fn must not block.
func WithOutcomeHook(fn func(Outcome)) Option {
	return func(e *Engine) { e.onOutcome = fn }
}

// New creates an engine for every unit of plant.
func New(plant ir.PlantSpec, s Settings, opts ...Option) (*Engine, error) {
	if err := plant.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		plant:  plant,
		runIDs: UUIDv7Generator{},
		now:    time.Now,
		units:  make(map[string]*worker, len(plant.Units)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.board == nil {
		e.board = fleet.NewBoard()
	}
	if e.dispatch == nil {
		e.dispatch = NewDispatcher(e.runIDs.Generate())
	}

	budget := plant.Capacity()
	for _, u := range plant.Units {
		x := NewExecutive(u, budget, s, WithNow(e.now))
		e.units[u.ID] = &worker{exec: x, queue: newQueue[work](s.QueueDepth)}
		e.order = append(e.order, u.ID)
		e.board.Publish(ir.UnitStatus{
			ID:             u.ID,
			MaxCapacityMw:  u.MaxCapacityMw,
			IntegrityScore: x.monitor.State().IntegrityScore,
			Condition:      ir.ConditionOptimal,
		})
	}
	return e, nil
}

// RunID returns the run ID every audit record of this engine carries.
func (e *Engine) RunID() string { return e.dispatch.RunID() }

// Board returns the fleet board.
func (e *Engine) Board() *fleet.Board { return e.board }

// Submit queues a telemetry sample for its unit. It blocks while the
// unit's queue is full, and fails with UNKNOWN_UNIT, QUEUE_STOPPED, or
// ctx.Err().
func (e *Engine) Submit(ctx context.Context, t ir.Telemetry, md ir.Metadata) error {
	w, ok := e.units[t.UnitID]
	if !ok {
		return NewUnknownUnitError(t.UnitID)
	}
	ok, err := w.queue.Enqueue(ctx, work{telemetry: t, meta: md})
	if err != nil {
		return err
	}
	if !ok {
		return NewQueueStoppedError(t.UnitID)
	}
	return nil
}

// Reconfigure queues new settings on every unit. Each unit applies them
// between two cycles, after the samples queued before the call.
func (e *Engine) Reconfigure(s Settings) {
	for _, id := range e.order {
		if !e.units[id].queue.Push(work{settings: &s}) {
			slog.Warn("reconfigure after stop ignored", "unit", id)
		}
	}
	slog.Info("engine reconfigured", "units", len(e.order), "tier", s.Tier)
}

// Run starts the unit workers and the dispatcher. It blocks until Stop has
// been called and every queued sample has been decided and dispatched, or
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine: already running")
	}
	e.started = true
	e.mu.Unlock()

	slog.Info("engine starting", "run_id", e.RunID(), "plant", e.plant.Name, "units", len(e.order))

	dispatched := make(chan error, 1)
	go func() { dispatched <- e.dispatch.Run(ctx) }()

	var wg sync.WaitGroup
	for _, id := range e.order {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			e.work(ctx, w)
		}(e.units[id])
	}
	wg.Wait()

	e.dispatch.Close()
	err := <-dispatched

	if ctx.Err() != nil {
		slog.Info("engine stopping: context cancelled", "run_id", e.RunID())
		return ctx.Err()
	}
	slog.Info("engine stopped", "run_id", e.RunID())
	return err
}

// Stop closes every unit queue. Samples already queued are still decided.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	e.stopped = true
	for _, id := range e.order {
		e.units[id].queue.Close()
	}
}

// work is the single-writer loop of one unit.
func (e *Engine) work(ctx context.Context, w *worker) {
	for {
		if item, ok := w.queue.TryDequeue(); ok {
			e.process(ctx, w, item)
			continue
		}
		if w.queue.Drained() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-w.queue.Wait():
		}
	}
}

func (e *Engine) process(ctx context.Context, w *worker, item work) {
	if item.settings != nil {
		w.exec.Reconfigure(*item.settings)
		slog.Debug("unit reconfigured", "unit", w.exec.UnitID())
		return
	}

	md := item.meta
	if len(md.Fleet) == 0 {
		md.Fleet = e.board.Snapshot()
	}
	out := w.exec.ExecuteCycle(item.telemetry, md)
	d := out.Decision
	e.board.Publish(w.exec.Status(d))

	if d.IsEmergency() {
		slog.Error("emergency stop",
			"unit", d.UnitID,
			"seq", d.Seq,
			"cycle_id", d.CycleID,
			"fault", FaultCodeFor(d.Emergency.Source),
			"reason", d.Emergency.Reason,
			"detail", d.Emergency.Detail,
		)
	} else {
		slog.Debug("cycle complete",
			"unit", d.UnitID,
			"seq", d.Seq,
			"mode", d.Mode(),
			"target_mw", d.TargetLoadMw,
			"health", d.MasterHealthScore,
		)
	}

	if e.onOutcome != nil {
		e.onOutcome(out)
	}
	// Delivery failures never reach the cycle; log and continue.
	if err := e.dispatch.Dispatch(ctx, out.Events); err != nil {
		slog.Warn("dispatch failed", "unit", d.UnitID, "seq", d.Seq, "err", err)
	}
}
