package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/hydroexec/internal/control"
	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/notify"
)

// Default depths of the dispatcher's two lanes.
const (
	DefaultDispatchDepth = 1024
	DefaultAlertDepth    = 64
)

// AuditSink persists the write-once record of every cycle.
// Implemented by store.Store.
type AuditSink interface {
	RecordDecision(ctx context.Context, runID string, rec ir.AuditRecord) error
}

// Notifier delivers operator alerts. Implemented by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, m notify.Message) error
}

// Controller forwards setpoints to hardware. Implemented by control.Adapter.
type Controller interface {
	Apply(ctx context.Context, unitID string, p ir.ControlProposal) (control.Result, error)
}

// Recorder appends audit records to a replayable archive.
// Implemented by archive.Writer.
type Recorder interface {
	Append(rec ir.AuditRecord) error
}

// Observer sees every decision. Implemented by metrics.Collector.
type Observer interface {
	Observe(d ir.ExecutiveDecision)
}

// DropCounter is told about every notification shed by a full alert lane.
// Implemented by metrics.Collector.
type DropCounter interface {
	NotificationDropped(unitID string)
}

// Dispatcher drains cycle events to the collaborators.
//
// Delivery is fire-and-forget: every collaborator error is logged and
// dropped, and nothing flows back into a cycle. Events travel in two lanes.
// Audit, control, and fleet events share the record lane; Dispatch waits
// while it is full so the audit trail has no gaps. Alerts and maintenance
// requests go to the alert lane, which is drained by its own goroutine and
// never waits: when it is full the notification is shed and counted, so a
// dead webhook cannot hold a unit worker.
//
// Thread-safety model:
//   - Dispatch(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Deliver(): synchronous; do not mix with a running Run loop
type Dispatcher struct {
	runID     string
	audit     AuditSink
	notifier  Notifier
	control   Controller
	recorder  Recorder
	observers []Observer
	drops     []DropCounter
	now       func() time.Time

	depth      int
	alertDepth int
	queue      *queue[ir.OutboundEvent]
	alerts     *queue[ir.OutboundEvent]
	dropped    atomic.Uint64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAuditSink sets the audit sink.
func WithAuditSink(s AuditSink) DispatcherOption {
	return func(d *Dispatcher) { d.audit = s }
}

// WithNotifier sets the alert notifier.
func WithNotifier(n Notifier) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithController sets the hardware control adapter.
func WithController(c Controller) DispatcherOption {
	return func(d *Dispatcher) { d.control = c }
}

// WithRecorder sets the archive recorder.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithObserver adds a decision observer. An observer that is also a
// DropCounter is told about shed notifications.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observers = append(d.observers, o)
		if dc, ok := o.(DropCounter); ok {
			d.drops = append(d.drops, dc)
		}
	}
}

// WithDispatchDepth bounds the record lane.
func WithDispatchDepth(n int) DispatcherOption {
	return func(d *Dispatcher) { d.depth = n }
}

// WithAlertDepth bounds the alert lane.
func WithAlertDepth(n int) DispatcherOption {
	return func(d *Dispatcher) { d.alertDepth = n }
}

// WithDispatchClock replaces the clock that stamps notifications.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher whose audit records belong to runID.
func NewDispatcher(runID string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		runID:      runID,
		now:        time.Now,
		depth:      DefaultDispatchDepth,
		alertDepth: DefaultAlertDepth,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.alertDepth <= 0 {
		d.alertDepth = DefaultAlertDepth
	}
	d.queue = newQueue[ir.OutboundEvent](d.depth)
	d.alerts = newQueue[ir.OutboundEvent](d.alertDepth)
	return d
}

// RunID returns the run the dispatcher records under.
func (d *Dispatcher) RunID() string { return d.runID }

// Dropped returns how many notifications were shed so far.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Dispatch queues the events of one cycle for delivery.
// Returns a QUEUE_STOPPED fault after Close.
func (d *Dispatcher) Dispatch(ctx context.Context, events []ir.OutboundEvent) error {
	for _, ev := range events {
		if isNotification(ev.Kind) {
			if err := d.offerAlert(ev); err != nil {
				return err
			}
			continue
		}
		ok, err := d.queue.Enqueue(ctx, ev)
		if err != nil {
			return err
		}
		if !ok {
			return NewQueueStoppedError(ev.UnitID)
		}
	}
	return nil
}

func isNotification(k ir.EventKind) bool {
	return k == ir.EventAlert || k == ir.EventMaintenance
}

func (d *Dispatcher) offerAlert(ev ir.OutboundEvent) error {
	ok, closed := d.alerts.Offer(ev)
	switch {
	case ok:
		return nil
	case closed:
		return NewQueueStoppedError(ev.UnitID)
	}
	n := d.dropped.Add(1)
	slog.Warn("alert lane full, notification shed", "unit", ev.UnitID, "seq", ev.Seq, "kind", ev.Kind, "dropped", n)
	for _, dc := range d.drops {
		dc.NotificationDropped(ev.UnitID)
	}
	return nil
}

// Run delivers queued events until Close has been called and both lanes
// are drained, or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	alerts := make(chan error, 1)
	go func() { alerts <- d.drain(ctx, d.alerts) }()

	err := d.drain(ctx, d.queue)
	if aerr := <-alerts; err == nil {
		err = aerr
	}
	return err
}

func (d *Dispatcher) drain(ctx context.Context, q *queue[ir.OutboundEvent]) error {
	for {
		if ev, ok := q.TryDequeue(); ok {
			d.Deliver(ctx, ev)
			continue
		}
		if q.Drained() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.Wait():
		}
	}
}

// Close stops accepting events. Run returns once both lanes are drained.
func (d *Dispatcher) Close() {
	d.queue.Close()
	d.alerts.Close()
}

// Deliver hands one event to its collaborators.
func (d *Dispatcher) Deliver(ctx context.Context, ev ir.OutboundEvent) {
	switch ev.Kind {
	case ir.EventAudit:
		if ev.Audit != nil {
			d.deliverAudit(ctx, ev, *ev.Audit)
		}
	case ir.EventAlert:
		if ev.Alert != nil {
			slog.Warn("alert", "unit", ev.UnitID, "seq", ev.Seq, "title", ev.Alert.Title, "reason", ev.Alert.Reason)
			d.notify(ctx, ev, *ev.Alert)
		}
	case ir.EventControl:
		if ev.Control != nil {
			d.deliverControl(ctx, ev, *ev.Control)
		}
	case ir.EventFleet:
		if ev.Fleet != nil {
			slog.Info("fleet rebalance", "unit", ev.UnitID, "seq", ev.Seq, "plan", ev.Fleet.PerUnitTargetMw, "message", ev.Fleet.Message)
		}
	case ir.EventMaintenance:
		if m := ev.Maintenance; m != nil {
			slog.Info("spare part request", "unit", ev.UnitID, "part", m.Part, "integrity", m.IntegrityScore)
			d.notify(ctx, ev, ir.Alert{
				Title:    "SPARE_PART_REQUEST",
				Severity: ir.SeverityAdvisory,
				Value:    m.IntegrityScore,
				Reason:   m.Part,
			})
		}
	default:
		slog.Warn("dropping event of unknown kind", "kind", ev.Kind, "unit", ev.UnitID)
	}
}

func (d *Dispatcher) deliverAudit(ctx context.Context, ev ir.OutboundEvent, rec ir.AuditRecord) {
	for _, o := range d.observers {
		o.Observe(rec.Decision)
	}
	if d.recorder != nil {
		if err := d.recorder.Append(rec); err != nil {
			slog.Error("archive append failed", "unit", ev.UnitID, "seq", ev.Seq, "err", err)
		}
	}
	if d.audit != nil {
		if err := d.audit.RecordDecision(ctx, d.runID, rec); err != nil {
			slog.Error("audit write failed", "unit", ev.UnitID, "seq", ev.Seq, "cycle_id", ev.CycleID, "err", err)
		}
	}
}

func (d *Dispatcher) notify(ctx context.Context, ev ir.OutboundEvent, a ir.Alert) {
	if d.notifier == nil {
		return
	}
	err := d.notifier.Notify(ctx, notify.Message{
		UnitID:  ev.UnitID,
		CycleID: ev.CycleID,
		Seq:     ev.Seq,
		Alert:   a,
		SentAt:  d.now().UTC(),
	})
	if err != nil {
		slog.Error("notification failed", "unit", ev.UnitID, "seq", ev.Seq, "title", a.Title, "err", err)
	}
}

func (d *Dispatcher) deliverControl(ctx context.Context, ev ir.OutboundEvent, p ir.ControlProposal) {
	if d.control == nil {
		slog.Debug("no controller, dropping proposal", "unit", ev.UnitID, "seq", ev.Seq)
		return
	}
	res, err := d.control.Apply(ctx, ev.UnitID, p)
	if err != nil {
		slog.Error("control apply failed", "unit", ev.UnitID, "seq", ev.Seq, "err", err)
		return
	}
	slog.Debug("control proposal handled", "unit", ev.UnitID, "seq", ev.Seq, "applied", res.Applied)
}
