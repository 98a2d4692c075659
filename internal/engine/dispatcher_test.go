package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hydroexec/internal/control"
	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/notify"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

type memAudit struct {
	mu      sync.Mutex
	runs    []string
	records []ir.AuditRecord
	err     error
}

func (m *memAudit) RecordDecision(_ context.Context, runID string, rec ir.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, runID)
	m.records = append(m.records, rec)
	return m.err
}

func (m *memAudit) snapshot() []ir.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ir.AuditRecord(nil), m.records...)
}

type memNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *memNotifier) Notify(_ context.Context, m notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return n.err
}

type memController struct {
	mu        sync.Mutex
	proposals []ir.ControlProposal
	err       error
}

func (c *memController) Apply(_ context.Context, _ string, p ir.ControlProposal) (control.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proposals = append(c.proposals, p)
	if c.err != nil {
		return control.Result{}, c.err
	}
	return control.Result{Applied: true}, nil
}

type memRecorder struct {
	records []ir.AuditRecord
	err     error
}

func (r *memRecorder) Append(rec ir.AuditRecord) error {
	r.records = append(r.records, rec)
	return r.err
}

type countObserver struct {
	mu sync.Mutex
	n  int
}

func (o *countObserver) Observe(ir.ExecutiveDecision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.n++
}

// shedCounter is an observer that also counts shed notifications.
type shedCounter struct {
	countObserver
	shed atomic.Int32
}

func (s *shedCounter) NotificationDropped(string) { s.shed.Add(1) }

func TestDeliver_RoutesByKind(t *testing.T) {
	audit := &memAudit{}
	notifier := &memNotifier{}
	ctl := &memController{}
	rec := &memRecorder{}
	obs := &countObserver{}
	sentAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDispatcher("run-1",
		WithAuditSink(audit),
		WithNotifier(notifier),
		WithController(ctl),
		WithRecorder(rec),
		WithObserver(obs),
		WithDispatchClock(func() time.Time { return sentAt }),
	)

	x := newExecutive(peltonUnit(), t0)
	s := sample("P1", t0, 0.05)
	s.Turbine = ir.TurbineTelemetry{Reading: ir.PeltonReading{NeedlePositionPct: 80, ActiveNozzles: 3}}
	out := x.ExecuteCycle(s, ir.Metadata{Tier: ir.TierAutonomous})
	s2 := sample("P1", t0.Add(time.Millisecond), 0.05)
	s2.EStop = true
	stop := x.ExecuteCycle(s2, ir.Metadata{})

	ctx := context.Background()
	for _, ev := range append(out.Events, stop.Events...) {
		d.Deliver(ctx, ev)
	}

	require.Len(t, audit.records, 2)
	assert.Equal(t, []string{"run-1", "run-1"}, audit.runs)
	assert.Len(t, rec.records, 2)
	assert.Equal(t, 2, obs.n)
	require.Len(t, ctl.proposals, 1)
	assert.Equal(t, 3, ctl.proposals[0].ActiveNozzles)
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "EMERGENCY_SHUTDOWN", notifier.msgs[0].Alert.Title)
	assert.Equal(t, sentAt, notifier.msgs[0].SentAt)
	assert.Equal(t, int64(2), notifier.msgs[0].Seq)
}

func TestDeliver_SwallowsCollaboratorErrors(t *testing.T) {
	boom := errors.New("boom")
	audit := &memAudit{err: boom}
	notifier := &memNotifier{err: boom}
	ctl := &memController{err: boom}
	rec := &memRecorder{err: boom}
	d := NewDispatcher("run-1", WithAuditSink(audit), WithNotifier(notifier), WithController(ctl), WithRecorder(rec))

	x := newExecutive(francisUnit(), t0)
	s := sample("U1", t0, 0.05)
	s.EStop = true
	out := x.ExecuteCycle(s, ir.Metadata{Tier: ir.TierAutonomous})

	assert.NotPanics(t, func() {
		for _, ev := range out.Events {
			d.Deliver(context.Background(), ev)
		}
	})
	assert.Len(t, audit.records, 1)
	assert.Len(t, notifier.msgs, 1)
}

func TestDeliver_MaintenanceBecomesNotification(t *testing.T) {
	notifier := &memNotifier{}
	d := NewDispatcher("run-1", WithNotifier(notifier))

	d.Deliver(context.Background(), ir.OutboundEvent{
		Kind:        ir.EventMaintenance,
		UnitID:      "U1",
		Maintenance: &ir.MaintenanceRequest{Part: "francis runner", IntegrityScore: 59},
	})

	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "SPARE_PART_REQUEST", notifier.msgs[0].Alert.Title)
	assert.Equal(t, "francis runner", notifier.msgs[0].Alert.Reason)
}

func TestDispatcher_RunDrainsAfterClose(t *testing.T) {
	audit := &memAudit{}
	d := NewDispatcher("run-1", WithAuditSink(audit), WithDispatchDepth(2))
	x := newExecutive(francisUnit(), t0.Add(time.Second))

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 5; i++ {
		out := x.ExecuteCycle(sample("U1", t0.Add(time.Duration(i)*time.Millisecond), 0.05), ir.Metadata{})
		require.NoError(t, d.Dispatch(ctx, out.Events))
	}
	d.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
	assert.Len(t, audit.snapshot(), 5)

	err := d.Dispatch(ctx, []ir.OutboundEvent{{Kind: ir.EventAudit, UnitID: "U1"}})
	assert.True(t, IsStopped(err))
}

func TestDispatch_ShedsAlertsWhenLaneFull(t *testing.T) {
	obs := &shedCounter{}
	d := NewDispatcher("run-1", WithObserver(obs), WithAlertDepth(3), WithDispatchDepth(16))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := d.Dispatch(ctx, []ir.OutboundEvent{
			{Kind: ir.EventAlert, UnitID: "U1", Seq: int64(i), Alert: &ir.Alert{Title: "EMERGENCY_SHUTDOWN"}},
			{Kind: ir.EventAudit, UnitID: "U1", Seq: int64(i), Audit: &ir.AuditRecord{}},
		})
		require.NoError(t, err, "a full alert lane never fails or blocks a cycle")
	}

	assert.Equal(t, uint64(7), d.Dropped())
	assert.Equal(t, int32(7), obs.shed.Load())
	assert.Equal(t, 3, d.alerts.Len())
	assert.Equal(t, 10, d.queue.Len(), "audit records are never shed")

	d.Close()
	err := d.Dispatch(ctx, []ir.OutboundEvent{{Kind: ir.EventAlert, UnitID: "U1", Alert: &ir.Alert{}}})
	assert.True(t, IsStopped(err))
}

func TestEngine_HangingWebhookDoesNotStallUnit(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	// Every webhook call waits out its timeout; the breaker never opens.
	hanging := notify.New([]notify.Target{{Type: "http", URL: srv.URL}}, 200*time.Millisecond, notify.WithBreaker(1000, time.Minute))

	const n = 200
	audit := &memAudit{}
	obs := &shedCounter{}
	d := NewDispatcher("run-hang", WithAuditSink(audit), WithNotifier(hanging), WithObserver(obs), WithAlertDepth(4))
	decided := make(chan struct{}, n)
	e, err := New(twoUnitPlant(), DefaultSettings(),
		WithDispatcher(d),
		WithWallClock(func() time.Time { return t0.Add(time.Second) }),
		WithOutcomeHook(func(Outcome) { decided <- struct{}{} }),
	)
	require.NoError(t, err)
	done := runEngine(e)

	// Alternate calm and e-stop samples: every other cycle enters an
	// emergency and raises an alert.
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < n; i++ {
		s := sample("U1", t0.Add(time.Duration(i)*time.Millisecond), 0.05)
		s.EStop = i%2 == 1
		require.NoError(t, e.Submit(ctx, s, ir.Metadata{}))
	}
	for i := 0; i < n; i++ {
		select {
		case <-decided:
		case <-time.After(5 * time.Second):
			t.Fatalf("unit stalled after %d of %d cycles", i, n)
		}
	}
	assert.Less(t, time.Since(start), 3*time.Second, "100 alerts at 200ms each would take 20s")

	e.Stop()
	waitStopped(t, done)

	assert.Len(t, audit.snapshot(), n)
	assert.Positive(t, d.Dropped())
	assert.Equal(t, d.Dropped(), uint64(obs.shed.Load()))
	assert.LessOrEqual(t, uint64(hits.Load()), uint64(n/2)-d.Dropped())
}
