// Package notify delivers operator alerts to webhook targets (Slack, Teams,
// or a plain JSON HTTP endpoint).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/roach88/hydroexec/internal/ir"
)

// Breaker defaults: three straight failures open a target's circuit for
// thirty seconds.
const (
	DefaultBreakerFailures = 3
	DefaultBreakerCooldown = 30 * time.Second
)

// Target is one webhook destination.
type Target struct {
	// Type is one of: slack | teams | http.
	Type string
	URL  string
}

// Message is the notification payload.
type Message struct {
	UnitID  string    `json:"unit_id"`
	CycleID string    `json:"cycle_id"`
	Seq     int64     `json:"seq"`
	Alert   ir.Alert  `json:"alert"`
	SentAt  time.Time `json:"sent_at"`
}

// Notifier posts messages to every configured target.
//
// Each target sits behind its own circuit breaker. While a target's circuit
// is open its messages fail at once with gobreaker.ErrOpenState instead of
// waiting out the HTTP timeout.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	targets  []Target
	breakers []*gobreaker.CircuitBreaker
	client   *http.Client
	now      func() time.Time

	failures uint32
	cooldown time.Duration
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithBreaker sets how many consecutive failures open a target's circuit
// and how long it stays open before one trial message is let through.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(n *Notifier) {
		n.failures = failures
		n.cooldown = cooldown
	}
}

// New creates a notifier. A timeout of zero means 10 seconds.
func New(targets []Target, timeout time.Duration, opts ...Option) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := &Notifier{
		targets:  targets,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
		failures: DefaultBreakerFailures,
		cooldown: DefaultBreakerCooldown,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.failures == 0 {
		n.failures = 1
	}
	n.breakers = make([]*gobreaker.CircuitBreaker, len(targets))
	for i, t := range targets {
		n.breakers[i] = n.newBreaker(fmt.Sprintf("%s#%d", t.Type, i))
	}
	return n
}

// newBreaker names the circuit by type and position; webhook URLs often
// carry secrets and stay out of the logs.
func (n *Notifier) newBreaker(name string) *gobreaker.CircuitBreaker {
	failures := n.failures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     n.cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("notify: webhook circuit changed", "target", name, "from", from.String(), "to", to.String())
		},
	})
}

// State returns the circuit state of the i-th target.
func (n *Notifier) State(i int) gobreaker.State {
	return n.breakers[i].State()
}

// Notify sends m to all targets. Every failure is logged; the joined error
// is returned for callers that care, but delivery to the remaining targets
// continues.
func (n *Notifier) Notify(ctx context.Context, m Message) error {
	if m.SentAt.IsZero() {
		m.SentAt = n.now().UTC()
	}
	var errs []error
	for i, t := range n.targets {
		if t.URL == "" {
			continue
		}

		var send func(context.Context, string, Message) error
		switch t.Type {
		case "slack":
			send = n.sendSlack
		case "teams":
			send = n.sendTeams
		case "http":
			send = n.sendHTTP
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", t.Type)
			continue
		}

		_, err := n.breakers[i].Execute(func() (interface{}, error) {
			return nil, send(ctx, t.URL, m)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Debug("notify: webhook circuit open, skipping", "type", t.Type, "unit", m.UnitID, "alert", m.Alert.Title)
			errs = append(errs, fmt.Errorf("%s: %w", t.Type, err))
			continue
		}
		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", t.Type,
				"unit", m.UnitID,
				"alert", m.Alert.Title,
				"err", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", t.Type, err))
		} else {
			slog.Debug("notify: webhook delivered",
				"type", t.Type,
				"unit", m.UnitID,
				"alert", m.Alert.Title,
			)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) sendSlack(ctx context.Context, url string, m Message) error {
	body, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s: %s", severityLabel(m.Alert.Severity), m.UnitID, summary(m.Alert)),
	})
	if err != nil {
		return err
	}
	return n.post(ctx, url, body)
}

func (n *Notifier) sendTeams(ctx context.Context, url string, m Message) error {
	body, err := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(m.Alert.Severity),
		"summary":    m.Alert.Title,
		"title":      fmt.Sprintf("Hydro unit %s: %s", m.UnitID, m.Alert.Title),
		"text":       summary(m.Alert),
	})
	if err != nil {
		return err
	}
	return n.post(ctx, url, body)
}

func (n *Notifier) sendHTTP(ctx context.Context, url string, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return n.post(ctx, url, body)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func summary(a ir.Alert) string {
	if a.Reason == "" {
		return fmt.Sprintf("%s (%.1f)", a.Title, a.Value)
	}
	return fmt.Sprintf("%s (%.1f): %s", a.Title, a.Value, a.Reason)
}

func severityLabel(s ir.Severity) string {
	switch s {
	case ir.SeverityCritical:
		return "[CRITICAL]"
	case ir.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s ir.Severity) string {
	switch s {
	case ir.SeverityCritical:
		return "FF4F6A"
	case ir.SeverityWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
