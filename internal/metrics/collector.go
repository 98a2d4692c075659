// Package metrics keeps per-unit decision gauges and counters and exposes
// them in the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/roach88/hydroexec/internal/ir"
)

const namespace = "hydroexec"

// Collector aggregates executive decisions. It satisfies engine.Observer
// and is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	units   map[string]*unitState
	dropped map[string]float64
}

type unitState struct {
	last        ir.ExecutiveDecision
	cycles      float64
	emergencies map[string]float64
	protections map[string]float64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		units:   make(map[string]*unitState),
		dropped: make(map[string]float64),
	}
}

// Observe records one decision.
func (c *Collector) Observe(d ir.ExecutiveDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.units[d.UnitID]
	if !ok {
		st = &unitState{
			emergencies: make(map[string]float64),
			protections: make(map[string]float64),
		}
		c.units[d.UnitID] = st
	}
	st.last = d
	st.cycles++
	if d.Emergency != nil {
		st.emergencies[string(d.Emergency.Reason)]++
	}
	for _, p := range d.ActiveProtections {
		code, _, _ := strings.Cut(p, ":")
		st.protections[strings.TrimSpace(code)]++
	}
}

// NotificationDropped counts a notification the dispatcher shed because
// its alert lane was full. It satisfies engine.DropCounter.
func (c *Collector) NotificationDropped(unitID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped[unitID]++
}

// Units returns the observed unit IDs in byte order.
func (c *Collector) Units() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedUnits()
}

func (c *Collector) sortedUnits() []string {
	ids := make([]string, 0, len(c.units))
	for id := range c.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Families snapshots the current state as metric families sorted by name.
func (c *Collector) Families() []*dto.MetricFamily {
	c.mu.Lock()
	defer c.mu.Unlock()

	units := c.sortedUnits()
	gauge := func(name, help string, value func(ir.ExecutiveDecision) float64) *dto.MetricFamily {
		mf := newFamily(name, help, dto.MetricType_GAUGE)
		for _, id := range units {
			mf.Metric = append(mf.Metric, gaugeMetric(value(c.units[id].last), "unit", id))
		}
		return mf
	}

	families := []*dto.MetricFamily{
		gauge("target_load_mw", "Target load of the last decision.", func(d ir.ExecutiveDecision) float64 { return d.TargetLoadMw }),
		gauge("master_health", "Master health score of the last decision.", func(d ir.ExecutiveDecision) float64 { return d.MasterHealthScore }),
		gauge("integrity_score", "Molecular integrity score after the last cycle.", func(d ir.ExecutiveDecision) float64 { return d.Integrity.IntegrityScore }),
		gauge("stress_hours", "Cumulative stress hours after the last cycle.", func(d ir.ExecutiveDecision) float64 { return d.Integrity.CumulativeStressHours }),
		gauge("synergy_factor", "Chemistry synergy factor of the last cycle.", func(d ir.ExecutiveDecision) float64 { return d.SynergyFactor }),
		gauge("net_profit_eur", "Net profit of the last settlement.", func(d ir.ExecutiveDecision) float64 { return d.Financials.NetProfitEur }),
		gauge("wear_debt_eur", "Wear debt of the last settlement.", func(d ir.ExecutiveDecision) float64 { return d.Financials.WearDebtEur }),
	}

	mode := newFamily("unit_mode", "Operating mode of the last decision; the current mode is 1.", dto.MetricType_GAUGE)
	cycles := newFamily("cycles_total", "Decisions produced.", dto.MetricType_COUNTER)
	stops := newFamily("emergency_stops_total", "Emergency stops by reason.", dto.MetricType_COUNTER)
	prots := newFamily("protections_total", "Protections raised by code.", dto.MetricType_COUNTER)
	for _, id := range units {
		st := c.units[id]
		mode.Metric = append(mode.Metric, gaugeMetric(1, "unit", id, "mode", string(st.last.Mode())))
		cycles.Metric = append(cycles.Metric, counterMetric(st.cycles, "unit", id))
		for _, reason := range sortedKeys(st.emergencies) {
			stops.Metric = append(stops.Metric, counterMetric(st.emergencies[reason], "unit", id, "reason", reason))
		}
		for _, code := range sortedKeys(st.protections) {
			prots.Metric = append(prots.Metric, counterMetric(st.protections[code], "unit", id, "code", code))
		}
	}
	shed := newFamily("notifications_dropped_total", "Notifications shed while the alert lane was full.", dto.MetricType_COUNTER)
	for _, id := range sortedKeys(c.dropped) {
		shed.Metric = append(shed.Metric, counterMetric(c.dropped[id], "unit", id))
	}
	families = append(families, mode, cycles, stops, prots, shed)

	out := families[:0]
	for _, mf := range families {
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// WriteText writes every family in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	for _, mf := range c.Families() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func newFamily(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + "_" + name),
		Help: proto.String(help),
		Type: typ.Enum(),
	}
}

func labels(kv []string) []*dto.LabelPair {
	out := make([]*dto.LabelPair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &dto.LabelPair{Name: proto.String(kv[i]), Value: proto.String(kv[i+1])})
	}
	return out
}

func gaugeMetric(v float64, kv ...string) *dto.Metric {
	return &dto.Metric{Label: labels(kv), Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func counterMetric(v float64, kv ...string) *dto.Metric {
	return &dto.Metric{Label: labels(kv), Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
