package physics

import (
	"math"

	"github.com/roach88/hydroexec/internal/ir"
)

// NozzlePlan is a proposed Pelton nozzle configuration.
type NozzlePlan struct {
	Active int
	Order  []int
}

// OptimizeNozzles picks how many nozzles to run so each jet sits near the
// optimal needle opening at the same total flow. Nozzles open in
// alternating halves around the runner (1, 4, 2, 5, 3, 6 for six) to keep
// the radial load balanced.
func OptimizeNozzles(r ir.PeltonReading, p PeltonParams) NozzlePlan {
	maxN := p.MaxNozzles
	if maxN <= 0 {
		maxN = 6
	}
	if r.ActiveNozzles <= 0 {
		return NozzlePlan{}
	}
	flow := float64(r.ActiveNozzles) * r.NeedlePositionPct
	want, ok := ir.SafeDiv(flow, p.OptimalNeedlePct, float64(r.ActiveNozzles))
	if !ok {
		want = float64(r.ActiveNozzles)
	}
	n := int(math.Round(want))
	if n < 1 {
		n = 1
	}
	if n > maxN {
		n = maxN
	}
	return NozzlePlan{Active: n, Order: openingOrder(maxN)[:n]}
}

func openingOrder(n int) []int {
	half := (n + 1) / 2
	order := make([]int, 0, n)
	for i := 1; i <= half; i++ {
		order = append(order, i)
		if j := i + half; j <= n {
			order = append(order, j)
		}
	}
	return order
}
