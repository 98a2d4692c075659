package truth

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hydroexec/internal/ir"
)

func reading(v float64) ir.SensorReading {
	return ir.SensorReading{Value: v}
}

func TestReconcileAgreeingPair(t *testing.T) {
	v := Reconcile(reading(50), reading(52), 51.5, DefaultTolerance)
	assert.Equal(t, ir.WinnerB, v.Winner)
	assert.Equal(t, 100.0, v.Confidence)
	assert.Equal(t, 52.0, v.Value)
}

func TestReconcileTieGoesToA(t *testing.T) {
	v := Reconcile(reading(48), reading(52), 50, DefaultTolerance)
	assert.Equal(t, ir.WinnerA, v.Winner)
	assert.Equal(t, 48.0, v.Value)
}

func TestReconcileOneSensorAgreesWithPrediction(t *testing.T) {
	// 150 vs 50 against a baseline of 52: B is 2 off, A is 98 off.
	v := Reconcile(reading(150), reading(50), 52, DefaultTolerance)
	require.Equal(t, ir.WinnerB, v.Winner)
	assert.Equal(t, 50.0, v.Value)
	assert.InDelta(t, 100*(1-2.0/98.0), v.Confidence, 1e-9)
}

func TestReconcileBothNearPredictionButApart(t *testing.T) {
	// 46 and 54 differ by 8 (> 5) but both sit within 5 of 50.
	v := Reconcile(reading(54), reading(46.5), 50, DefaultTolerance)
	assert.Equal(t, ir.WinnerB, v.Winner)
	assert.InDelta(t, 100*(1-3.5/4.0), v.Confidence, 1e-9)
}

func TestReconcileUncertain(t *testing.T) {
	v := Reconcile(reading(10), reading(90), 50, DefaultTolerance)
	assert.Equal(t, ir.WinnerUncertain, v.Winner)
	assert.Equal(t, 0.0, v.Confidence)
	assert.Equal(t, 50.0, v.Value, "predicted value substitutes")
}

func TestReconcileMissingReadings(t *testing.T) {
	v := Reconcile(reading(math.NaN()), reading(math.Inf(1)), 42, DefaultTolerance)
	assert.Equal(t, ir.WinnerPredicted, v.Winner)
	assert.Equal(t, 42.0, v.Value)

	v = Reconcile(reading(math.NaN()), reading(43), 42, DefaultTolerance)
	assert.Equal(t, ir.WinnerB, v.Winner)
	assert.Equal(t, partialConfidence, v.Confidence)

	v = Reconcile(reading(80), reading(math.NaN()), 42, DefaultTolerance)
	assert.Equal(t, ir.WinnerUncertain, v.Winner)
}

func TestReconcileNonFinitePrediction(t *testing.T) {
	v := Reconcile(reading(40), reading(42), math.NaN(), DefaultTolerance)
	assert.Equal(t, 100.0, v.Confidence)
	assert.Contains(t, []ir.Winner{ir.WinnerA, ir.WinnerB}, v.Winner)
}

func TestReconcileSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		pred := rng.Float64() * 100
		a := pred + rng.Float64()*10 - 5
		b := a + rng.Float64()*4 - 2
		if math.Abs(a-pred) == math.Abs(b-pred) {
			continue
		}
		ab := Reconcile(reading(a), reading(b), pred, DefaultTolerance)
		ba := Reconcile(reading(b), reading(a), pred, DefaultTolerance)
		assert.Equal(t, ab.Value, ba.Value)
		assert.Equal(t, ab.Confidence, ba.Confidence)
	}
}

func TestReconcileTotality(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 2000; i++ {
		a := rng.NormFloat64() * 100
		b := rng.NormFloat64() * 100
		pred := rng.NormFloat64() * 100
		tol := rng.Float64() * 20

		v := Reconcile(reading(a), reading(b), pred, tol)
		assert.GreaterOrEqual(t, v.Confidence, 0.0)
		assert.LessOrEqual(t, v.Confidence, 100.0)

		uncertain := math.Abs(a-b) > tol && math.Abs(a-pred) > tol && math.Abs(b-pred) > tol
		assert.Equal(t, uncertain, v.Winner == ir.WinnerUncertain, "a=%v b=%v pred=%v tol=%v", a, b, pred, tol)
	}
}

func TestBaseline(t *testing.T) {
	b := NewBaseline(0.5)
	_, primed := b.Value()
	assert.False(t, primed)
	assert.Equal(t, 51.0, b.Predict(reading(50), reading(52)))

	b.Observe(50)
	assert.Equal(t, 50.0, b.Predict(reading(0), reading(0)))

	b.Observe(60)
	v, primed := b.Value()
	assert.True(t, primed)
	assert.Equal(t, 55.0, v)

	b.Observe(math.NaN())
	v, _ = b.Value()
	assert.Equal(t, 55.0, v)
}

func TestNewBaselineDefaultsAlpha(t *testing.T) {
	assert.Equal(t, DefaultAlpha, NewBaseline(0).alpha)
	assert.Equal(t, DefaultAlpha, NewBaseline(1.5).alpha)
	assert.Equal(t, 1.0, NewBaseline(1).alpha)
}
