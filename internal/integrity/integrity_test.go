package integrity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateNominalVibration(t *testing.T) {
	m := NewMonitor(DefaultParams(), 100)

	// One hour at nominal vibration adds one stress hour.
	s, clean := m.Update(0, 2.0, 1)
	require.True(t, clean)
	assert.InDelta(t, 1.0, s.CumulativeStressHours, 1e-12)
	assert.InDelta(t, 100*math.Exp(-1.0/2000), s.IntegrityScore, 1e-9)
}

func TestUpdateVibrationIsQuadratic(t *testing.T) {
	m := NewMonitor(DefaultParams(), 100)
	s, _ := m.Update(0, 4.0, 1)
	assert.InDelta(t, 4.0, s.CumulativeStressHours, 1e-12)
}

func TestUpdateAgePenalty(t *testing.T) {
	m := NewMonitor(DefaultParams(), 100)
	s, _ := m.Update(100000, 0, 0)
	assert.InDelta(t, 90.0, s.IntegrityScore, 1e-9)

	s, _ = m.Update(400000, 0, 0)
	assert.InDelta(t, 80.0, s.IntegrityScore, 1e-9, "age penalty saturates")
}

func TestUpdateIsMonotonic(t *testing.T) {
	m := NewMonitor(DefaultParams(), 100)
	prev := m.State().IntegrityScore
	for i := 0; i < 100; i++ {
		vib := float64(i%7) * 1.5
		s, _ := m.Update(float64(i*10), vib, 5)
		assert.LessOrEqual(t, s.IntegrityScore, prev)
		assert.GreaterOrEqual(t, s.IntegrityScore, 0.0)
		prev = s.IntegrityScore
	}
}

func TestUpdateKeepsLowerInitialScore(t *testing.T) {
	m := NewMonitor(DefaultParams(), 70)
	s, _ := m.Update(0, 0.1, 0.001)
	assert.Equal(t, 70.0, s.IntegrityScore)
}

func TestUpdateSanitizesInputs(t *testing.T) {
	m := NewMonitor(DefaultParams(), 100)
	s, clean := m.Update(math.NaN(), -3, math.Inf(1))
	assert.False(t, clean)
	assert.Equal(t, 100.0, s.IntegrityScore)
	assert.Equal(t, 0.0, s.CumulativeStressHours)
}

func TestUpdateStressSaturates(t *testing.T) {
	m := NewMonitor(DefaultParams(), 100)

	for i := 0; i < 3; i++ {
		s, clean := m.Update(0, 1e200, 1e200)
		require.True(t, clean, "extreme but finite inputs stay clean on cycle %d", i)
		assert.Equal(t, MaxStressHours, s.CumulativeStressHours)
		assert.False(t, math.IsInf(s.CumulativeStressHours, 0))
		assert.Equal(t, 0.0, s.IntegrityScore, "the score rests at its floor")
	}

	// A zero window against an overflowed ratio adds nothing.
	s, clean := m.Update(0, 1e200, 0)
	assert.True(t, clean)
	assert.Equal(t, MaxStressHours, s.CumulativeStressHours)
}

func TestUpdateZeroNominalVibration(t *testing.T) {
	p := DefaultParams()
	p.NominalVibrationMmS = 0
	m := NewMonitor(p, 100)
	s, clean := m.Update(0, 5, 1)
	assert.False(t, clean)
	assert.Equal(t, 0.0, s.CumulativeStressHours)
}

func TestNewMonitorInitialScore(t *testing.T) {
	assert.Equal(t, 100.0, NewMonitor(DefaultParams(), 0).State().IntegrityScore)
	assert.Equal(t, 100.0, NewMonitor(DefaultParams(), 150).State().IntegrityScore)
	assert.Equal(t, 55.0, NewMonitor(DefaultParams(), 55).State().IntegrityScore)
}

func TestCrossedBelow(t *testing.T) {
	assert.True(t, CrossedBelow(60, 60, 59.9))
	assert.False(t, CrossedBelow(60, 59, 58))
	assert.False(t, CrossedBelow(60, 70, 60))
}
