package risk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallback(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"typical", []float64{30, 45, 38}, 0.45},
		{"loud clamps to one", []float64{30, 180}, 1},
		{"all negative clamps to zero", []float64{-5, -20}, 0},
		{"exactly one hundred", []float64{100}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Fallback(tt.samples), 1e-9)
		})
	}
}

func TestFallbackAlwaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		samples := make([]float64, 1+rng.Intn(50))
		for j := range samples {
			samples[j] = (rng.Float64() - 0.3) * 400
		}
		score := Fallback(samples)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(math.NaN()))
	assert.Equal(t, 0.0, Clamp(-0.1))
	assert.Equal(t, 1.0, Clamp(1.7))
	assert.Equal(t, 0.3, Clamp(0.3))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(nil, 10), ErrNoSamples)
	assert.ErrorIs(t, Validate(make([]float64, 11), 10), ErrTooManySamples)
	assert.ErrorIs(t, Validate([]float64{1, math.Inf(1)}, 10), ErrNonFiniteSample)
	assert.ErrorIs(t, Validate([]float64{math.NaN()}, 10), ErrNonFiniteSample)
	assert.ErrorIs(t, Validate([]float64{1e308, 1e308}, 10), ErrSampleRange)
	assert.ErrorIs(t, Validate([]float64{-MaxMagnitude - 1}, 10), ErrSampleRange)
	assert.NoError(t, Validate([]float64{-MaxMagnitude, MaxMagnitude}, 10))
	assert.NoError(t, Validate([]float64{1, 2, 3}, 10))
	assert.NoError(t, Validate(make([]float64, 50), 0))
}

func TestAnalyze(t *testing.T) {
	a := Analyze([]float64{2, 4, 4, 4, 5, 5, 7, 9, 10, 10})
	assert.Equal(t, 10, a.Count)
	assert.InDelta(t, 6.0, a.Mean, 1e-9)
	assert.Equal(t, 2.0, a.Min)
	assert.Equal(t, 10.0, a.Max)
	assert.InDelta(t, 2.6833, a.StdDev, 1e-3)
	assert.InDelta(t, 2.0, a.DurationSeconds, 1e-9)

	assert.Equal(t, 0, Analyze(nil).Count)
}

func TestIsHighRisk(t *testing.T) {
	assert.True(t, IsHighRisk(0.7, 0.7))
	assert.False(t, IsHighRisk(0.69, 0.7))
}

func TestAnalyzeStaysFiniteAtTheBounds(t *testing.T) {
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = MaxMagnitude
		if i%2 == 1 {
			samples[i] = -MaxMagnitude
		}
	}
	a := Analyze(samples)
	for _, v := range []float64{a.Mean, a.StdDev, a.Min, a.Max} {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
	}
	assert.InDelta(t, 0, a.Mean, 1e-6)
	assert.InDelta(t, MaxMagnitude, a.StdDev, 1e-3)
}
