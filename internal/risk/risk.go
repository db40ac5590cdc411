// Package risk holds the rule-based scoring used when the ML service is
// unavailable, and summary statistics for sample arrays.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/rsyarsya/pneuscope/internal/model"
)

// SampleRate is the feed rate of the audio stream in samples per second.
const SampleRate = 5.0

// MaxMagnitude bounds accepted samples. Real readings are a few hundred dB
// at most; anything beyond this is garbage input.
const MaxMagnitude = 1e6

var (
	ErrNoSamples       = errors.New("audio must contain at least one sample")
	ErrTooManySamples  = errors.New("audio contains too many samples")
	ErrNonFiniteSample = errors.New("audio samples must be finite numbers")
	ErrSampleRange     = fmt.Errorf("audio samples must be between %g and %g", -MaxMagnitude, MaxMagnitude)
)

// Validate checks a sample array before scoring.
func Validate(samples []float64, maxSamples int) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	if maxSamples > 0 && len(samples) > maxSamples {
		return fmt.Errorf("%w: %d > %d", ErrTooManySamples, len(samples), maxSamples)
	}
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return ErrNonFiniteSample
		}
		if math.Abs(s) > MaxMagnitude {
			return ErrSampleRange
		}
	}
	return nil
}

// Fallback scores samples as max/100 clamped to [0,1]. An empty input
// scores zero.
func Fallback(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	peak := samples[0]
	for _, s := range samples[1:] {
		if s > peak {
			peak = s
		}
	}
	return Clamp(peak / 100)
}

// Clamp bounds a score to [0,1]; NaN becomes 0.
func Clamp(score float64) float64 {
	switch {
	case math.IsNaN(score) || score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// Analyze computes summary statistics of samples. Mean and variance are
// accumulated incrementally so large inputs cannot overflow a running sum.
func Analyze(samples []float64) model.AudioAnalysis {
	n := len(samples)
	if n == 0 {
		return model.AudioAnalysis{}
	}

	lo, hi := samples[0], samples[0]
	var mean, m2 float64
	for i, s := range samples {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
		d := s - mean
		mean += d / float64(i+1)
		m2 += d * (s - mean)
	}

	return model.AudioAnalysis{
		Count:           n,
		Mean:            mean,
		Max:             hi,
		Min:             lo,
		StdDev:          math.Sqrt(m2 / float64(n)),
		DurationSeconds: float64(n) / SampleRate,
	}
}

// IsHighRisk reports whether score reaches threshold.
func IsHighRisk(score, threshold float64) bool {
	return score >= threshold
}
