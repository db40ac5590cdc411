package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowKeepsMostRecent(t *testing.T) {
	w := NewWindow(4)
	w.Append(1, 2, 3)
	assert.Equal(t, []float64{1, 2, 3}, w.Snapshot())

	w.Append(4, 5, 6)
	assert.Equal(t, []float64{3, 4, 5, 6}, w.Snapshot())
	assert.Equal(t, 4, w.Len())

	w.Reset()
	assert.Empty(t, w.Snapshot())
	w.Append(7)
	assert.Equal(t, []float64{7}, w.Snapshot())
}

func TestWindowCapacityCoversSixtySeconds(t *testing.T) {
	cfg := Config{Interval: time.Second, BatchSize: 5, Window: time.Minute}
	assert.Equal(t, 300, cfg.WindowCapacity())
}

func TestGeneratorRanges(t *testing.T) {
	g := NewGenerator(7)
	abnormal := 0
	const n = 20000
	for i := 0; i < n; i++ {
		v := g.Sample()
		assert.GreaterOrEqual(t, v, 25.0)
		assert.Less(t, v, 80.0)
		if v >= 45 {
			abnormal++
		}
		if v >= 40 {
			assert.GreaterOrEqual(t, v, 45.0, "no sample falls between the base and abnormal bands")
		}
	}
	rate := float64(abnormal) / n
	assert.InDelta(t, 0.1, rate, 0.02)
	assert.Len(t, g.Batch(5), 5)
}
