package stream

import (
	"math/rand"
	"sync"
	"time"
)

const (
	baseMin        = 25.0
	baseSpread     = 15.0
	abnormalChance = 0.1
	abnormalOffset = 20.0
	abnormalSpread = 20.0
)

// Generator produces synthetic chest-audio decibel samples. A sample is a
// base level in [25,40) dB; one in ten is abnormal and gets a further
// 20 + [0,20) dB on top.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Sample() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sample()
}

// Batch returns n fresh samples.
func (g *Generator) Batch(n int) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]float64, n)
	for i := range out {
		out[i] = g.sample()
	}
	return out
}

func (g *Generator) sample() float64 {
	v := baseMin + g.rng.Float64()*baseSpread
	if g.rng.Float64() < abnormalChance {
		v += abnormalOffset + g.rng.Float64()*abnormalSpread
	}
	return v
}
