package stream

import "sync"

// Window keeps the most recent samples up to a fixed capacity, dropping
// the oldest first.
type Window struct {
	mu    sync.Mutex
	buf   []float64
	start int
	size  int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

func (w *Window) Append(samples ...float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range samples {
		if w.size < len(w.buf) {
			w.buf[(w.start+w.size)%len(w.buf)] = s
			w.size++
			continue
		}
		w.buf[w.start] = s
		w.start = (w.start + 1) % len(w.buf)
	}
}

// Snapshot returns the buffered samples oldest first.
func (w *Window) Snapshot() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *Window) Cap() int {
	return len(w.buf)
}

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.start, w.size = 0, 0
}
