package stream

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

// Hub owns every live session so they can be counted and shut down
// together.
type Hub struct {
	cfg     Config
	gen     *Generator
	metrics *metrics.Metrics
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewHub(cfg Config, gen *Generator, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if gen == nil {
		gen = NewGenerator(0)
	}
	return &Hub{
		cfg:      cfg.withDefaults(),
		gen:      gen,
		metrics:  m,
		logger:   logger.With().Str("component", "stream").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[*Session]struct{}),
	}
}

// Serve runs a session for conn and blocks until it ends.
func (h *Hub) Serve(conn *websocket.Conn, remote string) {
	logger := h.logger.With().Str("remote", remote).Logger()
	s := NewSession(conn, h.cfg, h.gen, h.metrics, logger)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamConnections.Inc()
	}
	logger.Info().Msg("Stream client connected")

	defer func() {
		h.mu.Lock()
		delete(h.sessions, s)
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.StreamConnections.Dec()
		}
		logger.Info().Msg("Stream client disconnected")
		h.wg.Done()
	}()

	s.Run(h.ctx)
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every session and waits for them, or for ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
