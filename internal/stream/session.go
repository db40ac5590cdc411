package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

// Client to server events.
const (
	EventStartCapture  = "start-capture"
	EventStopCapture   = "stop-capture"
	EventRequestWindow = "request-window"
)

// Server to client events.
const (
	EventAudioData     = "audio-data"
	EventAudioWindow   = "audio-window"
	EventCaptureStatus = "capture-status"
	EventError         = "error"
)

const maxInboundBytes = 4096

// Message is the JSON envelope exchanged over the socket.
type Message struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	PatientID string      `json:"patientId,omitempty"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type captureRequest struct {
	PatientID string `json:"patientId"`
}

// CaptureStatus acknowledges start-capture and stop-capture.
type CaptureStatus struct {
	Capturing bool   `json:"capturing"`
	PatientID string `json:"patientId,omitempty"`
}

type Config struct {
	Interval   time.Duration
	BatchSize  int
	Window     time.Duration
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.Window < c.Interval {
		c.Window = time.Minute
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	return c
}

// WindowCapacity is the number of samples covering the configured window.
func (c Config) WindowCapacity() int {
	c = c.withDefaults()
	return int(c.Window/c.Interval) * c.BatchSize
}

// Session drives one websocket connection. The reader runs on the
// caller's goroutine, a single writer goroutine owns all writes and at
// most one emitter goroutine produces audio batches.
type Session struct {
	conn    *websocket.Conn
	cfg     Config
	gen     *Generator
	window  *Window
	metrics *metrics.Metrics
	logger  zerolog.Logger
	out     chan Message

	mu         sync.Mutex
	emitCancel context.CancelFunc
	emitDone   chan struct{}
	patientID  string
}

func NewSession(conn *websocket.Conn, cfg Config, gen *Generator, m *metrics.Metrics, logger zerolog.Logger) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		conn:    conn,
		cfg:     cfg,
		gen:     gen,
		window:  NewWindow(cfg.WindowCapacity()),
		metrics: m,
		logger:  logger,
		out:     make(chan Message, 16),
	}
}

// Run blocks until the client disconnects or ctx is cancelled. Every
// goroutine it started has exited when it returns.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, cancel)
	}()

	s.startEmitter(ctx, "")
	s.readLoop(ctx)

	s.stopEmitter()
	cancel()
	wg.Wait()
}

func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxInboundBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("Stream client went away")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.send(ctx, errorMessage("malformed message"))
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *Session) handle(ctx context.Context, msg inbound) {
	switch msg.Event {
	case EventStartCapture:
		var req captureRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				s.send(ctx, errorMessage("start-capture expects {\"patientId\": string}"))
				return
			}
		}
		if _, err := uuid.Parse(req.PatientID); err != nil {
			s.send(ctx, errorMessage("invalid patientId"))
			return
		}
		s.stopEmitter()
		s.window.Reset()
		s.startEmitter(ctx, req.PatientID)
		s.send(ctx, Message{Event: EventCaptureStatus, Data: CaptureStatus{Capturing: true, PatientID: req.PatientID}})

	case EventStopCapture:
		patientID := s.stopEmitter()
		s.send(ctx, Message{Event: EventCaptureStatus, Data: CaptureStatus{Capturing: false, PatientID: patientID}})

	case EventRequestWindow:
		s.mu.Lock()
		patientID := s.patientID
		s.mu.Unlock()
		s.send(ctx, Message{Event: EventAudioWindow, Data: s.window.Snapshot(), PatientID: patientID})

	default:
		s.send(ctx, errorMessage("unknown event: "+msg.Event))
	}
}

// startEmitter replaces any running emitter with one tagged patientID.
func (s *Session) startEmitter(ctx context.Context, patientID string) {
	s.stopEmitter()

	emitCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.emitCancel = cancel
	s.emitDone = done
	s.patientID = patientID
	s.mu.Unlock()

	go s.emit(emitCtx, patientID, done)
}

// stopEmitter cancels the emitter and waits for it to exit. It returns the
// patient id the stopped stream was tagged with.
func (s *Session) stopEmitter() string {
	s.mu.Lock()
	cancel, done, patientID := s.emitCancel, s.emitDone, s.patientID
	s.emitCancel, s.emitDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return patientID
}

func (s *Session) emit(ctx context.Context, patientID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := s.gen.Batch(s.cfg.BatchSize)
			s.window.Append(batch...)
			select {
			case s.out <- Message{Event: EventAudioData, Data: batch, PatientID: patientID}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Session) send(ctx context.Context, msg Message) {
	select {
	case s.out <- msg:
	case <-ctx.Done():
	}
}

func (s *Session) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	ping := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ping.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.cfg.WriteWait))
			return

		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Debug().Err(err).Msg("Stream write failed")
				cancel()
				return
			}
			if msg.Event == EventAudioData && s.metrics != nil {
				s.metrics.StreamBatches.Inc()
			}

		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				cancel()
				return
			}
		}
	}
}

func errorMessage(text string) Message {
	return Message{Event: EventError, Data: map[string]string{"message": text}}
}
