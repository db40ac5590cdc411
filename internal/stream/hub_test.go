package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

type received struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	PatientID string          `json:"patientId"`
}

func testConfig() Config {
	return Config{Interval: 20 * time.Millisecond, BatchSize: 5, Window: 100 * time.Millisecond}
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testConfig(), NewGenerator(1), metrics.NewMetrics("test"), zerolog.Nop())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, r.RemoteAddr)
	}))
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

func shutdown(t *testing.T, hub *Hub, srv *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	srv.Close()
}

func TestEmitsBatchesOnConnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, srv := startHub(t)
	defer shutdown(t, hub, srv)

	conn := dial(t, srv)
	defer conn.Close()

	msg := readUntil(t, conn, EventAudioData)
	var batch []float64
	require.NoError(t, json.Unmarshal(msg.Data, &batch))
	assert.Len(t, batch, 5)
	for _, v := range batch {
		assert.GreaterOrEqual(t, v, 25.0)
		assert.Less(t, v, 80.0)
	}
}

func TestStopCaptureHaltsEmission(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, srv := startHub(t)
	defer shutdown(t, hub, srv)

	conn := dial(t, srv)
	defer conn.Close()

	readUntil(t, conn, EventAudioData)
	sendEvent(t, conn, EventStopCapture, nil)

	status := readUntil(t, conn, EventCaptureStatus)
	var cs CaptureStatus
	require.NoError(t, json.Unmarshal(status.Data, &cs))
	assert.False(t, cs.Capturing)

	// ten intervals of silence
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var msg received
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "unexpected %s after stop-capture", msg.Event)
}

func TestStartCaptureTagsPatient(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, srv := startHub(t)
	defer shutdown(t, hub, srv)

	conn := dial(t, srv)
	defer conn.Close()

	patientID := uuid.NewString()
	sendEvent(t, conn, EventStartCapture, map[string]string{"patientId": patientID})

	status := readUntil(t, conn, EventCaptureStatus)
	var cs CaptureStatus
	require.NoError(t, json.Unmarshal(status.Data, &cs))
	assert.True(t, cs.Capturing)
	assert.Equal(t, patientID, cs.PatientID)

	data := readUntil(t, conn, EventAudioData)
	assert.Equal(t, patientID, data.PatientID)
}

func TestStartCaptureRejectsBadPatientID(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, srv := startHub(t)
	defer shutdown(t, hub, srv)

	conn := dial(t, srv)
	defer conn.Close()

	sendEvent(t, conn, EventStartCapture, map[string]string{"patientId": "not-an-id"})
	msg := readUntil(t, conn, EventError)
	assert.Contains(t, string(msg.Data), "invalid patientId")
}

func TestRequestWindowIsBounded(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, srv := startHub(t)
	defer shutdown(t, hub, srv)

	conn := dial(t, srv)
	defer conn.Close()

	// six batches of five overflow the 25-sample window
	for i := 0; i < 6; i++ {
		readUntil(t, conn, EventAudioData)
	}
	sendEvent(t, conn, EventRequestWindow, nil)

	msg := readUntil(t, conn, EventAudioWindow)
	var samples []float64
	require.NoError(t, json.Unmarshal(msg.Data, &samples))
	assert.Len(t, samples, testConfig().WindowCapacity())
}

func TestDisconnectReleasesSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, srv := startHub(t)
	defer shutdown(t, hub, srv)

	conn := dial(t, srv)
	readUntil(t, conn, EventAudioData)
	assert.Equal(t, 1, hub.Count())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesClients(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	hub, srv := startHub(t)

	conn := dial(t, srv)
	defer conn.Close()
	readUntil(t, conn, EventAudioData)

	shutdown(t, hub, srv)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, hub.Count())
}
