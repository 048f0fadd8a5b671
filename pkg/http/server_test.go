package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/errors"
	"interview-coach/pkg/metrics"
	"interview-coach/pkg/realtime"
	"interview-coach/pkg/session"
	"interview-coach/pkg/stt"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	metrics.EnableMetrics(false)
}

type testEnv struct {
	server   *httptest.Server
	sessions *session.Manager
	handler  *SessionWebSocketHandler
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T, maxSessions int, sttManager *stt.ProviderManager) *testEnv {
	t.Helper()
	logger := quietLogger()

	sessions := session.NewManager(session.ManagerConfig{
		MaxSessions:     maxSessions,
		CleanupInterval: time.Hour,
		// rounds never time out on their own
		Runner: session.RunnerConfig{Ticks: make(chan time.Time)},
	}, logger)
	t.Cleanup(sessions.Shutdown)

	cfg := &config.Config{
		HTTP:    config.HTTPConfig{EnableMetrics: false},
		Session: config.SessionConfig{DefaultInterviewType: "general"},
		STT:     config.STTConfig{RestartDelay: 10 * time.Millisecond},
	}

	server := NewServer(logger, &cfg.HTTP, sessions)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	handler := NewSessionWebSocketHandler(ctx, logger, sessions, sttManager, cfg)
	server.SetSessionWebSocketHandler(handler)

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return &testEnv{server: httpServer, sessions: sessions, handler: handler}
}

func (e *testEnv) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := readMessage(t, conn)
	require.Equal(t, MessageSession, hello.Type)
	require.NotEmpty(t, hello.SessionID)
	return conn, hello.SessionID
}

type rawServerMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) rawServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message rawServerMessage
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

// readUntil reads messages until one of type wanted arrives
func readUntil(t *testing.T, conn *websocket.Conn, wanted string) rawServerMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		message := readMessage(t, conn)
		if message.Type == wanted {
			return message
		}
	}
	t.Fatalf("no %s message received", wanted)
	return rawServerMessage{}
}

func sendJSON(t *testing.T, conn *websocket.Conn, message interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(message))
}

func startMessage(questions ...string) ClientMessage {
	message := ClientMessage{Type: MessageStart, InterviewType: "behavioral"}
	for _, text := range questions {
		message.Questions = append(message.Questions, session.Question{Text: text, TimeLimitSeconds: 90})
	}
	return message
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, 0, nil)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Server"), "interview-coach/")

	var health HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disabled", health.Checks["stt"].Status)
	assert.Equal(t, 0, health.System.ActiveSessions)
}

func TestReadinessAtCapacity(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	env.dial(t)

	resp, err := http.Get(env.server.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSummaryEndpointUnknownSession(t *testing.T) {
	env := newTestEnv(t, 0, nil)

	resp, err := http.Get(env.server.URL + "/api/sessions/does-not-exist/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketSessionFlow(t *testing.T) {
	env := newTestEnv(t, 0, nil)
	conn, sessionID := env.dial(t)

	sendJSON(t, conn, startMessage("Tell me about a conflict you resolved."))
	state := readUntil(t, conn, MessageState)
	var status session.Status
	require.NoError(t, json.Unmarshal(state.Data, &status))
	assert.Equal(t, session.StateRunning, status.State)
	assert.Equal(t, "Tell me about a conflict you resolved.", status.Question.Text)

	sendJSON(t, conn, ClientMessage{Type: MessageTranscript, Event: &realtime.TranscriptEvent{IsFinal: true, Text: "We agreed on a plan"}})
	sendJSON(t, conn, ClientMessage{Type: MessageFrame, Frame: &session.Frame{Volume: 40, VolumeActive: true}})

	live := readUntil(t, conn, MessageLiveUpdate)
	var update session.LiveUpdate
	require.NoError(t, json.Unmarshal(live.Data, &update))
	assert.NotNil(t, update.Score)
	assert.Equal(t, "We agreed on a plan", update.Transcript)

	// saving is only valid once the round is under review
	sendJSON(t, conn, ClientMessage{Type: MessageSave, Transcript: "draft"})
	errMessage := readUntil(t, conn, MessageError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(errMessage.Data, &payload))
	assert.Equal(t, errors.CodeInvalidArgument, payload.Code)

	sendJSON(t, conn, ClientMessage{Type: MessageSkip})
	readUntil(t, conn, MessageRoundResult)
	summary := readUntil(t, conn, MessageSummary)
	assert.Equal(t, sessionID, summary.SessionID)

	resp, err := http.Get(env.server.URL + "/api/sessions/" + sessionID + "/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketRejectsUnknownMessages(t *testing.T) {
	env := newTestEnv(t, 0, nil)
	conn, _ := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	malformed := readUntil(t, conn, MessageError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(malformed.Data, &payload))
	assert.Equal(t, errors.CodeMalformedInput, payload.Code)

	sendJSON(t, conn, ClientMessage{Type: "dance"})
	unknown := readUntil(t, conn, MessageError)
	require.NoError(t, json.Unmarshal(unknown.Data, &payload))
	assert.Equal(t, errors.CodeInvalidArgument, payload.Code)

	// the connection stays usable after errors
	sendJSON(t, conn, ClientMessage{Type: MessageStatus})
	state := readUntil(t, conn, MessageState)
	var status session.Status
	require.NoError(t, json.Unmarshal(state.Data, &status))
	assert.Equal(t, session.StateIdle, status.State)
}

func TestWebSocketCapacity(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	env.dial(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	rejected := readMessage(t, conn)
	assert.Equal(t, MessageError, rejected.Type)
}

func TestDisconnectReleasesLiveSession(t *testing.T) {
	env := newTestEnv(t, 0, nil)
	conn, sessionID := env.dial(t)

	assert.Eventually(t, func() bool { return env.handler.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()

	assert.Eventually(t, func() bool {
		_, err := env.sessions.GetSession(sessionID)
		return errors.IsNotFound(err)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return env.handler.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketAudioReachesFluency(t *testing.T) {
	mock := stt.NewMockProvider(quietLogger())
	mock.SetInterval(5 * time.Millisecond)
	sttManager := stt.NewProviderManager(quietLogger(), "mock")
	require.NoError(t, sttManager.RegisterProvider(mock))

	env := newTestEnv(t, 0, sttManager)
	conn, _ := env.dial(t)

	sendJSON(t, conn, startMessage("Why do you want this role?"))
	readUntil(t, conn, MessageState)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 640)))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sendJSON(t, conn, ClientMessage{Type: MessageFrame, Frame: &session.Frame{}})
		live := readUntil(t, conn, MessageLiveUpdate)
		var update session.LiveUpdate
		require.NoError(t, json.Unmarshal(live.Data, &update))
		if update.Fluency.WordCount > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("mock transcription never reached the session")
}
