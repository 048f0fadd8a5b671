package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/errors"
	"interview-coach/pkg/metrics"
	"interview-coach/pkg/realtime"
	"interview-coach/pkg/scoring"
	"interview-coach/pkg/session"
	"interview-coach/pkg/stt"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	pingPeriod     = 60 * time.Second
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

// Client message types
const (
	MessageStart      = "start"
	MessageFrame      = "frame"
	MessageTranscript = "transcript"
	MessageSave       = "save"
	MessageSkip       = "skip"
	MessageEnd        = "end"
	MessageStatus     = "status"
)

// Server message types
const (
	MessageSession     = "session"
	MessageState       = "state"
	MessageLiveUpdate  = "live_update"
	MessageRoundResult = "round_result"
	MessageSummary     = "summary"
	MessageError       = "error"
)

// ClientMessage is a JSON text message sent by the browser
type ClientMessage struct {
	Type          string                    `json:"type"`
	InterviewType string                    `json:"interview_type,omitempty"`
	Questions     []session.Question        `json:"questions,omitempty"`
	Frame         *session.Frame            `json:"frame,omitempty"`
	Event         *realtime.TranscriptEvent `json:"event,omitempty"`
	Transcript    string                    `json:"transcript,omitempty"`
}

// ServerMessage is a JSON text message pushed to the browser
type ServerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

// ErrorPayload is the data of an error message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionWebSocketHandler binds one websocket connection to one session
type SessionWebSocketHandler struct {
	logger               *logrus.Logger
	sessions             *session.Manager
	sttManager           *stt.ProviderManager
	supervisorConfig     stt.SupervisorConfig
	defaultInterviewType string
	upgrader             websocket.Upgrader

	ctx context.Context

	mutex   sync.Mutex
	clients int
}

// NewSessionWebSocketHandler creates the handler. sttManager may be nil or empty,
// in which case binary audio is ignored and only client transcripts reach fluency.
func NewSessionWebSocketHandler(ctx context.Context, logger *logrus.Logger, sessions *session.Manager, sttManager *stt.ProviderManager, cfg *config.Config) *SessionWebSocketHandler {
	allowed := make(map[string]bool, len(cfg.HTTP.AllowedOrigins))
	for _, origin := range cfg.HTTP.AllowedOrigins {
		allowed[origin] = true
	}

	return &SessionWebSocketHandler{
		logger:               logger,
		sessions:             sessions,
		sttManager:           sttManager,
		supervisorConfig:     stt.SupervisorConfigFrom(&cfg.STT),
		defaultInterviewType: cfg.Session.DefaultInterviewType,
		ctx:                  ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// ClientCount returns the number of connected clients
func (h *SessionWebSocketHandler) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.clients
}

// TranscriptionProvider returns the provider used for websocket audio, or ""
func (h *SessionWebSocketHandler) TranscriptionProvider() string {
	if h.sttManager == nil {
		return ""
	}
	provider, err := h.sttManager.Resolve("")
	if err != nil {
		return ""
	}
	return provider.Name()
}

func (h *SessionWebSocketHandler) trackClient(delta int) {
	h.mutex.Lock()
	h.clients += delta
	count := h.clients
	h.mutex.Unlock()
	metrics.SetWebsocketClients(count)
}

// ServeHTTP upgrades the connection and runs the session until the client leaves
func (h *SessionWebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}

	client := &sessionClient{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: h.logger.WithField("remote_addr", r.RemoteAddr),
	}

	runner, err := h.sessions.CreateSession(client)
	if err != nil {
		h.logger.WithError(err).Warn("Rejected session websocket")
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(ServerMessage{Type: MessageError, Data: errorPayload(err)})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session capacity reached"))
		conn.Close()
		return
	}
	client.setSessionID(runner.ID())
	client.logger = client.logger.WithField("session_id", runner.ID())

	h.trackClient(1)
	defer h.trackClient(-1)

	var supervisor *stt.Supervisor
	if h.sttManager != nil {
		if provider, err := h.sttManager.Resolve(""); err == nil {
			supervisor = stt.NewSupervisor(provider, runner.ID(), runner.HandleTranscript, h.supervisorConfig, h.logger)
			supervisor.Start(h.ctx)
		}
	}

	go client.writePump()
	client.push(MessageSession, map[string]string{"session_id": runner.ID()})
	client.logger.Info("Session websocket connected")

	client.readPump(h, runner, supervisor)

	if supervisor != nil {
		supervisor.Stop()
	}
	h.sessions.Release(runner.ID())
	client.close()
	client.logger.Info("Session websocket disconnected")
}

// sessionClient is one websocket connection. It is also the session's UpdateSink.
type sessionClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *logrus.Entry

	mutex     sync.RWMutex
	sessionID string
	closeOnce sync.Once
}

func (c *sessionClient) setSessionID(id string) {
	c.mutex.Lock()
	c.sessionID = id
	c.mutex.Unlock()
}

func (c *sessionClient) id() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.sessionID
}

func (c *sessionClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// push queues a message without blocking. Messages are dropped when the
// client cannot keep up.
func (c *sessionClient) push(messageType string, data interface{}) {
	payload, err := json.Marshal(ServerMessage{Type: messageType, SessionID: c.id(), Data: data})
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal websocket message")
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- payload:
	default:
		c.logger.WithField("type", messageType).Debug("Websocket send buffer full, dropping message")
	}
}

func (c *sessionClient) pushError(err error) {
	c.push(MessageError, errorPayload(err))
}

func errorPayload(err error) ErrorPayload {
	code := errors.GetErrorCode(err)
	if code == "" {
		code = errors.CodeInternal
	}
	return ErrorPayload{Code: code, Message: err.Error()}
}

func (c *sessionClient) OnLiveUpdate(update session.LiveUpdate) {
	c.push(MessageLiveUpdate, update)
}

func (c *sessionClient) OnStateChange(status session.Status) {
	c.push(MessageState, status)
}

func (c *sessionClient) OnRoundResult(_ string, result scoring.RoundResult) {
	c.push(MessageRoundResult, result)
}

func (c *sessionClient) OnSummary(_ string, summary scoring.SessionSummary) {
	c.push(MessageSummary, summary)
}

// readPump dispatches client messages until the connection fails
func (c *sessionClient) readPump(h *SessionWebSocketHandler, runner *session.Runner, supervisor *stt.Supervisor) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("Session websocket closed unexpectedly")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType == websocket.BinaryMessage {
			if supervisor != nil && !supervisor.PushAudio(data) {
				c.logger.Debug("Audio queue full, dropping chunk")
			}
			continue
		}

		var message ClientMessage
		if err := json.Unmarshal(data, &message); err != nil {
			metrics.RecordMalformedInput("websocket")
			c.pushError(errors.NewMalformedInput("websocket", "message is not valid JSON"))
			continue
		}

		if err := c.dispatch(h, runner, message); err != nil {
			c.pushError(err)
		}
	}
}

func (c *sessionClient) dispatch(h *SessionWebSocketHandler, runner *session.Runner, message ClientMessage) error {
	switch message.Type {
	case MessageStart:
		interviewType := message.InterviewType
		if interviewType == "" {
			interviewType = h.defaultInterviewType
		}
		return runner.StartSession(interviewType, message.Questions)

	case MessageFrame:
		if message.Frame == nil {
			return errors.NewMalformedInput("websocket", "frame message without frame")
		}
		runner.SubmitFrame(*message.Frame)
		return nil

	case MessageTranscript:
		if message.Event == nil {
			return errors.NewMalformedInput("websocket", "transcript message without event")
		}
		runner.HandleTranscript(*message.Event)
		return nil

	case MessageSave:
		_, err := runner.SaveRound(message.Transcript)
		return err

	case MessageSkip:
		_, err := runner.SkipQuestion()
		return err

	case MessageEnd:
		_, err := runner.EndSession()
		return err

	case MessageStatus:
		status, err := runner.Status()
		if err != nil {
			return err
		}
		c.push(MessageState, status)
		return nil

	default:
		return errors.NewInvalidArgument("unknown message type", map[string]interface{}{"type": message.Type})
	}
}

// writePump pumps queued messages to the websocket connection
func (c *sessionClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
