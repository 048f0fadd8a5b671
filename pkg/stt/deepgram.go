package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/realtime"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Deepgram closes idle streams with 1011 when no audio arrives in time
const deepgramIdleCloseCode = websocket.CloseInternalServerErr

// DeepgramProvider streams PCM to the Deepgram live API over a websocket
type DeepgramProvider struct {
	logger *logrus.Logger
	config *config.DeepgramSTTConfig
	dialer *websocket.Dialer
}

// DeepgramStreamResponse is one message from the live API
type DeepgramStreamResponse struct {
	Type        string  `json:"type"`
	Duration    float64 `json:"duration"`
	Start       float64 `json:"start"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Metadata struct {
		RequestID string `json:"request_id"`
		ModelName string `json:"model_name"`
	} `json:"metadata"`
}

// NewDeepgramProvider creates a new Deepgram provider
func NewDeepgramProvider(logger *logrus.Logger, cfg *config.DeepgramSTTConfig) *DeepgramProvider {
	return &DeepgramProvider{
		logger: logger,
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Name returns the provider name
func (p *DeepgramProvider) Name() string {
	return "deepgram"
}

// Initialize validates the Deepgram configuration
func (p *DeepgramProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("Deepgram STT configuration is required")
	}
	if p.config.APIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is not set")
	}
	if p.config.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.config.SampleRate)
	}
	if _, err := url.Parse(p.config.APIURL); err != nil {
		return fmt.Errorf("invalid Deepgram URL: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"model":           p.config.Model,
		"language":        p.config.Language,
		"interim_results": p.config.InterimResults,
		"sample_rate":     p.config.SampleRate,
	}).Info("Deepgram provider initialized successfully")
	return nil
}

// buildQueryParams builds query parameters for the live API
func (p *DeepgramProvider) buildQueryParams() url.Values {
	query := url.Values{}
	query.Set("model", p.config.Model)
	query.Set("language", p.config.Language)
	query.Set("encoding", p.config.Encoding)
	query.Set("sample_rate", strconv.Itoa(p.config.SampleRate))
	query.Set("channels", strconv.Itoa(max(p.config.Channels, 1)))
	query.Set("punctuate", strconv.FormatBool(p.config.Punctuate))
	query.Set("interim_results", strconv.FormatBool(p.config.InterimResults))
	return query
}

// StreamToText pumps audio to Deepgram and forwards transcripts to sink
func (p *DeepgramProvider) StreamToText(ctx context.Context, audio io.Reader, sessionID string, sink TranscriptSink) error {
	logger := p.logger.WithFields(logrus.Fields{"session_id": sessionID, "provider": p.Name()})

	wsURL, err := url.Parse(p.config.APIURL)
	if err != nil {
		return fmt.Errorf("invalid Deepgram URL: %w", err)
	}
	wsURL.RawQuery = p.buildQueryParams().Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.config.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL.String(), headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("deepgram rejected credentials: status %d", resp.StatusCode)
		}
		return NewStreamFailure(p.Name(), ReasonNetwork, err)
	}
	defer conn.Close()

	logger.Debug("Deepgram websocket connected")

	readErr := make(chan error, 1)
	go func() {
		readErr <- p.readResults(conn, sink, logger)
	}()

	write := func(messageType int, data []byte) error {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteMessage(messageType, data)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- p.pumpAudio(audio, write)
	}()

	select {
	case err := <-readErr:
		return err
	case err := <-sendErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return nil
	}

	// audio exhausted, wait for Deepgram to flush and close
	select {
	case err := <-readErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// pumpAudio forwards audio as binary frames and sends CloseStream at EOF
func (p *DeepgramProvider) pumpAudio(audio io.Reader, write func(int, []byte) error) error {
	buffer := make([]byte, 4096)
	for {
		n, err := audio.Read(buffer)
		if n > 0 {
			if werr := write(websocket.BinaryMessage, buffer[:n]); werr != nil {
				return NewStreamFailure(p.Name(), ReasonNetwork, werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("audio stream read error: %w", err)
		}
	}

	closeMsg, _ := json.Marshal(map[string]string{"type": "CloseStream"})
	if err := write(websocket.TextMessage, closeMsg); err != nil {
		return NewStreamFailure(p.Name(), ReasonNetwork, err)
	}
	return nil
}

// readResults forwards transcripts until the connection closes
func (p *DeepgramProvider) readResults(conn *websocket.Conn, sink TranscriptSink, logger *logrus.Entry) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil
			case websocket.IsCloseError(err, deepgramIdleCloseCode):
				return NewStreamFailure(p.Name(), ReasonNoSpeech, err)
			case websocket.IsUnexpectedCloseError(err):
				return NewStreamFailure(p.Name(), ReasonAborted, err)
			default:
				return NewStreamFailure(p.Name(), ReasonNetwork, err)
			}
		}

		var response DeepgramStreamResponse
		if err := json.Unmarshal(message, &response); err != nil {
			logger.WithError(err).Debug("Failed to parse Deepgram message")
			continue
		}

		if response.Type != "Results" || len(response.Channel.Alternatives) == 0 {
			continue
		}

		transcript := strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			continue
		}

		logger.WithFields(logrus.Fields{
			"is_final":   response.IsFinal,
			"confidence": response.Channel.Alternatives[0].Confidence,
		}).Trace("Deepgram transcription result")

		if sink != nil {
			sink(realtime.TranscriptEvent{
				IsFinal:     response.IsFinal,
				Text:        transcript,
				TimestampMs: time.Now().UnixMilli(),
			})
		}
	}
}
