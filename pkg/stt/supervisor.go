package stt

import (
	"context"
	"io"
	"sync"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/metrics"
	"interview-coach/pkg/realtime"

	"github.com/sirupsen/logrus"
)

const defaultAudioQueue = 256

// SupervisorConfig controls restart behaviour
type SupervisorConfig struct {
	RestartDelay         time.Duration
	NoSpeechRestartDelay time.Duration
	// MaxRestarts of zero restarts forever
	MaxRestarts int
	AudioQueue  int
}

// SupervisorConfigFrom copies the restart settings out of the STT configuration
func SupervisorConfigFrom(cfg *config.STTConfig) SupervisorConfig {
	return SupervisorConfig{
		RestartDelay:         cfg.RestartDelay,
		NoSpeechRestartDelay: cfg.NoSpeechRestartDelay,
		MaxRestarts:          cfg.MaxRestarts,
	}
}

// Supervisor keeps one session's transcription stream alive. Recoverable
// failures restart the provider after a fixed delay; the transcript sink
// (and so the fluency counts behind it) survives every restart.
type Supervisor struct {
	logger    *logrus.Entry
	provider  StreamingProvider
	sessionID string
	sink      TranscriptSink
	config    SupervisorConfig
	after     func(time.Duration) <-chan time.Time

	audio chan []byte

	mutex     sync.Mutex
	restarts  int
	degraded  bool
	cancel    context.CancelFunc
	startOnce sync.Once
	done      chan struct{}
}

// NewSupervisor creates a supervisor feeding sink from provider
func NewSupervisor(provider StreamingProvider, sessionID string, sink TranscriptSink, cfg SupervisorConfig, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Second
	}
	if cfg.NoSpeechRestartDelay <= 0 {
		cfg.NoSpeechRestartDelay = 100 * time.Millisecond
	}
	if cfg.AudioQueue <= 0 {
		cfg.AudioQueue = defaultAudioQueue
	}

	return &Supervisor{
		logger: logger.WithFields(logrus.Fields{
			"component":  "stt-supervisor",
			"provider":   provider.Name(),
			"session_id": sessionID,
		}),
		provider:  provider,
		sessionID: sessionID,
		sink:      sink,
		config:    cfg,
		after:     time.After,
		audio:     make(chan []byte, cfg.AudioQueue),
		done:      make(chan struct{}),
	}
}

// Start runs the stream loop until ctx is cancelled or Stop is called.
// Only the first call has any effect.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.mutex.Lock()
		s.cancel = cancel
		s.mutex.Unlock()

		go s.run(ctx)
	})
}

// Stop ends streaming permanently and waits for the loop to exit
func (s *Supervisor) Stop() {
	s.mutex.Lock()
	cancel := s.cancel
	s.mutex.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// PushAudio queues a PCM chunk. Chunks are dropped when the queue is full.
func (s *Supervisor) PushAudio(pcm []byte) bool {
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)

	select {
	case s.audio <- chunk:
		return true
	default:
		return false
	}
}

// Restarts returns how many times the stream has been restarted
func (s *Supervisor) Restarts() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.restarts
}

// Degraded reports whether the supervisor has given up on the provider
func (s *Supervisor) Degraded() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.degraded
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	sink := func(event realtime.TranscriptEvent) {
		metrics.RecordSTTEvent(s.provider.Name(), event.IsFinal)
		if s.sink != nil {
			s.sink(event)
		}
	}

	for {
		streamCtx, cancel := context.WithCancel(ctx)
		reader := &audioReader{ctx: streamCtx, chunks: s.audio}
		err := s.provider.StreamToText(streamCtx, reader, s.sessionID, sink)
		cancel()

		if ctx.Err() != nil {
			s.logger.Debug("Transcription supervisor stopped")
			return
		}

		reason := ClassifyFailure(err)
		if !reason.Recoverable() {
			s.markDegraded()
			s.logger.WithError(err).Error("Transcription stream failed permanently")
			return
		}

		s.mutex.Lock()
		if s.config.MaxRestarts > 0 && s.restarts >= s.config.MaxRestarts {
			s.degraded = true
			s.mutex.Unlock()
			s.logger.WithField("restarts", s.config.MaxRestarts).Warn("Transcription restart budget exhausted, keeping last fluency values")
			return
		}
		s.restarts++
		s.mutex.Unlock()

		delay := s.config.RestartDelay
		if reason == ReasonNoSpeech {
			delay = s.config.NoSpeechRestartDelay
		}

		metrics.RecordSTTRestart(s.provider.Name(), string(reason))
		s.logger.WithFields(logrus.Fields{
			"reason": reason,
			"delay":  delay,
			"error":  err,
		}).Warn("Transcription stream interrupted, restarting")

		select {
		case <-ctx.Done():
			return
		case <-s.after(delay):
		}
	}
}

func (s *Supervisor) markDegraded() {
	s.mutex.Lock()
	s.degraded = true
	s.mutex.Unlock()
}

// audioReader adapts the supervisor's chunk queue to io.Reader for one stream
type audioReader struct {
	ctx     context.Context
	chunks  <-chan []byte
	pending []byte
}

func (r *audioReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case chunk := <-r.chunks:
			r.pending = chunk
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
