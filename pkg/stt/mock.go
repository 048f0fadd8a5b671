package stt

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"interview-coach/pkg/realtime"

	"github.com/sirupsen/logrus"
)

var mockAnswers = []string{
	"In my last role I led the migration of our billing system.",
	"The biggest challenge was keeping the old and new ledgers consistent.",
	"We wrote reconciliation jobs that ran every night during the cutover.",
	"I learned to communicate risk early and in concrete numbers.",
	"Looking back I would have involved the support team sooner.",
}

// MockProvider emits scripted answers at a fixed interval. Failures queued
// with FailNext are returned by the next streams, one per stream.
type MockProvider struct {
	logger   *logrus.Logger
	interval time.Duration

	mutex    sync.Mutex
	failures []error
	streams  int
}

// NewMockProvider creates a new mock provider
func NewMockProvider(logger *logrus.Logger) *MockProvider {
	return &MockProvider{
		logger:   logger,
		interval: 2 * time.Second,
	}
}

// SetInterval changes the delay between scripted answers
func (p *MockProvider) SetInterval(interval time.Duration) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if interval > 0 {
		p.interval = interval
	}
}

// FailNext queues errors returned by upcoming streams
func (p *MockProvider) FailNext(errs ...error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.failures = append(p.failures, errs...)
}

// Streams returns how many times StreamToText has been called
func (p *MockProvider) Streams() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.streams
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "mock"
}

// Initialize initializes the mock provider
func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock STT provider initialized")
	return nil
}

// StreamToText discards audio and emits an interim then a final event per interval
func (p *MockProvider) StreamToText(ctx context.Context, audio io.Reader, sessionID string, sink TranscriptSink) error {
	p.mutex.Lock()
	p.streams++
	interval := p.interval
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		p.mutex.Unlock()
		return err
	}
	p.mutex.Unlock()

	logger := p.logger.WithField("session_id", sessionID)
	logger.Debug("Mock STT provider processing audio stream")

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		_, err := io.Copy(io.Discard, audio)
		if err != nil {
			logger.WithError(err).Debug("Mock STT audio stream closed with error")
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	index := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-streamDone:
			logger.Debug("Mock STT stream finished")
			return nil
		case <-ticker.C:
			answer := mockAnswers[index]
			index = (index + 1) % len(mockAnswers)

			if sink != nil {
				words := strings.Fields(answer)
				sink(realtime.TranscriptEvent{
					Text:        strings.Join(words[:len(words)/2], " "),
					TimestampMs: time.Now().UnixMilli(),
				})
				sink(realtime.TranscriptEvent{
					IsFinal:     true,
					Text:        answer,
					TimestampMs: time.Now().UnixMilli(),
				})
			}
		}
	}
}
