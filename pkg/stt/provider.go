package stt

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"interview-coach/pkg/realtime"

	"github.com/sirupsen/logrus"
)

// TranscriptSink receives transcription events as the provider produces them
type TranscriptSink func(event realtime.TranscriptEvent)

// StreamingProvider defines the interface for streaming speech-to-text providers
type StreamingProvider interface {
	// Initialize prepares clients and credentials
	Initialize() error

	// Name returns the provider name
	Name() string

	// StreamToText streams audio until it is exhausted, ctx is cancelled or the
	// remote side fails. Recoverable failures are returned via NewStreamFailure.
	StreamToText(ctx context.Context, audio io.Reader, sessionID string, sink TranscriptSink) error
}

// ProviderManager manages all speech-to-text providers
type ProviderManager struct {
	logger          *logrus.Logger
	mutex           sync.RWMutex
	providers       map[string]StreamingProvider
	defaultProvider string
}

// NewProviderManager creates a new provider manager
func NewProviderManager(logger *logrus.Logger, defaultProvider string) *ProviderManager {
	return &ProviderManager{
		logger:          logger,
		providers:       make(map[string]StreamingProvider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider initializes and registers a speech-to-text provider
func (m *ProviderManager) RegisterProvider(provider StreamingProvider) error {
	if err := provider.Initialize(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"error":    err,
		}).Error("Failed to initialize speech-to-text provider")
		return err
	}

	m.mutex.Lock()
	m.providers[provider.Name()] = provider
	m.mutex.Unlock()

	m.logger.WithField("provider", provider.Name()).Info("Registered speech-to-text provider")
	return nil
}

// GetProvider returns a provider by name
func (m *ProviderManager) GetProvider(name string) (StreamingProvider, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	provider, exists := m.providers[name]
	return provider, exists
}

// GetDefaultProvider returns the default provider
func (m *ProviderManager) GetDefaultProvider() (StreamingProvider, bool) {
	return m.GetProvider(m.defaultProvider)
}

// Resolve returns the named provider, falling back to the default
func (m *ProviderManager) Resolve(name string) (StreamingProvider, error) {
	if name != "" {
		if provider, exists := m.GetProvider(name); exists {
			return provider, nil
		}
		m.logger.WithFields(logrus.Fields{
			"provider":         name,
			"default_provider": m.defaultProvider,
		}).Warn("Provider not found, falling back to default")
	}

	provider, exists := m.GetDefaultProvider()
	if !exists {
		return nil, ErrNoProviderAvailable
	}
	return provider, nil
}

// Names lists the registered providers
func (m *ProviderManager) Names() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StreamToProvider streams audio to the named provider once, without restarts
func (m *ProviderManager) StreamToProvider(ctx context.Context, providerName string, audio io.Reader, sessionID string, sink TranscriptSink) error {
	startTime := time.Now()

	provider, err := m.Resolve(providerName)
	if err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"provider":   provider.Name(),
	}).Info("Starting transcription")

	err = provider.StreamToText(ctx, audio, sessionID, sink)

	m.logger.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"provider":    provider.Name(),
		"duration_ms": time.Since(startTime).Milliseconds(),
		"error":       err != nil,
	}).Info("Transcription completed")

	return err
}
