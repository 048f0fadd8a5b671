package stt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"interview-coach/pkg/config"
	"interview-coach/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	metrics.EnableMetrics(false)
}

// MockSttProvider implements StreamingProvider for testing
type MockSttProvider struct {
	mock.Mock
}

func (m *MockSttProvider) Initialize() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSttProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSttProvider) StreamToText(ctx context.Context, audio io.Reader, sessionID string, sink TranscriptSink) error {
	args := m.Called(ctx, audio, sessionID, sink)
	return args.Error(0)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewProviderManager(t *testing.T) {
	manager := NewProviderManager(quietLogger(), "test")

	assert.NotNil(t, manager)
	assert.Equal(t, "test", manager.defaultProvider)
	assert.Empty(t, manager.providers)
}

func TestRegisterProvider(t *testing.T) {
	manager := NewProviderManager(quietLogger(), "test")

	provider := new(MockSttProvider)
	provider.On("Initialize").Return(nil)
	provider.On("Name").Return("test")

	err := manager.RegisterProvider(provider)

	assert.NoError(t, err)
	assert.Equal(t, []string{"test"}, manager.Names())
	provider.AssertExpectations(t)
}

func TestRegisterProviderInitError(t *testing.T) {
	manager := NewProviderManager(quietLogger(), "test")

	provider := new(MockSttProvider)
	provider.On("Name").Return("test")
	provider.On("Initialize").Return(errors.New("initialization error"))

	err := manager.RegisterProvider(provider)

	assert.Error(t, err)
	assert.Empty(t, manager.providers, "No provider should be registered")
	provider.AssertExpectations(t)
}

func TestGetProvider(t *testing.T) {
	manager := NewProviderManager(quietLogger(), "test")

	provider := new(MockSttProvider)
	provider.On("Initialize").Return(nil)
	provider.On("Name").Return("test")
	require.NoError(t, manager.RegisterProvider(provider))

	p, exists := manager.GetProvider("test")
	assert.True(t, exists)
	assert.Equal(t, provider, p)

	p, exists = manager.GetProvider("nonexistent")
	assert.False(t, exists)
	assert.Nil(t, p)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	manager := NewProviderManager(quietLogger(), "default")

	provider := new(MockSttProvider)
	provider.On("Initialize").Return(nil)
	provider.On("Name").Return("default")
	require.NoError(t, manager.RegisterProvider(provider))

	p, err := manager.Resolve("nonexistent")
	require.NoError(t, err)
	assert.Equal(t, provider, p)

	empty := NewProviderManager(quietLogger(), "default")
	_, err = empty.Resolve("")
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestStreamToProvider(t *testing.T) {
	manager := NewProviderManager(quietLogger(), "default")

	defaultProvider := new(MockSttProvider)
	defaultProvider.On("Initialize").Return(nil)
	defaultProvider.On("Name").Return("default")

	specificProvider := new(MockSttProvider)
	specificProvider.On("Initialize").Return(nil)
	specificProvider.On("Name").Return("specific")

	require.NoError(t, manager.RegisterProvider(defaultProvider))
	require.NoError(t, manager.RegisterProvider(specificProvider))

	specificProvider.On("StreamToText", mock.Anything, mock.Anything, "session-1", mock.Anything).Return(nil)

	err := manager.StreamToProvider(context.Background(), "specific", bytes.NewReader([]byte("pcm")), "session-1", nil)

	assert.NoError(t, err)
	specificProvider.AssertExpectations(t)
	defaultProvider.AssertNotCalled(t, "StreamToText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStreamToProviderNoProviders(t *testing.T) {
	manager := NewProviderManager(quietLogger(), "default")

	err := manager.StreamToProvider(context.Background(), "nonexistent", bytes.NewReader(nil), "session-1", nil)

	assert.Equal(t, ErrNoProviderAvailable, err)
}

func TestNewManagerFromConfig(t *testing.T) {
	t.Run("none yields empty manager", func(t *testing.T) {
		manager, err := NewManagerFromConfig(quietLogger(), &config.STTConfig{Provider: config.ProviderNone})
		require.NoError(t, err)
		assert.Empty(t, manager.Names())
	})

	t.Run("mock provider is registered", func(t *testing.T) {
		manager, err := NewManagerFromConfig(quietLogger(), &config.STTConfig{Provider: config.ProviderMock})
		require.NoError(t, err)

		provider, err := manager.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "mock", provider.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewManagerFromConfig(quietLogger(), &config.STTConfig{Provider: "carrier-pigeon"})
		assert.ErrorIs(t, err, ErrProviderNotFound)
	})

	t.Run("deepgram without key fails initialization", func(t *testing.T) {
		_, err := NewManagerFromConfig(quietLogger(), &config.STTConfig{
			Provider: config.ProviderDeepgram,
			Deepgram: config.DeepgramSTTConfig{SampleRate: 16000},
		})
		assert.ErrorIs(t, err, ErrInitializationFailed)
	})
}

func TestRegisteredProviders(t *testing.T) {
	names := RegisteredProviders()

	assert.Contains(t, names, config.ProviderMock)
	assert.Contains(t, names, config.ProviderDeepgram)
	assert.Contains(t, names, config.ProviderGoogle)
	assert.Contains(t, names, config.ProviderAmazon)
}
