package stt

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"interview-coach/pkg/config"

	"github.com/sirupsen/logrus"
)

// ProviderFactory constructs a provider from the STT configuration
type ProviderFactory func(logger *logrus.Logger, cfg *config.STTConfig) (StreamingProvider, error)

var (
	providerFactoriesMu sync.RWMutex
	providerFactories   = make(map[string]ProviderFactory)
)

// RegisterProviderFactory registers a factory that can build a provider by name.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if trimmed == "" || factory == nil {
		return
	}

	providerFactoriesMu.Lock()
	defer providerFactoriesMu.Unlock()
	providerFactories[trimmed] = factory
}

// RegisteredProviders lists the names with a factory
func RegisteredProviders() []string {
	providerFactoriesMu.RLock()
	defer providerFactoriesMu.RUnlock()

	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRegisteredProvider instantiates a provider if a factory has been registered.
func BuildRegisteredProvider(name string, logger *logrus.Logger, cfg *config.STTConfig) (StreamingProvider, error) {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	providerFactoriesMu.RLock()
	factory, ok := providerFactories[trimmed]
	providerFactoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no factory registered for %s", ErrProviderNotFound, name)
	}
	return factory(logger, cfg)
}

// NewManagerFromConfig builds the provider manager for the configured provider.
// The "none" provider yields an empty manager.
func NewManagerFromConfig(logger *logrus.Logger, cfg *config.STTConfig) (*ProviderManager, error) {
	manager := NewProviderManager(logger, cfg.Provider)
	if cfg.Provider == "" || cfg.Provider == config.ProviderNone {
		logger.Info("Speech-to-text disabled, fluency will only see client transcripts")
		return manager, nil
	}

	provider, err := BuildRegisteredProvider(cfg.Provider, logger, cfg)
	if err != nil {
		return nil, err
	}
	if err := manager.RegisterProvider(provider); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitializationFailed, err)
	}
	return manager, nil
}

func init() {
	RegisterProviderFactory(config.ProviderMock, func(logger *logrus.Logger, _ *config.STTConfig) (StreamingProvider, error) {
		return NewMockProvider(logger), nil
	})
	RegisterProviderFactory(config.ProviderDeepgram, func(logger *logrus.Logger, cfg *config.STTConfig) (StreamingProvider, error) {
		return NewDeepgramProvider(logger, &cfg.Deepgram), nil
	})
	RegisterProviderFactory(config.ProviderGoogle, func(logger *logrus.Logger, cfg *config.STTConfig) (StreamingProvider, error) {
		return NewGoogleProvider(logger, &cfg.Google), nil
	})
	RegisterProviderFactory(config.ProviderAmazon, func(logger *logrus.Logger, cfg *config.STTConfig) (StreamingProvider, error) {
		return NewAmazonProvider(logger, &cfg.Amazon), nil
	})
}
