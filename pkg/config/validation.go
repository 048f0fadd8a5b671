package config

import (
	"fmt"
	"os"
	"strings"

	"interview-coach/pkg/errors"

	"github.com/sirupsen/logrus"
)

// Supported STT providers
const (
	ProviderNone     = "none"
	ProviderMock     = "mock"
	ProviderDeepgram = "deepgram"
	ProviderGoogle   = "google"
	ProviderAmazon   = "amazon"
)

var supportedProviders = []string{ProviderNone, ProviderMock, ProviderDeepgram, ProviderGoogle, ProviderAmazon}

// STTValidationResult represents the result of STT provider validation
type STTValidationResult struct {
	Provider string   `json:"provider"`
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// ValidateSTTConfig checks the selected provider has what it needs to stream
func ValidateSTTConfig(config *STTConfig) STTValidationResult {
	result := STTValidationResult{Provider: config.Provider, Valid: true}

	switch config.Provider {
	case ProviderNone, ProviderMock:
	case ProviderDeepgram:
		if config.Deepgram.APIKey == "" {
			result.Errors = append(result.Errors, "DEEPGRAM_API_KEY is required")
		}
		if !strings.HasPrefix(config.Deepgram.APIURL, "ws://") && !strings.HasPrefix(config.Deepgram.APIURL, "wss://") {
			result.Errors = append(result.Errors, "DEEPGRAM_API_URL must be a websocket URL")
		}
	case ProviderGoogle:
		if config.Google.CredentialsFile == "" && config.Google.APIKey == "" {
			result.Warnings = append(result.Warnings, "neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_STT_API_KEY is set, relying on ambient credentials")
		}
	case ProviderAmazon:
		if config.Amazon.AccessKeyID == "" || config.Amazon.SecretAccessKey == "" {
			result.Warnings = append(result.Warnings, "AWS credentials not set, relying on the default credential chain")
		}
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unknown provider %q, expected one of %s", config.Provider, strings.Join(supportedProviders, ", ")))
	}

	if config.RestartDelay <= 0 {
		result.Errors = append(result.Errors, "STT_RESTART_DELAY must be positive")
	}
	if config.NoSpeechRestartDelay <= 0 {
		result.Errors = append(result.Errors, "STT_NO_SPEECH_RESTART_DELAY must be positive")
	}
	if config.MaxRestarts < 0 {
		result.Errors = append(result.Errors, "STT_MAX_RESTARTS cannot be negative")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// validateConfig validates cross-section constraints
func validateConfig(logger *logrus.Logger, config *Config) error {
	if config.Session.TickInterval <= 0 {
		return errors.New("invalid SESSION_TICK_INTERVAL: must be a positive duration")
	}

	if config.Session.MaxConcurrentSessions < 0 {
		return errors.New("invalid MAX_CONCURRENT_SESSIONS: cannot be negative")
	}

	stt := ValidateSTTConfig(&config.STT)
	for _, warning := range stt.Warnings {
		logger.WithField("provider", stt.Provider).Warn(warning)
	}
	if !stt.Valid {
		return errors.New("invalid STT configuration", map[string]interface{}{
			"provider": stt.Provider,
			"errors":   stt.Errors,
		}).WithCode("INVALID_STT_CONFIG")
	}

	if config.Messaging.Enabled() && config.Messaging.ExchangeType != "topic" && config.Messaging.ExchangeType != "direct" && config.Messaging.ExchangeType != "fanout" {
		return errors.New(fmt.Sprintf("invalid AMQP_EXCHANGE_TYPE: %s", config.Messaging.ExchangeType))
	}

	if config.Logging.OutputFile != "" {
		f, err := os.OpenFile(config.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("cannot write to log file: %s", config.Logging.OutputFile))
		}
		f.Close()
	}

	return nil
}
