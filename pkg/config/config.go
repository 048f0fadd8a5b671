package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"interview-coach/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Session   SessionConfig   `json:"session"`
	STT       STTConfig       `json:"stt"`
	Messaging MessagingConfig `json:"messaging"`
	Logging   LoggingConfig   `json:"logging"`
}

// HTTPConfig holds the HTTP and websocket listener configuration
type HTTPConfig struct {
	// Address to bind to, empty for all interfaces
	ListenAddr string `json:"listen_addr" env:"HTTP_LISTEN_ADDR"`

	Port int `json:"port" env:"HTTP_PORT" default:"8080"`

	EnableMetrics bool `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`

	ReadTimeout  time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`

	// Origins accepted on the websocket upgrade, empty accepts any
	AllowedOrigins []string `json:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS"`
}

// SessionConfig holds the session engine runtime configuration
type SessionConfig struct {
	// Interval of the round timer; one tick advances elapsed time by one second
	TickInterval time.Duration `json:"tick_interval" env:"SESSION_TICK_INTERVAL" default:"1s"`

	// Buffered frames per runner before new frames are dropped
	FrameBufferSize int `json:"frame_buffer_size" env:"SESSION_FRAME_BUFFER" default:"64"`

	// Maximum number of live sessions, 0 means unlimited
	MaxConcurrentSessions int `json:"max_concurrent_sessions" env:"MAX_CONCURRENT_SESSIONS" default:"100"`

	// Ended sessions stay queryable for this long
	SummaryRetention time.Duration `json:"summary_retention" env:"SESSION_SUMMARY_RETENTION" default:"30m"`

	DefaultInterviewType string `json:"default_interview_type" env:"SESSION_DEFAULT_TYPE" default:"general"`
}

// STTConfig holds the speech-to-text provider configuration
type STTConfig struct {
	// Provider used for websocket audio: deepgram, google, amazon, mock or none
	Provider string `json:"provider" env:"STT_PROVIDER" default:"none"`

	// Fixed delay before restarting an interrupted stream
	RestartDelay time.Duration `json:"restart_delay" env:"STT_RESTART_DELAY" default:"1s"`

	// Delay before restarting after a no-speech timeout
	NoSpeechRestartDelay time.Duration `json:"no_speech_restart_delay" env:"STT_NO_SPEECH_RESTART_DELAY" default:"100ms"`

	// Restarts allowed per session, 0 means unlimited
	MaxRestarts int `json:"max_restarts" env:"STT_MAX_RESTARTS" default:"0"`

	Deepgram DeepgramSTTConfig `json:"deepgram"`
	Google   GoogleSTTConfig   `json:"google"`
	Amazon   AmazonSTTConfig   `json:"amazon"`
}

// DeepgramSTTConfig holds Deepgram live streaming configuration
type DeepgramSTTConfig struct {
	APIKey         string `json:"api_key" env:"DEEPGRAM_API_KEY"`
	APIURL         string `json:"api_url" env:"DEEPGRAM_API_URL" default:"wss://api.deepgram.com/v1/listen"`
	Model          string `json:"model" env:"DEEPGRAM_MODEL" default:"nova-2"`
	Language       string `json:"language" env:"DEEPGRAM_LANGUAGE" default:"en-US"`
	Encoding       string `json:"encoding" env:"DEEPGRAM_ENCODING" default:"linear16"`
	SampleRate     int    `json:"sample_rate" env:"DEEPGRAM_SAMPLE_RATE" default:"16000"`
	Channels       int    `json:"channels" env:"DEEPGRAM_CHANNELS" default:"1"`
	InterimResults bool   `json:"interim_results" env:"DEEPGRAM_INTERIM_RESULTS" default:"true"`
	Punctuate      bool   `json:"punctuate" env:"DEEPGRAM_PUNCTUATE" default:"true"`
}

// GoogleSTTConfig holds Google Cloud Speech streaming configuration
type GoogleSTTConfig struct {
	CredentialsFile string `json:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	APIKey          string `json:"api_key" env:"GOOGLE_STT_API_KEY"`
	Language        string `json:"language" env:"GOOGLE_STT_LANGUAGE" default:"en-US"`
	SampleRate      int    `json:"sample_rate" env:"GOOGLE_STT_SAMPLE_RATE" default:"16000"`
	Model           string `json:"model" env:"GOOGLE_STT_MODEL" default:"latest_long"`

	EnableAutomaticPunctuation bool `json:"enable_automatic_punctuation" env:"GOOGLE_STT_AUTO_PUNCTUATION" default:"true"`
}

// AmazonSTTConfig holds Amazon Transcribe streaming configuration
type AmazonSTTConfig struct {
	AccessKeyID     string `json:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `json:"region" env:"AWS_REGION" default:"us-east-1"`
	Language        string `json:"language" env:"AMAZON_STT_LANGUAGE" default:"en-US"`
	SampleRate      int    `json:"sample_rate" env:"AMAZON_STT_SAMPLE_RATE" default:"16000"`
	VocabularyName  string `json:"vocabulary_name" env:"AMAZON_STT_VOCABULARY"`
}

// MessagingConfig holds the AMQP result fan-out configuration
type MessagingConfig struct {
	AMQPUrl string `json:"amqp_url" env:"AMQP_URL"`

	ExchangeName string `json:"exchange_name" env:"AMQP_EXCHANGE_NAME" default:"interview"`
	ExchangeType string `json:"exchange_type" env:"AMQP_EXCHANGE_TYPE" default:"topic"`

	RoundRoutingKey   string `json:"round_routing_key" env:"AMQP_ROUND_ROUTING_KEY" default:"interview.round"`
	SummaryRoutingKey string `json:"summary_routing_key" env:"AMQP_SUMMARY_ROUTING_KEY" default:"interview.summary"`

	ConnectTimeout time.Duration `json:"connect_timeout" env:"AMQP_CONNECT_TIMEOUT" default:"10s"`
}

// Enabled reports whether results should be published
func (m MessagingConfig) Enabled() bool {
	return m.AMQPUrl != ""
}

// LoggingConfig holds the logging configuration
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"LOG_FORMAT" default:"json"`
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// Load loads the configuration from .env and environment variables
func Load(logger *logrus.Logger) (*Config, error) {
	loadEnvFile(logger)

	config := &Config{}

	if err := loadHTTPConfig(logger, &config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}

	if err := loadSessionConfig(logger, &config.Session); err != nil {
		return nil, errors.Wrap(err, "failed to load session configuration")
	}

	if err := loadSTTConfig(logger, &config.STT); err != nil {
		return nil, errors.Wrap(err, "failed to load STT configuration")
	}

	if err := loadMessagingConfig(logger, &config.Messaging); err != nil {
		return nil, errors.Wrap(err, "failed to load messaging configuration")
	}

	if err := loadLoggingConfig(logger, &config.Logging); err != nil {
		return nil, errors.Wrap(err, "failed to load logging configuration")
	}

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return config, nil
}

func loadEnvFile(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		absPath, _ := filepath.Abs(envFile)
		logger.WithField("path", absPath).Debug("Attempting to load .env file")
		if loadErr := godotenv.Load(envFile); loadErr == nil {
			loadedFrom = absPath
			break
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) error {
	config.ListenAddr = getEnv("HTTP_LISTEN_ADDR", "")

	config.Port = getEnvInt("HTTP_PORT", 8080)
	if config.Port < 1 || config.Port > 65535 {
		logger.Warn("Invalid HTTP_PORT value, using default: 8080")
		config.Port = 8080
	}

	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	config.AllowedOrigins = splitList(getEnv("HTTP_ALLOWED_ORIGINS", ""))

	return nil
}

func loadSessionConfig(logger *logrus.Logger, config *SessionConfig) error {
	config.TickInterval = getEnvDuration("SESSION_TICK_INTERVAL", time.Second)
	config.FrameBufferSize = getEnvInt("SESSION_FRAME_BUFFER", 64)
	config.MaxConcurrentSessions = getEnvInt("MAX_CONCURRENT_SESSIONS", 100)
	config.SummaryRetention = getEnvDuration("SESSION_SUMMARY_RETENTION", 30*time.Minute)
	config.DefaultInterviewType = getEnv("SESSION_DEFAULT_TYPE", "general")

	if config.FrameBufferSize < 1 {
		logger.Warn("Invalid SESSION_FRAME_BUFFER value, using default: 64")
		config.FrameBufferSize = 64
	}

	return nil
}

func loadSTTConfig(logger *logrus.Logger, config *STTConfig) error {
	config.Provider = strings.ToLower(strings.TrimSpace(getEnv("STT_PROVIDER", ProviderNone)))
	config.RestartDelay = getEnvDuration("STT_RESTART_DELAY", time.Second)
	config.NoSpeechRestartDelay = getEnvDuration("STT_NO_SPEECH_RESTART_DELAY", 100*time.Millisecond)
	config.MaxRestarts = getEnvInt("STT_MAX_RESTARTS", 0)

	loadDeepgramSTTConfig(&config.Deepgram)
	loadGoogleSTTConfig(&config.Google)
	loadAmazonSTTConfig(&config.Amazon)

	logger.WithField("provider", config.Provider).Debug("Configured STT provider")
	return nil
}

func loadDeepgramSTTConfig(config *DeepgramSTTConfig) {
	config.APIKey = getEnv("DEEPGRAM_API_KEY", "")
	config.APIURL = getEnv("DEEPGRAM_API_URL", "wss://api.deepgram.com/v1/listen")
	config.Model = getEnv("DEEPGRAM_MODEL", "nova-2")
	config.Language = getEnv("DEEPGRAM_LANGUAGE", "en-US")
	config.Encoding = getEnv("DEEPGRAM_ENCODING", "linear16")
	config.SampleRate = getEnvInt("DEEPGRAM_SAMPLE_RATE", 16000)
	config.Channels = getEnvInt("DEEPGRAM_CHANNELS", 1)
	config.InterimResults = getEnvBool("DEEPGRAM_INTERIM_RESULTS", true)
	config.Punctuate = getEnvBool("DEEPGRAM_PUNCTUATE", true)
}

func loadGoogleSTTConfig(config *GoogleSTTConfig) {
	config.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")
	config.APIKey = getEnv("GOOGLE_STT_API_KEY", "")
	config.Language = getEnv("GOOGLE_STT_LANGUAGE", "en-US")
	config.SampleRate = getEnvInt("GOOGLE_STT_SAMPLE_RATE", 16000)
	config.Model = getEnv("GOOGLE_STT_MODEL", "latest_long")
	config.EnableAutomaticPunctuation = getEnvBool("GOOGLE_STT_AUTO_PUNCTUATION", true)
}

func loadAmazonSTTConfig(config *AmazonSTTConfig) {
	config.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	config.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	config.Region = getEnv("AWS_REGION", "us-east-1")
	config.Language = getEnv("AMAZON_STT_LANGUAGE", "en-US")
	config.SampleRate = getEnvInt("AMAZON_STT_SAMPLE_RATE", 16000)
	config.VocabularyName = getEnv("AMAZON_STT_VOCABULARY", "")
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) error {
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.ExchangeName = getEnv("AMQP_EXCHANGE_NAME", "interview")
	config.ExchangeType = getEnv("AMQP_EXCHANGE_TYPE", "topic")
	config.RoundRoutingKey = getEnv("AMQP_ROUND_ROUTING_KEY", "interview.round")
	config.SummaryRoutingKey = getEnv("AMQP_SUMMARY_ROUTING_KEY", "interview.summary")
	config.ConnectTimeout = getEnvDuration("AMQP_CONNECT_TIMEOUT", 10*time.Second)

	if !config.Enabled() {
		logger.Debug("AMQP_URL not set, round results will not be published")
	}

	return nil
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) error {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")

	return nil
}

// ApplyLogging applies the logging section to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}
