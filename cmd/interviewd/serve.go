package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"interview-coach/pkg/config"
	http_server "interview-coach/pkg/http"
	"interview-coach/pkg/messaging"
	"interview-coach/pkg/metrics"
	"interview-coach/pkg/session"
	"interview-coach/pkg/stt"
	"interview-coach/pkg/version"
)

var (
	appConfig  *config.Config
	amqpClient *messaging.AMQPClient
	publisher  *messaging.ResultPublisher
	sttManager *stt.ProviderManager
	sessions   *session.Manager
	httpServer *http_server.Server

	// Context for graceful shutdown
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// runServer starts every component and blocks until SIGINT or SIGTERM
func runServer(cmd *cobra.Command, args []string) error {
	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := initialize(); err != nil {
		return err
	}

	httpServer.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdown()
	logger.Info("Application shut down gracefully")
	return nil
}

// initialize loads configuration and wires every component
func initialize() error {
	var err error

	appConfig, err = loadConfig()
	if err != nil {
		return err
	}

	metrics.StartMetrics(logger, appConfig.HTTP.EnableMetrics)

	sttManager, err = stt.NewManagerFromConfig(logger, &appConfig.STT)
	if err != nil {
		return err
	}

	var sinks []session.UpdateSink
	if appConfig.Messaging.Enabled() {
		amqpClient = messaging.NewAMQPClient(logger, appConfig.Messaging)
		if err := amqpClient.Connect(); err != nil {
			logger.WithError(err).Warn("AMQP broker unavailable at startup, will keep retrying")
			go connectInBackground(rootCtx, amqpClient)
		}

		publisher = messaging.NewResultPublisher(amqpClient, appConfig.Messaging, messaging.DefaultDeliveryConfig(), logger)
		publisher.Start()
		sinks = append(sinks, publisher)
	} else {
		logger.Info("AMQP_URL not set, round results will not be published")
	}

	sessions = session.NewManager(session.ManagerConfig{
		MaxSessions: appConfig.Session.MaxConcurrentSessions,
		Retention:   appConfig.Session.SummaryRetention,
		Runner: session.RunnerConfig{
			TickInterval:    appConfig.Session.TickInterval,
			FrameBufferSize: appConfig.Session.FrameBufferSize,
		},
	}, logger, sinks...)

	httpServer = http_server.NewServer(logger, &appConfig.HTTP, sessions)
	if amqpClient != nil {
		httpServer.SetAMQPClient(amqpClient)
	}
	httpServer.SetSessionWebSocketHandler(
		http_server.NewSessionWebSocketHandler(rootCtx, logger, sessions, sttManager, appConfig),
	)

	logStartupConfig()
	return nil
}

// connectInBackground retries the broker until it answers or the process stops.
// Once connected, the client's own monitor takes over reconnection.
func connectInBackground(ctx context.Context, client *messaging.AMQPClient) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Connect(); err != nil {
				logger.WithError(err).Debug("AMQP broker still unavailable")
				continue
			}
			return
		}
	}
}

func shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Stop accepting connections before the sessions are torn down
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error shutting down HTTP server")
		} else {
			logger.Info("HTTP server shut down successfully")
		}
	}

	rootCancel()

	if sessions != nil {
		sessions.Shutdown()
		logger.Info("Session manager stopped")
	}

	if publisher != nil {
		publisher.Stop()
		logger.Info("Result publisher stopped")
	}

	if amqpClient != nil {
		amqpClient.Disconnect()
		logger.Info("AMQP client disconnected")
	}
}

func logStartupConfig() {
	logger.WithField("version", version.Version).Info("Interview coaching server is starting with the following configuration:")

	logger.WithFields(logrus.Fields{
		"listen_addr":     appConfig.HTTP.ListenAddr,
		"port":            appConfig.HTTP.Port,
		"metrics":         appConfig.HTTP.EnableMetrics,
		"read_timeout":    appConfig.HTTP.ReadTimeout,
		"write_timeout":   appConfig.HTTP.WriteTimeout,
		"allowed_origins": appConfig.HTTP.AllowedOrigins,
	}).Info("HTTP server configuration")

	logger.WithFields(logrus.Fields{
		"tick_interval":     appConfig.Session.TickInterval,
		"frame_buffer":      appConfig.Session.FrameBufferSize,
		"max_sessions":      appConfig.Session.MaxConcurrentSessions,
		"summary_retention": appConfig.Session.SummaryRetention,
		"default_type":      appConfig.Session.DefaultInterviewType,
	}).Info("Session configuration")

	logger.WithFields(logrus.Fields{
		"provider":      appConfig.STT.Provider,
		"registered":    sttManager.Names(),
		"restart_delay": appConfig.STT.RestartDelay,
		"max_restarts":  appConfig.STT.MaxRestarts,
	}).Info("Speech-to-text configuration")

	logger.WithFields(logrus.Fields{
		"enabled":  appConfig.Messaging.Enabled(),
		"exchange": appConfig.Messaging.ExchangeName,
	}).Info("Messaging configuration")
}
