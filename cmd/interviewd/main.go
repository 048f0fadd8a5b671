package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"interview-coach/pkg/config"
	"interview-coach/pkg/version"
)

var (
	logger = logrus.New()

	// Overrides applied on top of the environment
	logLevelFlag string
	portFlag     int
)

var rootCmd = &cobra.Command{
	Use:   "interviewd",
	Short: "Real-time interview confidence coaching server",
	Long: `interviewd scores mock interview answers in real time.

Browsers stream face landmarks, microphone volume and audio over a websocket;
the server runs the session state machine, streams audio to the configured
speech-to-text provider and pushes live scores, round results and the session
summary back. Results can be fanned out over AMQP.

Configuration is read from .env and the environment.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server (default)",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.UserAgent())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override LOG_LEVEL")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "override HTTP_PORT")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	// Set up logger with basic configuration (will be updated after config is loaded)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Error("interviewd exited with error")
		os.Exit(1)
	}
}

// loadConfig loads the environment configuration, applies flag overrides and
// configures the logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(logger)
	if err != nil {
		return nil, err
	}

	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if portFlag > 0 {
		cfg.HTTP.Port = portFlag
	}

	if err := cfg.ApplyLogging(logger); err != nil {
		return nil, err
	}
	return cfg, nil
}
