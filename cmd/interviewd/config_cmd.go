package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"interview-coach/pkg/config"
)

const redactedValue = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration the server would start with, after .env,
environment variables and flags have been applied. Credentials are redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := renderConfig(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// renderConfig converts cfg to YAML keyed by its json tags
func renderConfig(cfg *config.Config) (string, error) {
	raw, err := json.Marshal(redact(*cfg))
	if err != nil {
		return "", fmt.Errorf("failed to encode configuration: %w", err)
	}

	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return "", fmt.Errorf("failed to decode configuration: %w", err)
	}

	out, err := yaml.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	return string(out), nil
}

// redact returns a copy of cfg with credentials masked
func redact(cfg config.Config) config.Config {
	mask := func(value *string) {
		if *value != "" {
			*value = redactedValue
		}
	}

	mask(&cfg.STT.Deepgram.APIKey)
	mask(&cfg.STT.Google.APIKey)
	mask(&cfg.STT.Amazon.AccessKeyID)
	mask(&cfg.STT.Amazon.SecretAccessKey)

	if cfg.Messaging.AMQPUrl != "" {
		if parsed, err := url.Parse(cfg.Messaging.AMQPUrl); err == nil && parsed.User != nil {
			parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
			cfg.Messaging.AMQPUrl = parsed.String()
		}
	}
	return cfg
}
