// Package cmdutil holds helpers shared by the as4-wssec commands.
package cmdutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-as4-wssec/internal/config"
)

const (
	// ConfigFlagName is the persistent flag naming the configuration file
	ConfigFlagName = "config"
	// ConfigEnvKey is the environment variable naming the configuration file
	ConfigEnvKey = "AS4WSSEC_CONFIG"
	// ConfigFlagUsage documents the configuration flag
	ConfigFlagUsage = "Path to the YAML configuration file. Defaults are used when not set." +
		" Alternatively, this can be set with the following environment variable: " + ConfigEnvKey
)

// GetUserSetVar returns the value of a command line flag, falling back to
// an environment variable. Unset optional values are returned empty.
func GetUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}
		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)
	if isSet || isOptional {
		return value, nil
	}

	return "", fmt.Errorf("neither %s (command line flag) nor %s (environment variable) have been set",
		flagName, envKey)
}

// LoadConfig loads the file named by the config flag or environment
// variable, or the defaults when neither is set.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := GetUserSetVar(cmd, ConfigFlagName, ConfigEnvKey, true)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// NewLogger builds the configured logger writing to w and installs it as
// the slog default.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := cfg.Logging.NewLogger(w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
