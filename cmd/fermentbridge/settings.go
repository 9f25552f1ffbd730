package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpalmerr/fermentbridge/config"
)

// settingFlags maps setting keys to the flags that override them.
var settingFlags = map[string]string{
	"metrics_config_file": "config",
	"log_level":           "log-level",
	"history_host":        "history-host",
	"history_port":        "history-port",
	"brewfather_url":      "brewfather-url",
	"poll_interval":       "poll-interval",
	"name":                "name",
	"request_timeout":     "request-timeout",
	"listen_address":      "listen-address",
	"mqtt_broker":         "mqtt-broker",
	"mqtt_topic":          "mqtt-topic",
}

// loadSettings resolves the startup settings for cmd: the .env file is
// loaded into the environment first, then flags, FERMENTBRIDGE_* variables
// and the settings file are layered by viper.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return config.Settings{}, err
	}

	v := viper.New()
	for key, name := range settingFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return config.Settings{}, fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}

	settingsFile, _ := cmd.Flags().GetString("settings")
	s, err := config.LoadSettings(v, settingsFile)
	if err != nil {
		return config.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// newLogger creates a JSON logger on stderr for CLI use.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}
