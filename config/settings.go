package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jpalmerr/fermentbridge"
)

// EnvPrefix is the prefix of environment variables read by [LoadSettings],
// e.g. FERMENTBRIDGE_HISTORY_HOST.
const EnvPrefix = "FERMENTBRIDGE"

// Settings are the startup values of the service.
type Settings struct {
	// HistoryHost is the history service base URL, including the scheme.
	HistoryHost string `mapstructure:"history_host"`

	// HistoryPort is the history service port.
	HistoryPort int `mapstructure:"history_port"`

	// BrewfatherURL overrides settings.brewfather_url of the device file.
	BrewfatherURL string `mapstructure:"brewfather_url"`

	// PollInterval is the interval between cycles, in seconds. Zero or
	// negative disables polling; values below 900 are raised to 900.
	PollInterval float64 `mapstructure:"poll_interval"`

	// MetricsConfigFile is the path of the device file.
	MetricsConfigFile string `mapstructure:"metrics_config_file"`

	// Name is the service display name.
	Name string `mapstructure:"name"`

	// RequestTimeout is the timeout of each outbound request, in seconds.
	RequestTimeout float64 `mapstructure:"request_timeout"`

	// ListenAddress enables the status server when non-empty.
	ListenAddress string `mapstructure:"listen_address"`

	// MQTTBroker enables event bus publishing when non-empty.
	MQTTBroker string `mapstructure:"mqtt_broker"`

	// MQTTTopic is the event bus topic.
	MQTTTopic string `mapstructure:"mqtt_topic"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`
}

// SetDefaults registers the default startup values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("history_host", "http://history")
	v.SetDefault("history_port", 5000)
	v.SetDefault("brewfather_url", "")
	v.SetDefault("poll_interval", 900)
	v.SetDefault("metrics_config_file", "fermentations.yaml")
	v.SetDefault("name", "fermentbridge")
	v.SetDefault("request_timeout", 10)
	v.SetDefault("listen_address", "")
	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_topic", "brewcast/history")
	v.SetDefault("log_level", "info")
}

// LoadSettings resolves startup values from v.
//
// Precedence is flag > environment > settings file > default; flags must be
// bound by the caller. When settingsFile is non-empty it is read as the
// settings file. Environment variables use [EnvPrefix].
func LoadSettings(v *viper.Viper, settingsFile string) (Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.HistoryHost == "" {
		return fmt.Errorf("history_host is required")
	}
	if err := validateURL(s.HistoryHost); err != nil {
		return fmt.Errorf("history_host: %w", err)
	}
	if s.HistoryPort < 1 || s.HistoryPort > 65535 {
		return fmt.Errorf("history_port must be between 1 and 65535, got %d", s.HistoryPort)
	}
	if s.MetricsConfigFile == "" {
		return fmt.Errorf("metrics_config_file is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", s.RequestTimeout)
	}
	return nil
}

// MetricsURL returns the history API metrics URL.
func (s Settings) MetricsURL() string {
	return fermentbridge.MetricsURL(s.HistoryHost, s.HistoryPort)
}

// PollIntervalDuration returns the configured poll interval as a duration,
// before the minimum is applied.
func (s Settings) PollIntervalDuration() time.Duration {
	return time.Duration(s.PollInterval * float64(time.Second))
}

// RequestTimeoutDuration returns the request timeout as a duration.
func (s Settings) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout * float64(time.Second))
}
