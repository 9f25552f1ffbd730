// Package config loads the fermentbridge device file and startup settings.
//
// The device file declares the logging API URL, default units and, per
// fermentation, which sensor feeds each logical field:
//
//	settings:
//	  brewfather_url: https://log.brewfather.net/stream?id=${BREWFATHER_STREAM_ID}
//	  temp_unit: C
//	  gravity_unit: G
//
//	fermentations:
//	  - name: Red
//	    sensors:
//	      temp:
//	        service: tilt
//	        sensor: Red
//	        service_type: tilt
//	      aux_temp:
//	        service: spark-one
//	        sensor: fridge-sensor
//	        service_type: spark
//	      gravity:
//	        service: tilt
//	        sensor: Red
//	        service_type: tilt
//	        calibrated: false
//
// Sensors may also be written as a list, with the field named explicitly:
//
//	    sensors:
//	      - field: temp
//	        service: tilt
//	        sensor: Red
//	        service_type: tilt
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a device file that cannot be read or is structurally
// invalid. It is fatal at startup: no partial mapping table is ever built.
type ConfigError struct {
	// Path is the device file path; empty when parsing in-memory data.
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid config: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// Config is the root structure of the device file.
//
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Settings holds the global settings.
	Settings GlobalSettings `yaml:"settings"`

	// Fermentations lists the devices in polling order.
	Fermentations []DeviceConfig `yaml:"fermentations"`
}

// GlobalSettings are the device file settings shared by all devices.
type GlobalSettings struct {
	// BrewfatherURL is the logging API stream URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BrewfatherURL string `yaml:"brewfather_url"`

	// TempUnit is the default temperature unit, C or F. Defaults to C.
	TempUnit string `yaml:"temp_unit"`

	// GravityUnit is the default gravity unit, G or P. Defaults to G.
	GravityUnit string `yaml:"gravity_unit"`
}

// DeviceConfig declares one fermentation.
type DeviceConfig struct {
	// Name identifies the device and is sent as the payload name.
	Name string `yaml:"name"`

	// TempUnit and GravityUnit override the global units when set.
	TempUnit    string `yaml:"temp_unit"`
	GravityUnit string `yaml:"gravity_unit"`

	// Sensors declares the sensor behind each logical field, in order.
	Sensors SensorList `yaml:"sensors"`
}

// SensorConfig declares the sensor a logical field is read from.
type SensorConfig struct {
	// Field is the logical field, e.g. "temp" or "gravity".
	Field string `yaml:"field"`

	// Service is the service instance name, e.g. "tilt" or "spark-one".
	Service string `yaml:"service"`

	// Sensor is the sensor identifier within the service.
	Sensor string `yaml:"sensor"`

	// ServiceType is the kind of service, "tilt" or "spark".
	ServiceType string `yaml:"service_type"`

	// Calibrated selects calibrated metrics. Defaults to true.
	Calibrated *bool `yaml:"calibrated"`
}

// IsCalibrated returns the calibrated flag, defaulting to true.
func (s SensorConfig) IsCalibrated() bool {
	return s.Calibrated == nil || *s.Calibrated
}

// SensorList is the ordered list of a device's sensor declarations.
//
// It supports two formats in YAML: a mapping keyed by logical field, and a
// list of records carrying a field key. Declaration order is preserved in
// both.
type SensorList []SensorConfig

// UnmarshalYAML implements yaml.Unmarshaler for SensorList.
func (l *SensorList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		list := make(SensorList, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var field string
			if err := node.Content[i].Decode(&field); err != nil {
				return err
			}
			var sc SensorConfig
			if err := node.Content[i+1].Decode(&sc); err != nil {
				return fmt.Errorf("sensor %q: %w", field, err)
			}
			sc.Field = field
			list = append(list, sc)
		}
		*l = list
		return nil

	case yaml.SequenceNode:
		var list []SensorConfig
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	}

	return fmt.Errorf("sensors must be a mapping or a list, got line %d", node.Line)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a device file.
//
// All failures, including an unreadable file, are returned as
// [*ConfigError] carrying path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read file: %w", err)}
	}

	cfg, err := Parse(data)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Parse parses device file data.
//
// Environment variables are expanded in the logging API URL. Units are
// normalized ("Plato" becomes "P") and devices inherit the global units
// unless they set their own. The logging API URL may be left out of the
// file and supplied at startup instead, see [Config.DestinationURL].
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, configErrorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DestinationURL returns the logging API URL, preferring override when it is
// non-empty.
//
// Returns a [*ConfigError] when neither is set or the URL is invalid.
func (c *Config) DestinationURL(override string) (string, error) {
	u := c.Settings.BrewfatherURL
	if override != "" {
		u = override
	}
	if u == "" {
		return "", configErrorf("settings.brewfather_url is required")
	}
	if err := validateURL(u); err != nil {
		return "", configErrorf("brewfather_url: %w", err)
	}
	return u, nil
}

func (c *Config) expandAndValidate() error {
	s := &c.Settings

	if s.BrewfatherURL != "" {
		expanded, err := expandEnvVars(s.BrewfatherURL)
		if err != nil {
			return configErrorf("settings.brewfather_url: %w", err)
		}
		if err := validateURL(expanded); err != nil {
			return configErrorf("settings.brewfather_url: %w", err)
		}
		s.BrewfatherURL = expanded
	}

	var err error
	if s.TempUnit, err = normalizeTempUnit(s.TempUnit, "C"); err != nil {
		return configErrorf("settings.temp_unit: %w", err)
	}
	if s.GravityUnit, err = normalizeGravityUnit(s.GravityUnit, "G"); err != nil {
		return configErrorf("settings.gravity_unit: %w", err)
	}

	if len(c.Fermentations) == 0 {
		return configErrorf("at least one fermentation must be defined")
	}

	seen := make(map[string]struct{}, len(c.Fermentations))
	for i := range c.Fermentations {
		d := &c.Fermentations[i]

		if d.Name == "" {
			return configErrorf("fermentations[%d]: name is required", i)
		}
		if _, exists := seen[d.Name]; exists {
			return configErrorf("fermentations[%d]: duplicate device name %q", i, d.Name)
		}
		seen[d.Name] = struct{}{}

		if d.TempUnit, err = normalizeTempUnit(d.TempUnit, s.TempUnit); err != nil {
			return configErrorf("fermentations[%d] (%s): temp_unit: %w", i, d.Name, err)
		}
		if d.GravityUnit, err = normalizeGravityUnit(d.GravityUnit, s.GravityUnit); err != nil {
			return configErrorf("fermentations[%d] (%s): gravity_unit: %w", i, d.Name, err)
		}

		fields := make(map[string]struct{}, len(d.Sensors))
		for j, sc := range d.Sensors {
			ctx := fmt.Sprintf("fermentations[%d] (%s): sensors[%d]", i, d.Name, j)
			if sc.Field == "" {
				return configErrorf("%s: field is required", ctx)
			}
			if _, exists := fields[sc.Field]; exists {
				return configErrorf("%s: field %q declared twice", ctx, sc.Field)
			}
			fields[sc.Field] = struct{}{}

			switch {
			case sc.Service == "":
				return configErrorf("%s (%s): service is required", ctx, sc.Field)
			case sc.Sensor == "":
				return configErrorf("%s (%s): sensor is required", ctx, sc.Field)
			case sc.ServiceType == "":
				return configErrorf("%s (%s): service_type is required", ctx, sc.Field)
			}
		}
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}

func normalizeTempUnit(u, fallback string) (string, error) {
	switch t := strings.TrimSpace(u); t {
	case "":
		return fallback, nil
	case "C", "F":
		return t, nil
	}
	return "", fmt.Errorf("unknown temperature unit %q (expected C or F)", u)
}

func normalizeGravityUnit(u, fallback string) (string, error) {
	switch strings.TrimSpace(u) {
	case "":
		return fallback, nil
	case "G":
		return "G", nil
	case "P", "Plato":
		return "P", nil
	}
	return "", fmt.Errorf("unknown gravity unit %q (expected G, P or Plato)", u)
}
