package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullConfig = `
settings:
  brewfather_url: https://log.brewfather.net/stream?id=abc
  temp_unit: C
  gravity_unit: G

fermentations:
  - name: Red
    sensors:
      temp:
        service: tilt
        sensor: Red
        service_type: tilt
      aux_temp:
        service: spark-one
        sensor: fridge-sensor
        service_type: spark
      gravity:
        service: tilt
        sensor: Red
        service_type: tilt
        calibrated: false
  - name: Blue
    temp_unit: F
    gravity_unit: Plato
    sensors:
      - field: temp
        service: tilt
        sensor: Blue
        service_type: tilt
      - field: gravity
        service: tilt
        sensor: Blue
        service_type: tilt
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Settings.BrewfatherURL != "https://log.brewfather.net/stream?id=abc" {
		t.Errorf("BrewfatherURL = %q", cfg.Settings.BrewfatherURL)
	}
	if len(cfg.Fermentations) != 2 {
		t.Fatalf("len(Fermentations) = %d, want 2", len(cfg.Fermentations))
	}

	red := cfg.Fermentations[0]
	if red.TempUnit != "C" || red.GravityUnit != "G" {
		t.Errorf("Red units = %s/%s, want inherited C/G", red.TempUnit, red.GravityUnit)
	}
	if len(red.Sensors) != 3 {
		t.Fatalf("len(Red.Sensors) = %d, want 3", len(red.Sensors))
	}
	wantOrder := []string{"temp", "aux_temp", "gravity"}
	for i, want := range wantOrder {
		if red.Sensors[i].Field != want {
			t.Errorf("Red.Sensors[%d].Field = %q, want %q", i, red.Sensors[i].Field, want)
		}
	}
	if !red.Sensors[0].IsCalibrated() {
		t.Error("calibrated should default to true")
	}
	if red.Sensors[2].IsCalibrated() {
		t.Error("explicit calibrated: false should be kept")
	}

	blue := cfg.Fermentations[1]
	if blue.TempUnit != "F" || blue.GravityUnit != "P" {
		t.Errorf("Blue units = %s/%s, want F/P", blue.TempUnit, blue.GravityUnit)
	}
	if len(blue.Sensors) != 2 || blue.Sensors[1].Field != "gravity" || blue.Sensors[1].Sensor != "Blue" {
		t.Errorf("Blue.Sensors = %+v", blue.Sensors)
	}
}

func TestParse_Defaults(t *testing.T) {
	yaml := `
settings:
  brewfather_url: https://log.brewfather.net/stream
fermentations:
  - name: Red
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Settings.TempUnit != "C" || cfg.Settings.GravityUnit != "G" {
		t.Errorf("units = %s/%s, want C/G", cfg.Settings.TempUnit, cfg.Settings.GravityUnit)
	}
	if len(cfg.Fermentations[0].Sensors) != 0 {
		t.Errorf("Sensors = %v, want none", cfg.Fermentations[0].Sensors)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			yaml:    "settings: [unclosed",
			wantErr: "failed to parse YAML",
		},
		{
			name: "invalid brewfather url",
			yaml: `
settings:
  brewfather_url: log.brewfather.net/stream
fermentations:
  - name: Red
`,
			wantErr: "settings.brewfather_url",
		},
		{
			name: "unknown temp unit",
			yaml: `
settings:
  temp_unit: K
fermentations:
  - name: Red
`,
			wantErr: "unknown temperature unit",
		},
		{
			name: "unknown gravity unit",
			yaml: `
settings:
  gravity_unit: Brix
fermentations:
  - name: Red
`,
			wantErr: "unknown gravity unit",
		},
		{
			name: "unknown device temp unit",
			yaml: `
fermentations:
  - name: Red
    temp_unit: Kelvin
`,
			wantErr: "fermentations[0] (Red): temp_unit",
		},
		{
			name:    "no fermentations",
			yaml:    "settings:\n  temp_unit: C\n",
			wantErr: "at least one fermentation",
		},
		{
			name: "missing name",
			yaml: `
fermentations:
  - sensors: {}
`,
			wantErr: "fermentations[0]: name is required",
		},
		{
			name: "duplicate names",
			yaml: `
fermentations:
  - name: Red
  - name: Red
`,
			wantErr: `duplicate device name "Red"`,
		},
		{
			name: "missing service",
			yaml: `
fermentations:
  - name: Red
    sensors:
      temp:
        sensor: Red
        service_type: tilt
`,
			wantErr: "service is required",
		},
		{
			name: "missing sensor",
			yaml: `
fermentations:
  - name: Red
    sensors:
      temp:
        service: tilt
        service_type: tilt
`,
			wantErr: "sensor is required",
		},
		{
			name: "missing service type",
			yaml: `
fermentations:
  - name: Red
    sensors:
      - field: temp
        service: tilt
        sensor: Red
`,
			wantErr: "service_type is required",
		},
		{
			name: "missing field in list form",
			yaml: `
fermentations:
  - name: Red
    sensors:
      - service: tilt
        sensor: Red
        service_type: tilt
`,
			wantErr: "field is required",
		},
		{
			name: "field declared twice",
			yaml: `
fermentations:
  - name: Red
    sensors:
      - field: temp
        service: tilt
        sensor: Red
        service_type: tilt
      - field: temp
        service: spark-one
        sensor: beer
        service_type: spark
`,
			wantErr: `field "temp" declared twice`,
		},
		{
			name: "sensors scalar",
			yaml: `
fermentations:
  - name: Red
    sensors: tilt
`,
			wantErr: "sensors must be a mapping or a list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() expected error containing %q, got nil", tt.wantErr)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error type = %T, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_UnknownFieldAndServiceTypeAccepted(t *testing.T) {
	yaml := `
fermentations:
  - name: Red
    sensors:
      pressure:
        service: plaato
        sensor: keg
        service_type: plaato
      temp:
        service: ispindel
        sensor: one
        service_type: ispindel
`
	if _, err := Parse([]byte(yaml)); err != nil {
		t.Fatalf("Parse() error = %v, want nil for forward compatible declarations", err)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_STREAM_ID", "secret123")

	yaml := `
settings:
  brewfather_url: https://log.brewfather.net/stream?id=${TEST_STREAM_ID}
fermentations:
  - name: Red
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Settings.BrewfatherURL != "https://log.brewfather.net/stream?id=secret123" {
		t.Errorf("BrewfatherURL = %q", cfg.Settings.BrewfatherURL)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	// MISSING_STREAM_ID is expected to not exist in the environment
	yaml := `
settings:
  brewfather_url: https://log.brewfather.net/stream?id=${MISSING_STREAM_ID}
fermentations:
  - name: Red
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "MISSING_STREAM_ID") {
		t.Errorf("error should mention MISSING_STREAM_ID: %v", err)
	}
}

func TestConfig_DestinationURL(t *testing.T) {
	withURL := &Config{Settings: GlobalSettings{BrewfatherURL: "https://log.brewfather.net/stream?id=file"}}
	withoutURL := &Config{}

	tests := []struct {
		name     string
		cfg      *Config
		override string
		want     string
		wantErr  bool
	}{
		{"from file", withURL, "", "https://log.brewfather.net/stream?id=file", false},
		{"override wins", withURL, "https://log.brewfather.net/stream?id=flag", "https://log.brewfather.net/stream?id=flag", false},
		{"override only", withoutURL, "https://log.brewfather.net/stream?id=flag", "https://log.brewfather.net/stream?id=flag", false},
		{"missing", withoutURL, "", "", true},
		{"invalid override", withURL, "ftp://example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.DestinationURL(tt.override)
			if tt.wantErr {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("DestinationURL() error = %v, want *ConfigError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DestinationURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DestinationURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fermentations.yaml")
	if err := os.WriteFile(path, []byte(fullConfig), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Fermentations) != 2 {
		t.Errorf("len(Fermentations) = %d, want 2", len(cfg.Fermentations))
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("fermentations: []\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.yaml")},
		{"invalid content", invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Load() error = %v, want *ConfigError", err)
			}
			if cfgErr.Path != tt.path {
				t.Errorf("Path = %q, want %q", cfgErr.Path, tt.path)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}
