package config

import (
	"log/slog"

	"github.com/jpalmerr/fermentbridge"
)

// BuildMappingTable compiles a parsed device file into a
// [fermentbridge.MappingTable].
//
// Unknown logical fields and sensors whose service type has no metric are
// omitted from the device's mapping and logged at debug level; they are not
// errors. Any other failure is returned as a [*ConfigError] and no table is
// built.
//
// A nil logger uses [slog.Default].
func BuildMappingTable(cfg *Config, logger *slog.Logger) (fermentbridge.MappingTable, error) {
	if logger == nil {
		logger = slog.Default()
	}

	devices := make([]fermentbridge.DeviceMapping, 0, len(cfg.Fermentations))
	for _, dc := range cfg.Fermentations {
		dm, err := buildDevice(dc, logger)
		if err != nil {
			return fermentbridge.MappingTable{}, &ConfigError{Err: err}
		}
		devices = append(devices, dm)
	}

	table, err := fermentbridge.NewMappingTable(devices...)
	if err != nil {
		return fermentbridge.MappingTable{}, &ConfigError{Err: err}
	}
	return table, nil
}

// buildDevice resolves the sensor declarations of one device.
func buildDevice(dc DeviceConfig, logger *slog.Logger) (fermentbridge.DeviceMapping, error) {
	temp := fermentbridge.TempUnit(dc.TempUnit)
	gravity := fermentbridge.GravityUnit(dc.GravityUnit)

	decls := make([]fermentbridge.SensorDeclaration, 0, len(dc.Sensors))
	for _, sc := range dc.Sensors {
		field := fermentbridge.Field(sc.Field)
		if !knownField(field) {
			logger.Debug("unknown field skipped", "device", dc.Name, "field", sc.Field)
			continue
		}

		sensor := fermentbridge.Sensor{
			Type:       fermentbridge.ServiceType(sc.ServiceType),
			Service:    sc.Service,
			ID:         sc.Sensor,
			Calibrated: sc.IsCalibrated(),
		}
		if _, ok := fermentbridge.ResolveMetric(field, sensor, temp, gravity); !ok {
			logger.Debug("no metric for sensor, field skipped",
				"device", dc.Name,
				"field", sc.Field,
				"service_type", sc.ServiceType,
			)
			continue
		}

		decls = append(decls, fermentbridge.SensorDeclaration{Field: field, Sensor: sensor})
	}

	return fermentbridge.NewDeviceMapping(dc.Name, temp, gravity, decls)
}

func knownField(f fermentbridge.Field) bool {
	for _, known := range fermentbridge.Fields {
		if f == known {
			return true
		}
	}
	return false
}
