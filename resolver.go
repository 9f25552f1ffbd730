package fermentbridge

import (
	"fmt"
	"strings"
)

// Field is a logical destination field, independent of the sensor hardware
// that backs it.
type Field string

const (
	// FieldTemp is the primary (beer) temperature.
	FieldTemp Field = "temp"

	// FieldAuxTemp is an auxiliary temperature, typically the fridge.
	FieldAuxTemp Field = "aux_temp"

	// FieldExtTemp is the external (room) temperature.
	FieldExtTemp Field = "ext_temp"

	// FieldGravity is the measured gravity, in the device's gravity unit.
	FieldGravity Field = "gravity"
)

// Fields lists the logical fields in the order they are reported.
var Fields = []Field{FieldTemp, FieldAuxTemp, FieldExtTemp, FieldGravity}

// String returns the field name as written in config files and payloads.
func (f Field) String() string {
	return string(f)
}

// ServiceType identifies the kind of hardware or service backing a sensor.
type ServiceType string

const (
	// ServiceTilt is a Tilt hydrometer, reporting temperature and gravity.
	ServiceTilt ServiceType = "tilt"

	// ServiceSpark is a Spark controller temperature sensor.
	ServiceSpark ServiceType = "spark"
)

// TempUnit is the temperature unit label used in metric names and payloads.
type TempUnit string

const (
	Celsius    TempUnit = "C"
	Fahrenheit TempUnit = "F"
)

// Valid reports whether u is a known temperature unit.
func (u TempUnit) Valid() bool {
	return u == Celsius || u == Fahrenheit
}

// GravityUnit is the gravity unit label used in metric names and payloads.
type GravityUnit string

const (
	SpecificGravity GravityUnit = "G"
	Plato           GravityUnit = "P"
)

// Valid reports whether u is a known gravity unit.
func (u GravityUnit) Valid() bool {
	return u == SpecificGravity || u == Plato
}

// Sensor describes where a logical field is read from.
type Sensor struct {
	// Type is the service type backing the sensor.
	Type ServiceType

	// Service is the service instance name, e.g. "tilt" or "spark-one".
	Service string

	// ID is the sensor identifier within the service, e.g. "Red".
	ID string

	// Calibrated selects the calibrated metric where the service offers one.
	Calibrated bool
}

// suffixFunc derives the metric name suffix for a sensor.
// It returns false when the combination has no metric.
type suffixFunc func(calibrated bool, temp TempUnit, gravity GravityUnit) (string, bool)

type resolverKey struct {
	field   Field
	service ServiceType
}

var (
	tiltTemperature suffixFunc = func(calibrated bool, temp TempUnit, _ GravityUnit) (string, bool) {
		if calibrated {
			return fmt.Sprintf("Calibrated temperature[deg%s]", temp), true
		}
		return fmt.Sprintf("Temperature[deg%s]", temp), true
	}

	sparkTemperature suffixFunc = func(_ bool, temp TempUnit, _ GravityUnit) (string, bool) {
		return fmt.Sprintf("value[deg%s]", temp), true
	}

	tiltGravity suffixFunc = func(calibrated bool, _ TempUnit, gravity GravityUnit) (string, bool) {
		label := "Plato[degP]"
		if gravity == SpecificGravity {
			label = "Specific gravity"
		}
		if calibrated {
			return "Calibrated " + strings.ToLower(label[:1]) + label[1:], true
		}
		return label, true
	}
)

// resolvers maps (field, service type) to the metric suffix derivation.
// A new service type needs one constant and one entry per field it serves.
var resolvers = map[resolverKey]suffixFunc{
	{FieldTemp, ServiceTilt}:     tiltTemperature,
	{FieldAuxTemp, ServiceTilt}:  tiltTemperature,
	{FieldExtTemp, ServiceTilt}:  tiltTemperature,
	{FieldTemp, ServiceSpark}:    sparkTemperature,
	{FieldAuxTemp, ServiceSpark}: sparkTemperature,
	{FieldExtTemp, ServiceSpark}: sparkTemperature,
	{FieldGravity, ServiceTilt}:  tiltGravity,
}

// ResolveMetric derives the history metric identifier for a logical field
// read from the given sensor.
//
// The identifier has the form "{service}/{sensor}/{suffix}", where the suffix
// depends on the field, the service type, calibration, and the units:
//
//	tilt/Red/Calibrated temperature[degC]
//	spark-one/beer-sensor/value[degF]
//	tilt/Red/Specific gravity
//	tilt/Red/Calibrated plato[degP]
//
// ResolveMetric is pure and total: combinations without a known metric
// return ("", false) rather than an error, so unsupported service types in a
// config file are skipped instead of rejected.
func ResolveMetric(field Field, sensor Sensor, temp TempUnit, gravity GravityUnit) (string, bool) {
	fn, ok := resolvers[resolverKey{field, sensor.Type}]
	if !ok {
		return "", false
	}

	suffix, ok := fn(sensor.Calibrated, temp, gravity)
	if !ok {
		return "", false
	}

	return sensor.Service + "/" + sensor.ID + "/" + suffix, true
}
