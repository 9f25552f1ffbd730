package fermentbridge

import (
	"errors"
	"fmt"
	"sort"
)

// SensorDeclaration binds a logical field to the sensor it is read from.
type SensorDeclaration struct {
	Field  Field
	Sensor Sensor
}

// DeviceMapping is the compiled field mapping for one device (fermenter).
//
// DeviceMapping is immutable after creation via [NewDeviceMapping]. Fields
// that were not declared, or whose sensor has no known metric, are absent
// from the mapping rather than present with an empty identifier.
type DeviceMapping struct {
	name        string
	tempUnit    TempUnit
	gravityUnit GravityUnit
	fields      map[Field]string
}

// NewDeviceMapping compiles sensor declarations into a [DeviceMapping].
//
// Declarations are resolved in order with [ResolveMetric]; the first
// declaration that resolves wins for each field. Declarations that do not
// resolve are skipped silently.
//
// Returns an error if the name is empty or a unit is unknown.
func NewDeviceMapping(name string, temp TempUnit, gravity GravityUnit, decls []SensorDeclaration) (DeviceMapping, error) {
	if name == "" {
		return DeviceMapping{}, errors.New("device name cannot be empty")
	}
	if !temp.Valid() {
		return DeviceMapping{}, fmt.Errorf("device %q: unknown temperature unit %q", name, temp)
	}
	if !gravity.Valid() {
		return DeviceMapping{}, fmt.Errorf("device %q: unknown gravity unit %q", name, gravity)
	}

	fields := make(map[Field]string, len(decls))
	for _, d := range decls {
		if _, done := fields[d.Field]; done {
			continue
		}
		if metric, ok := ResolveMetric(d.Field, d.Sensor, temp, gravity); ok {
			fields[d.Field] = metric
		}
	}

	return DeviceMapping{
		name:        name,
		tempUnit:    temp,
		gravityUnit: gravity,
		fields:      fields,
	}, nil
}

// Name returns the device name sent as the "name" payload field.
func (d DeviceMapping) Name() string {
	return d.name
}

// TempUnit returns the device's temperature unit.
func (d DeviceMapping) TempUnit() TempUnit {
	return d.tempUnit
}

// GravityUnit returns the device's gravity unit.
func (d DeviceMapping) GravityUnit() GravityUnit {
	return d.gravityUnit
}

// Metric returns the metric identifier mapped to field, if any.
func (d DeviceMapping) Metric(field Field) (string, bool) {
	m, ok := d.fields[field]
	return m, ok
}

// Fields returns a copy of the field to metric mapping.
func (d DeviceMapping) Fields() map[Field]string {
	cp := make(map[Field]string, len(d.fields))
	for k, v := range d.fields {
		cp[k] = v
	}
	return cp
}

// Metrics returns the distinct metric identifiers of the mapping, sorted.
func (d DeviceMapping) Metrics() []string {
	seen := make(map[string]struct{}, len(d.fields))
	metrics := make([]string, 0, len(d.fields))
	for _, m := range d.fields {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	return metrics
}

// MappingTable holds the compiled mappings of all configured devices.
//
// A MappingTable is built once at startup and is read-only afterwards, so it
// may be shared between polling cycles without synchronization.
type MappingTable struct {
	devices []DeviceMapping
	index   map[string]int
}

// NewMappingTable builds a [MappingTable] from device mappings, preserving
// their order.
//
// Returns an error if two devices share a name.
func NewMappingTable(devices ...DeviceMapping) (MappingTable, error) {
	index := make(map[string]int, len(devices))
	for i, d := range devices {
		if _, exists := index[d.name]; exists {
			return MappingTable{}, fmt.Errorf("duplicate device name: %q", d.name)
		}
		index[d.name] = i
	}

	cp := make([]DeviceMapping, len(devices))
	copy(cp, devices)

	return MappingTable{devices: cp, index: index}, nil
}

// Devices returns the device mappings in declaration order.
//
// The returned slice is a copy; modifying it does not affect the table.
func (t MappingTable) Devices() []DeviceMapping {
	cp := make([]DeviceMapping, len(t.devices))
	copy(cp, t.devices)
	return cp
}

// Device returns the mapping for the named device.
func (t MappingTable) Device(name string) (DeviceMapping, bool) {
	i, ok := t.index[name]
	if !ok {
		return DeviceMapping{}, false
	}
	return t.devices[i], true
}

// Len returns the number of devices in the table.
func (t MappingTable) Len() int {
	return len(t.devices)
}
