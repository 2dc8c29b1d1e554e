package metric

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMetric is returned when a name does not match any metric.
var ErrUnknownMetric = errors.New("metric: unknown metric")

// Metric identifies one of the measured physical quantities.
//
// The declaration order is the order in which sensors are polled.
type Metric int

// The closed set of metrics served by the station.
const (
	Temperature Metric = iota
	Humidity
	Ambient
	Barometer
)

// Count is the number of metrics.
const Count = 4

var names = [Count]string{"temperature", "humidity", "ambient", "barometer"}

var units = [Count]string{"°C", "%RH", "lx", "hPa"}

// All returns every metric in poll order.
func All() []Metric {
	return []Metric{Temperature, Humidity, Ambient, Barometer}
}

// Valid reports whether m is one of the declared metrics.
func (m Metric) Valid() bool {
	return m >= 0 && int(m) < Count
}

// String returns the lower-case metric name used in config, topics and URLs.
func (m Metric) String() string {
	if !m.Valid() {
		return fmt.Sprintf("metric(%d)", int(m))
	}
	return names[m]
}

// Unit returns the display unit of the metric's values.
func (m Metric) Unit() string {
	if !m.Valid() {
		return ""
	}
	return units[m]
}

// Parse resolves a metric name. Matching is case-insensitive and accepts
// the legacy "<name>-csv" spelling used for history file parameters, plus
// "illuminance" and "pressure" as aliases.
func Parse(name string) (Metric, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimSuffix(key, "-csv")

	switch key {
	case "illuminance", "light", "ambient_light":
		return Ambient, nil
	case "pressure", "air_pressure":
		return Barometer, nil
	}

	for i, n := range names {
		if n == key {
			return Metric(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
