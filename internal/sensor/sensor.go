package sensor

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/weatherstation-core/internal/hub"
	"github.com/nerrad567/weatherstation-core/internal/metric"
)

// functionGetValue is the getter function ID shared by all four bricklets.
const functionGetValue uint8 = 1

// Reader is the single capability every sensor variant provides.
//
// One call is one attempt. Reads are not retried; the next poll tick is
// the retry.
type Reader interface {
	ReadValue(ctx context.Context) (float64, error)
}

// Requester sends a request to a device on the hub. *hub.Client satisfies it.
type Requester interface {
	Request(ctx context.Context, uid uint32, functionID uint8, payload []byte) ([]byte, error)
}

// Ensure hub.Client implements Requester.
var _ Requester = (*hub.Client)(nil)

// device is the handle each variant holds: its UID and the shared hub.
// Variants never own or close the hub connection.
type device struct {
	metric metric.Metric
	uid    uint32
	hub    Requester
}

// get calls the value getter and checks the payload carries at least size bytes.
func (d device) get(ctx context.Context, size int) ([]byte, error) {
	payload, err := d.hub.Request(ctx, d.uid, functionGetValue, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (uid %s): %w", ErrReadFailed, d.metric, hub.FormatUID(d.uid), err)
	}
	if len(payload) < size {
		return nil, fmt.Errorf("%w: %w: %s (uid %s): got %d bytes, want %d",
			ErrReadFailed, ErrMalformedResponse, d.metric, hub.FormatUID(d.uid), len(payload), size)
	}
	return payload, nil
}

// UID returns the Base58 device UID.
func (d device) UID() string {
	return hub.FormatUID(d.uid)
}

// Thermometer reads a temperature bricklet. The wire value is a signed
// 16-bit count of 1/100 °C.
type Thermometer struct{ device }

// NewThermometer creates a temperature reader for the device uid.
func NewThermometer(uid uint32, r Requester) *Thermometer {
	return &Thermometer{device{metric: metric.Temperature, uid: uid, hub: r}}
}

// ReadValue returns the temperature in °C.
func (s *Thermometer) ReadValue(ctx context.Context) (float64, error) {
	b, err := s.get(ctx, 2)
	if err != nil {
		return 0, err
	}
	return float64(int16(binary.LittleEndian.Uint16(b))) / 100, nil //nolint:gosec // wire value is signed
}

// Hygrometer reads a humidity bricklet. The wire value is an unsigned
// 16-bit count of 1/10 %RH.
type Hygrometer struct{ device }

// NewHygrometer creates a humidity reader for the device uid.
func NewHygrometer(uid uint32, r Requester) *Hygrometer {
	return &Hygrometer{device{metric: metric.Humidity, uid: uid, hub: r}}
}

// ReadValue returns the relative humidity in %RH.
func (s *Hygrometer) ReadValue(ctx context.Context) (float64, error) {
	b, err := s.get(ctx, 2)
	if err != nil {
		return 0, err
	}
	return float64(binary.LittleEndian.Uint16(b)) / 10, nil
}

// LightMeter reads an ambient light bricklet. The wire value is an
// unsigned 16-bit count of 1/10 lx.
type LightMeter struct{ device }

// NewLightMeter creates an illuminance reader for the device uid.
func NewLightMeter(uid uint32, r Requester) *LightMeter {
	return &LightMeter{device{metric: metric.Ambient, uid: uid, hub: r}}
}

// ReadValue returns the illuminance in lx.
func (s *LightMeter) ReadValue(ctx context.Context) (float64, error) {
	b, err := s.get(ctx, 2)
	if err != nil {
		return 0, err
	}
	return float64(binary.LittleEndian.Uint16(b)) / 10, nil
}

// Barometer reads a barometer bricklet. The wire value is a signed
// 32-bit count of 1/1000 hPa.
type Barometer struct{ device }

// NewBarometer creates an air pressure reader for the device uid.
func NewBarometer(uid uint32, r Requester) *Barometer {
	return &Barometer{device{metric: metric.Barometer, uid: uid, hub: r}}
}

// ReadValue returns the air pressure in hPa.
func (s *Barometer) ReadValue(ctx context.Context) (float64, error) {
	b, err := s.get(ctx, 4)
	if err != nil {
		return 0, err
	}
	return float64(int32(binary.LittleEndian.Uint32(b))) / 1000, nil //nolint:gosec // wire value is signed
}

// New selects the sensor variant for m and binds it to the device uid
// (Base58, as printed on the bricklet).
//
// Parameters:
//   - m: Metric the sensor measures
//   - uid: Base58 device UID such as "dXC"
//   - r: Shared hub connection
//
// Returns:
//   - Reader: The variant for m
//   - error: hub.ErrInvalidUID or metric.ErrUnknownMetric
func New(m metric.Metric, uid string, r Requester) (Reader, error) {
	id, err := hub.ParseUID(uid)
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", m, err)
	}

	switch m {
	case metric.Temperature:
		return NewThermometer(id, r), nil
	case metric.Humidity:
		return NewHygrometer(id, r), nil
	case metric.Ambient:
		return NewLightMeter(id, r), nil
	case metric.Barometer:
		return NewBarometer(id, r), nil
	default:
		return nil, fmt.Errorf("%w: %d", metric.ErrUnknownMetric, int(m))
	}
}
