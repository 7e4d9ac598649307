package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultIIODevice is where the dht11 kernel overlay exposes the sensor
// (dtoverlay=dht11,gpiopin=4).
const DefaultIIODevice = "/sys/bus/iio/devices/iio:device0"

// IIOReader reads a DHT11/DHT22 through the Linux industrial I/O driver.
// Values are reported in milli-degrees Celsius and milli-percent.
type IIOReader struct {
	Dir string
}

// NewIIOReader creates a reader for the given IIO device directory.
func NewIIOReader(dir string) *IIOReader {
	if dir == "" {
		dir = DefaultIIODevice
	}
	return &IIOReader{Dir: dir}
}

// Read samples temperature and humidity. The kernel driver returns EIO when
// the sensor misses a handshake; that surfaces as ErrUnavailable.
func (r *IIOReader) Read(ctx context.Context) (Reading, error) {
	temp, err := readMilli(filepath.Join(r.Dir, "in_temp_input"))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: temperature: %v", ErrUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	hum, err := readMilli(filepath.Join(r.Dir, "in_humidityrelative_input"))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: humidity: %v", ErrUnavailable, err)
	}
	return Reading{TemperatureC: temp, HumidityPct: hum}, nil
}

func readMilli(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return float64(v) / 1000, nil
}
