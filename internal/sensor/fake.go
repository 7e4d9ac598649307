package sensor

import (
	"context"
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted readings.
type FakeReader struct {
	mu sync.Mutex

	// Readings are returned in order; the last one repeats.
	Readings []Reading
	index    int

	// Err, if set, is returned instead of a reading.
	Err error

	// Hang makes Read block until its context is done.
	Hang bool

	// Calls counts Read invocations.
	Calls int
}

// NewFakeReader creates a FakeReader with the given readings.
func NewFakeReader(readings ...Reading) *FakeReader {
	return &FakeReader{Readings: readings}
}

// Read returns the next scripted reading.
func (f *FakeReader) Read(ctx context.Context) (Reading, error) {
	f.mu.Lock()
	f.Calls++
	hang, err := f.Hang, f.Err
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return Reading{}, ctx.Err()
	}
	if err != nil {
		return Reading{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Readings) == 0 {
		return Reading{}, errors.New("no readings configured")
	}
	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return r, nil
}

// SetHang toggles blocking reads.
func (f *FakeReader) SetHang(hang bool) {
	f.mu.Lock()
	f.Hang = hang
	f.mu.Unlock()
}

// SetErr changes the error returned by Read.
func (f *FakeReader) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// SetReadings replaces the script.
func (f *FakeReader) SetReadings(readings ...Reading) {
	f.mu.Lock()
	f.Readings = readings
	f.index = 0
	f.mu.Unlock()
}

// FixedHumidity is a HumiditySource returning a constant.
type FixedHumidity struct {
	Pct float64
	OK  bool
}

// Humidity returns the configured value.
func (f FixedHumidity) Humidity() (float64, bool) {
	return f.Pct, f.OK
}

// Fahrenheit returns the Celsius reading that converts to f.
func Fahrenheit(f float64) float64 {
	return (f - 32) * 5 / 9
}
