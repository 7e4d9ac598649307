// Package sensor acquires temperature and humidity, converts them to the
// units the control policy uses and bounds every read with a timeout.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/home-bms/internal/logic"
)

// ErrUnavailable is returned when the sensor times out or reports invalid data.
var ErrUnavailable = errors.New("sensor unavailable")

// Reading is a raw sample from the temperature/humidity sensor.
type Reading struct {
	TemperatureC float64
	HumidityPct  float64
}

// Reader reads the temperature/humidity sensor. Read should return once
// ctx is done; a Sampler starts no new read while an earlier one is
// still running.
type Reader interface {
	Read(ctx context.Context) (Reading, error)
}

// HumiditySource supplies ambient humidity from outside the house.
// ok is false until a value has been obtained.
type HumiditySource interface {
	Humidity() (pct float64, ok bool)
}

// Sample is a converted, averaged sensor sample.
type Sample struct {
	TemperatureF float64
	HumidityPct  float64
	// HumidityFromAPI is true when the humidity came from the weather API.
	HumidityFromAPI bool
}

// Plausible range of a DHT11/DHT22; anything outside is a bad read.
const (
	minTempC = -40
	maxTempC = 80
)

// Sampler wraps a Reader with a timeout, unit conversion, a rolling
// temperature average and humidity fusion. Not safe for concurrent use.
type Sampler struct {
	reader   Reader
	humidity HumiditySource
	timeout  time.Duration
	window   int
	temps    []float64

	// inflight is set while a timed-out read has not yet returned.
	inflight chan readResult
}

type readResult struct {
	r   Reading
	err error
}

// NewSampler creates a sampler. humidity may be nil; window < 1 disables averaging.
func NewSampler(reader Reader, humidity HumiditySource, timeout time.Duration, window int) *Sampler {
	if window < 1 {
		window = 1
	}
	return &Sampler{
		reader:   reader,
		humidity: humidity,
		timeout:  timeout,
		window:   window,
	}
}

// Poll reads the sensor once. Failures wrap ErrUnavailable and leave the
// rolling average untouched.
func (s *Sampler) Poll(ctx context.Context) (Sample, error) {
	r, err := s.readWithTimeout(ctx)
	if err != nil {
		return Sample{}, err
	}
	if err := validate(r); err != nil {
		return Sample{}, err
	}

	s.temps = append(s.temps, logic.CelsiusToFahrenheit(r.TemperatureC))
	if len(s.temps) > s.window {
		s.temps = s.temps[len(s.temps)-s.window:]
	}
	var sum float64
	for _, t := range s.temps {
		sum += t
	}

	out := Sample{
		TemperatureF: sum / float64(len(s.temps)),
		HumidityPct:  r.HumidityPct,
	}
	if s.humidity != nil {
		if h, ok := s.humidity.Humidity(); ok {
			out.HumidityPct = h
			out.HumidityFromAPI = true
		}
	}
	return out, nil
}

func (s *Sampler) readWithTimeout(ctx context.Context) (Reading, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.inflight != nil {
		select {
		case <-s.inflight:
			// Late result of a read that already timed out
			s.inflight = nil
		case <-ctx.Done():
			return Reading{}, fmt.Errorf("%w: previous read still pending", ErrUnavailable)
		}
	}

	ch := make(chan readResult, 1)
	go func() {
		r, err := s.reader.Read(ctx)
		ch <- readResult{r, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, ErrUnavailable) {
				return Reading{}, res.err
			}
			return Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, res.err)
		}
		return res.r, nil
	case <-ctx.Done():
		s.inflight = ch
		return Reading{}, fmt.Errorf("%w: read timed out after %v", ErrUnavailable, s.timeout)
	}
}

func validate(r Reading) error {
	if math.IsNaN(r.TemperatureC) || math.IsNaN(r.HumidityPct) {
		return fmt.Errorf("%w: NaN reading", ErrUnavailable)
	}
	if r.TemperatureC < minTempC || r.TemperatureC > maxTempC {
		return fmt.Errorf("%w: temperature %.1f°C out of range", ErrUnavailable, r.TemperatureC)
	}
	if r.HumidityPct < 0 || r.HumidityPct > 100 {
		return fmt.Errorf("%w: humidity %.1f%% out of range", ErrUnavailable, r.HumidityPct)
	}
	return nil
}
