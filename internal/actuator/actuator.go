// Package actuator maps control state onto the indicator LEDs.
package actuator

import (
	"errors"
	"fmt"

	"github.com/sweeney/home-bms/internal/gpio"
	"github.com/sweeney/home-bms/internal/logic"
)

// ErrWriteFailure is returned when the LED outputs cannot be written.
var ErrWriteFailure = errors.New("actuator write failed")

// Outputs returns the LED levels for a state. While the alarm is active
// all three LEDs follow phase so they flash together.
func Outputs(s logic.ControlState, phase bool) gpio.Outputs {
	if s.AlarmActive {
		return gpio.Outputs{Heat: phase, Cool: phase, Light: phase}
	}
	return gpio.Outputs{
		Heat:  s.HVACMode == logic.HVACHeat,
		Cool:  s.HVACMode == logic.HVACCool,
		Light: s.LightOn,
	}
}

// Driver writes LED outputs, skipping writes that would not change them.
// It is not safe for concurrent use; the poll loop owns it.
type Driver struct {
	out   gpio.OutputWriter
	last  gpio.Outputs
	valid bool
}

// NewDriver creates a driver for the given outputs.
func NewDriver(out gpio.OutputWriter) *Driver {
	return &Driver{out: out}
}

// Apply drives the LEDs for s.
func (d *Driver) Apply(s logic.ControlState, phase bool) error {
	return d.write(Outputs(s, phase))
}

// Off turns every LED off.
func (d *Driver) Off() error {
	d.valid = false
	return d.write(gpio.Outputs{})
}

// Close turns the LEDs off and releases the lines.
func (d *Driver) Close() error {
	err := d.Off()
	if cerr := d.out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %v", ErrWriteFailure, cerr)
	}
	return err
}

func (d *Driver) write(o gpio.Outputs) error {
	if d.valid && o == d.last {
		return nil
	}
	if err := d.out.Write(o); err != nil {
		d.valid = false
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	d.last, d.valid = o, true
	return nil
}
