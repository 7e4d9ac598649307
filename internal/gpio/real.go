//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "home-bms"

// RealInputs reads buttons and the PIR from the Linux GPIO character device.
type RealInputs struct {
	chip  *gpiocdev.Chip
	lines [4]*gpiocdev.Line // temp up, temp down, door, motion
}

// NewRealInputs requests the input lines. Buttons are wired to ground
// with the internal pull-up enabled, so they are requested active-low.
func NewRealInputs(chipName string, pins Pins) (*RealInputs, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealInputs{chip: chip}
	buttons := []struct {
		name string
		pin  int
	}{
		{"temp-up", pins.TempUp},
		{"temp-down", pins.TempDown},
		{"door", pins.Door},
	}
	for i, b := range buttons {
		l, err := chip.RequestLine(b.pin, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", b.name, b.pin, err)
		}
		r.lines[i] = l
	}

	// The PIR drives its output high on motion.
	l, err := chip.RequestLine(pins.Motion, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request motion pin %d: %w", pins.Motion, err)
	}
	r.lines[3] = l

	return r, nil
}

// Read returns the logical states of all input lines.
func (r *RealInputs) Read() (Levels, error) {
	var v [4]bool
	for i, l := range r.lines {
		raw, err := l.Value()
		if err != nil {
			return Levels{}, fmt.Errorf("read pin %d: %w", l.Offset(), err)
		}
		v[i] = raw == 1
	}
	return Levels{TempUp: v[0], TempDown: v[1], Door: v[2], Motion: v[3]}, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealInputs) Close() error {
	var errs []error
	for _, l := range r.lines {
		if l == nil {
			continue
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.Offset(), err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutputs drives the LEDs through the Linux GPIO character device.
type RealOutputs struct {
	chip  *gpiocdev.Chip
	heat  *gpiocdev.Line
	cool  *gpiocdev.Line
	light *gpiocdev.Line
}

// NewRealOutputs requests the LED lines as outputs, initially off.
func NewRealOutputs(chipName string, pins Pins) (*RealOutputs, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	o := &RealOutputs{chip: chip}
	if o.heat, err = chip.RequestLine(pins.Heat, gpiocdev.AsOutput(0)); err != nil {
		o.Close()
		return nil, fmt.Errorf("request heat led pin %d: %w", pins.Heat, err)
	}
	if o.cool, err = chip.RequestLine(pins.Cool, gpiocdev.AsOutput(0)); err != nil {
		o.Close()
		return nil, fmt.Errorf("request cool led pin %d: %w", pins.Cool, err)
	}
	if o.light, err = chip.RequestLine(pins.Light, gpiocdev.AsOutput(0)); err != nil {
		o.Close()
		return nil, fmt.Errorf("request light led pin %d: %w", pins.Light, err)
	}
	return o, nil
}

// Write sets all three LEDs. Every line is attempted even if one fails.
func (o *RealOutputs) Write(out Outputs) error {
	var errs []error
	set := func(l *gpiocdev.Line, on bool) {
		v := 0
		if on {
			v = 1
		}
		if err := l.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("set pin %d: %w", l.Offset(), err))
		}
	}
	set(o.heat, out.Heat)
	set(o.cool, out.Cool)
	set(o.light, out.Light)

	if len(errs) > 0 {
		return fmt.Errorf("write leds: %v", errs)
	}
	return nil
}

// Close switches the LEDs off and returns the lines to Pi boot defaults.
func (o *RealOutputs) Close() error {
	var errs []error
	for _, l := range []*gpiocdev.Line{o.heat, o.cool, o.light} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear pin %d: %w", l.Offset(), err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.Offset(), err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
