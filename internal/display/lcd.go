// Package display drives the 16x2 character LCD and renders status frames
// into its two lines.
package display

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Width is the number of characters per line.
const Width = 16

// DefaultAddr is the usual I2C address of a PCF8574 LCD backpack.
const DefaultAddr = 0x27

// Display is a two-line text output.
type Display interface {
	Show(lines [2]string) error
	Clear() error
	Close() error
}

// PCF8574 pin mapping: P0=RS, P1=RW, P2=EN, P3=backlight, P4-P7=D4-D7.
const (
	bitRS        = 0x01
	bitEN        = 0x04
	bitBacklight = 0x08
)

// HD44780 commands.
const (
	cmdClear       = 0x01
	cmdEntryMode   = 0x06 // increment, no shift
	cmdDisplayOn   = 0x0C // display on, cursor off, blink off
	cmdFunctionSet = 0x28 // 4-bit bus, 2 lines, 5x8 font
	cmdLine0       = 0x80
	cmdLine1       = 0xC0
)

// LCD is an HD44780 controller behind a PCF8574 I2C expander.
type LCD struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	sleep  func(time.Duration)
	shown  [2]string
	valid  bool
}

// NewLCD wraps an already-open I2C device. closer may be nil.
// sleep is injectable for tests; nil means time.Sleep.
func NewLCD(w io.Writer, closer io.Closer, sleep func(time.Duration)) *LCD {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &LCD{w: w, closer: closer, sleep: sleep}
}

// Open initialises the periph host, opens the named I2C bus ("" for the
// first one) and resets the controller at addr.
func Open(bus string, addr uint16) (*LCD, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", bus, err)
	}
	l := NewLCD(&i2c.Dev{Bus: b, Addr: addr}, b, nil)
	if err := l.Init(); err != nil {
		b.Close()
		return nil, err
	}
	return l, nil
}

// Init puts the controller into 4-bit, two-line mode and clears it.
func (l *LCD) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sleep(50 * time.Millisecond)
	// Three 8-bit "function set" nibbles recover from any prior state
	for i := 0; i < 3; i++ {
		if err := l.nibble(0x30, 0); err != nil {
			return fmt.Errorf("lcd init: %w", err)
		}
		l.sleep(5 * time.Millisecond)
	}
	if err := l.nibble(0x20, 0); err != nil {
		return fmt.Errorf("lcd init: %w", err)
	}
	for _, c := range []byte{cmdFunctionSet, cmdDisplayOn, cmdClear, cmdEntryMode} {
		if err := l.command(c); err != nil {
			return fmt.Errorf("lcd init: %w", err)
		}
	}
	l.valid = false
	return nil
}

// Show writes both lines. Unchanged frames are not rewritten.
func (l *LCD) Show(lines [2]string) error {
	lines = [2]string{Fit(lines[0]), Fit(lines[1])}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.valid && lines == l.shown {
		return nil
	}
	l.valid = false
	for i, addr := range []byte{cmdLine0, cmdLine1} {
		if err := l.command(addr); err != nil {
			return fmt.Errorf("lcd write: %w", err)
		}
		for j := 0; j < len(lines[i]); j++ {
			if err := l.send(lines[i][j], bitRS); err != nil {
				return fmt.Errorf("lcd write: %w", err)
			}
		}
	}
	l.shown, l.valid = lines, true
	return nil
}

// Clear blanks the screen.
func (l *LCD) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.command(cmdClear); err != nil {
		return fmt.Errorf("lcd clear: %w", err)
	}
	l.shown, l.valid = [2]string{Fit(""), Fit("")}, true
	return nil
}

// Close releases the I2C bus.
func (l *LCD) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *LCD) command(c byte) error {
	if err := l.send(c, 0); err != nil {
		return err
	}
	if c == cmdClear {
		l.sleep(2 * time.Millisecond)
	}
	return nil
}

func (l *LCD) send(v, mode byte) error {
	if err := l.nibble(v&0xF0, mode); err != nil {
		return err
	}
	return l.nibble(v<<4, mode)
}

// nibble latches the high four bits of v with an enable pulse.
func (l *LCD) nibble(v, mode byte) error {
	b := v&0xF0 | mode | bitBacklight
	n, err := l.w.Write([]byte{b | bitEN, b})
	if err != nil {
		return err
	}
	if n != 2 {
		return errors.New("short i2c write")
	}
	return nil
}

// Fit pads or truncates s to exactly one display line. Characters outside
// the LCD's ASCII range are replaced.
func Fit(s string) string {
	out := make([]byte, 0, Width)
	for _, r := range s {
		if len(out) == Width {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		out = append(out, byte(r))
	}
	for len(out) < Width {
		out = append(out, ' ')
	}
	return string(out)
}
