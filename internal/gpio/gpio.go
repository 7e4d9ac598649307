// Package gpio provides GPIO input reading and LED output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Levels are the logical states of the input lines.
// Buttons are true while held; Motion is true while the PIR reports motion.
type Levels struct {
	TempUp   bool
	TempDown bool
	Door     bool
	Motion   bool
}

// Outputs are the requested states of the indicator LEDs.
type Outputs struct {
	Heat  bool // red
	Cool  bool // blue
	Light bool // green, motion-activated
}

// InputReader reads GPIO input states.
type InputReader interface {
	// Read returns the logical states of all input lines.
	Read() (Levels, error)

	// Close releases GPIO resources.
	Close() error
}

// OutputWriter drives the indicator LEDs.
type OutputWriter interface {
	// Write sets all three LEDs.
	Write(Outputs) error

	// Close switches the LEDs off and releases GPIO resources.
	Close() error
}

// Pins are BCM line offsets on the GPIO chip.
type Pins struct {
	TempUp   int `yaml:"temp_up"`
	TempDown int `yaml:"temp_down"`
	Door     int `yaml:"door"`
	Motion   int `yaml:"motion"`
	Heat     int `yaml:"heat_led"`
	Cool     int `yaml:"cool_led"`
	Light    int `yaml:"light_led"`
}

// DefaultPins is the wiring of the reference board.
var DefaultPins = Pins{
	TempUp:   25,
	TempDown: 18,
	Door:     27,
	Motion:   17,
	Heat:     6,
	Cool:     5,
	Light:    12,
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Named returns the pins keyed by role, in a stable order.
func (p Pins) Named() []NamedPin {
	return []NamedPin{
		{"temp_up", p.TempUp},
		{"temp_down", p.TempDown},
		{"door", p.Door},
		{"motion", p.Motion},
		{"heat_led", p.Heat},
		{"cool_led", p.Cool},
		{"light_led", p.Light},
	}
}

// NamedPin is a pin with its configuration key.
type NamedPin struct {
	Name string
	Pin  int
}
