// Package logic contains the pure control logic of the building management
// daemon: the weather index, the control policy and input debouncing.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// State represents the debounced logical level of an input line.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// HVACMode is the conditioning system's current action.
type HVACMode string

const (
	HVACOff  HVACMode = "OFF"
	HVACHeat HVACMode = "HEAT"
	HVACCool HVACMode = "COOL"
)

// Button is a discrete button press. Lower values are applied first
// when several presses land in the same poll cycle.
type Button int

const (
	ButtonTempUp Button = iota
	ButtonTempDown
	ButtonDoorToggle
)

func (b Button) String() string {
	switch b {
	case ButtonTempUp:
		return "TEMP_UP"
	case ButtonTempDown:
		return "TEMP_DOWN"
	case ButtonDoorToggle:
		return "DOOR_TOGGLE"
	default:
		return fmt.Sprintf("BUTTON(%d)", int(b))
	}
}

// SensorSnapshot is one poll cycle's worth of readings.
type SensorSnapshot struct {
	TemperatureF   float64
	HumidityPct    float64
	MotionDetected bool
	Time           time.Time
}

// ControlState is the controller's owned state. Policy.Apply returns a
// new value every cycle; it is never shared by pointer.
type ControlState struct {
	TargetTempF float64
	DoorOpen    bool
	HVACMode    HVACMode
	AlarmActive bool
	LightOn     bool

	// LastMotion is when motion was last seen; used for the light hold.
	LastMotion time.Time
}

// enforceAlarm restores the alarm invariant: an active alarm forces the
// HVAC off and the door open.
func (s *ControlState) enforceAlarm() {
	if s.AlarmActive {
		s.HVACMode = HVACOff
		s.DoorOpen = true
	}
}

// Level is the severity of a log entry.
type Level string

const (
	LevelInfo Level = "INFO"
	LevelWarn Level = "WARN"
)

// Kind classifies a log entry for counting and publishing.
type Kind string

const (
	KindAlarmTriggered Kind = "ALARM_TRIGGERED"
	KindAlarmCleared   Kind = "ALARM_CLEARED"
	KindHVAC           Kind = "HVAC"
	KindDoor           Kind = "DOOR"
	KindDoorForced     Kind = "DOOR_FORCED"  // opened by the fire alarm
	KindDoorIgnored    Kind = "DOOR_IGNORED" // toggle refused during the alarm
	KindTarget         Kind = "TARGET"
	KindLight          Kind = "LIGHT"
	KindSensor         Kind = "SENSOR"
	KindActuator       Kind = "ACTUATOR"
	KindNetwork        Kind = "NETWORK"
	KindSystem         Kind = "SYSTEM"
)

// LogEntry is a single line of the append-only event log.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Kind      Kind
	Message   string
}

// Notice is a transient two-line display message.
type Notice struct {
	Lines [2]string
	Until time.Time
}

// Active reports whether the notice should still be shown at now.
func (n *Notice) Active(now time.Time) bool {
	return n != nil && now.Before(n.Until)
}

// EventCounts tracks the number of each entry kind since startup.
// DoorToggles counts only toggles a user made.
type EventCounts struct {
	AlarmTriggers  int
	HVACChanges    int
	DoorToggles    int
	ButtonPresses  int
	SensorFailures int
	WriteFailures  int
}

// Add counts a log entry.
func (c *EventCounts) Add(e LogEntry) {
	switch e.Kind {
	case KindAlarmTriggered:
		c.AlarmTriggers++
	case KindHVAC:
		c.HVACChanges++
	case KindDoor:
		c.DoorToggles++
	case KindTarget:
		c.ButtonPresses++
	case KindSensor:
		c.SensorFailures++
	case KindActuator:
		c.WriteFailures++
	}
}
