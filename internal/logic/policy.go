package logic

import (
	"fmt"
	"sort"
	"time"
)

// PolicyConfig holds the thresholds of the control policy.
type PolicyConfig struct {
	AlarmThreshold float64 // WI strictly above this triggers the fire alarm
	ToleranceF     float64 // HVAC dead band around the target
	StepF          float64 // target change per button press
	MinTargetF     float64
	MaxTargetF     float64
	DoorPausesHVAC bool          // force HVAC off while the door is open
	LightHold      time.Duration // keep the light on after motion stops
	LogMotion      bool          // log light changes
	NoticeDuration time.Duration // how long door/fire-over notices stay on the display
}

// DefaultPolicyConfig returns the stock thresholds.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		AlarmThreshold: 90,
		ToleranceF:     3,
		StepF:          1,
		MinTargetF:     60,
		MaxTargetF:     85,
		NoticeDuration: 3 * time.Second,
	}
}

// Policy decides HVAC, alarm, door and lighting from readings and presses.
type Policy struct {
	cfg PolicyConfig
}

// NewPolicy creates a policy with the given thresholds.
func NewPolicy(cfg PolicyConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Config returns the policy thresholds.
func (p *Policy) Config() PolicyConfig {
	return p.cfg
}

// Result is the outcome of one policy application.
type Result struct {
	State   ControlState
	Entries []LogEntry
	Notice  *Notice // nil when the display should not change mode
}

func (r *Result) log(now time.Time, level Level, kind Kind, format string, args ...interface{}) {
	r.Entries = append(r.Entries, LogEntry{
		Timestamp: now,
		Level:     level,
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Apply runs one control cycle. The fire alarm is evaluated first and
// overrides everything else; presses are applied in button priority order.
func (p *Policy) Apply(snap SensorSnapshot, prev ControlState, presses []Button, now time.Time) Result {
	r := Result{State: prev}
	s := &r.State

	wi := WeatherIndex(snap.TemperatureF, snap.HumidityPct)
	cleared := false

	switch {
	case wi > p.cfg.AlarmThreshold && !s.AlarmActive:
		s.AlarmActive = true
		r.log(now, LevelWarn, KindAlarmTriggered, "FIRE ALARM TRIGGERED (WI %.1f)", wi)
		if s.HVACMode != HVACOff {
			s.HVACMode = HVACOff
			r.log(now, LevelInfo, KindHVAC, "HVAC %s", HVACOff)
		}
		if !s.DoorOpen {
			s.DoorOpen = true
			r.log(now, LevelInfo, KindDoorForced, "DOOR OPEN")
		}
	case wi <= p.cfg.AlarmThreshold && s.AlarmActive:
		s.AlarmActive = false
		cleared = true
		r.log(now, LevelInfo, KindAlarmCleared, "FIRE ALARM CLEARED (WI %.1f)", wi)
		r.Notice = &Notice{Lines: [2]string{"Fire Over", "Resuming..."}, Until: now.Add(p.cfg.NoticeDuration)}
	}

	// HVAC resumes the cycle after the alarm clears.
	if !s.AlarmActive && !cleared {
		p.evaluateHVAC(snap.TemperatureF, s, &r, now)
	}

	p.applyPresses(presses, s, &r, now)
	p.applyMotion(snap.MotionDetected, s, &r, now)

	s.enforceAlarm()
	return r
}

func (p *Policy) evaluateHVAC(tempF float64, s *ControlState, r *Result, now time.Time) {
	mode := HVACOff
	switch {
	case p.cfg.DoorPausesHVAC && s.DoorOpen:
		mode = HVACOff
	case tempF < s.TargetTempF-p.cfg.ToleranceF:
		mode = HVACHeat
	case tempF > s.TargetTempF+p.cfg.ToleranceF:
		mode = HVACCool
	}
	if mode != s.HVACMode {
		s.HVACMode = mode
		r.log(now, LevelInfo, KindHVAC, "HVAC %s", mode)
	}
}

func (p *Policy) applyPresses(presses []Button, s *ControlState, r *Result, now time.Time) {
	ordered := make([]Button, len(presses))
	copy(ordered, presses)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	for _, b := range ordered {
		switch b {
		case ButtonTempUp:
			p.adjustTarget(p.cfg.StepF, "TEMP UP", s, r, now)
		case ButtonTempDown:
			p.adjustTarget(-p.cfg.StepF, "TEMP DOWN", s, r, now)
		case ButtonDoorToggle:
			if s.AlarmActive {
				r.log(now, LevelInfo, KindDoorIgnored, "DOOR TOGGLE IGNORED (FIRE ALARM)")
				continue
			}
			s.DoorOpen = !s.DoorOpen
			door := "CLOSED"
			if s.DoorOpen {
				door = "OPEN"
			}
			r.log(now, LevelInfo, KindDoor, "DOOR %s", door)
			r.Notice = &Notice{
				Lines: [2]string{"DOOR: " + door, "HVAC: " + string(s.HVACMode)},
				Until: now.Add(p.cfg.NoticeDuration),
			}
		}
	}
}

func (p *Policy) adjustTarget(delta float64, label string, s *ControlState, r *Result, now time.Time) {
	target := s.TargetTempF + delta
	limit := ""
	if target > p.cfg.MaxTargetF {
		target = p.cfg.MaxTargetF
		limit = ", AT LIMIT"
	}
	if target < p.cfg.MinTargetF {
		target = p.cfg.MinTargetF
		limit = ", AT LIMIT"
	}
	s.TargetTempF = target
	r.log(now, LevelInfo, KindTarget, "TARGET TEMP %.0f (%s%s)", target, label, limit)
}

func (p *Policy) applyMotion(motion bool, s *ControlState, r *Result, now time.Time) {
	if motion {
		s.LastMotion = now
	}
	on := motion
	if !on && p.cfg.LightHold > 0 && !s.LastMotion.IsZero() {
		on = now.Sub(s.LastMotion) < p.cfg.LightHold
	}
	if on == s.LightOn {
		return
	}
	s.LightOn = on
	if p.cfg.LogMotion {
		if on {
			r.log(now, LevelInfo, KindLight, "LIGHTS ON")
		} else {
			r.log(now, LevelInfo, KindLight, "LIGHTS OFF")
		}
	}
}
