package display

import (
	"fmt"
	"time"

	"github.com/sweeney/home-bms/internal/logic"
	"github.com/sweeney/home-bms/internal/status"
)

// Splash screens shown at startup.
var (
	SplashInit  = [2]string{"BMS Initializing", ""}
	SplashReady = [2]string{"System Ready", ""}
)

const (
	alertTop    = "!! FIRE ALERT !!"
	alertBottom = "DOOR OPEN - EVAC"
)

// Render builds the two display lines for a snapshot. phase alternates on
// each refresh and drives the alarm flash.
func Render(s status.Snapshot, phase bool, now time.Time) [2]string {
	switch {
	case s.State.AlarmActive:
		if phase {
			return [2]string{alertTop, alertBottom}
		}
		return [2]string{"", alertBottom}
	case s.Notice.Active(now):
		return s.Notice.Lines
	case !s.HasSample:
		return [2]string{"Waiting for", "sensor data"}
	}

	return [2]string{
		fmt.Sprintf("WI:%.0f T:%.0f %s", s.WI, s.Sample.TemperatureF, hvacLabel(s.State.HVACMode)),
		fmt.Sprintf("S:%.0f L:%s D:%s", s.State.TargetTempF, onOff(s.State.LightOn), doorLabel(s.State.DoorOpen)),
	}
}

func hvacLabel(m logic.HVACMode) string {
	if m == "" {
		return "OFF"
	}
	return string(m)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func doorLabel(open bool) string {
	if open {
		return "OPN"
	}
	return "CLS"
}
