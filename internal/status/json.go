package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Ready         bool         `json:"ready"`
	Control       ControlJSON  `json:"control"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	SensorError   string       `json:"sensor_error,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ControlJSON is the JSON representation of the control state.
type ControlJSON struct {
	TargetF     float64 `json:"target_f"`
	HVAC        string  `json:"hvac"`
	DoorOpen    bool    `json:"door_open"`
	AlarmActive bool    `json:"alarm_active"`
	LightOn     bool    `json:"light_on"`
}

// ReadingJSON is the JSON representation of the latest sensor reading.
type ReadingJSON struct {
	TemperatureF   float64 `json:"temperature_f"`
	HumidityPct    float64 `json:"humidity_pct"`
	HumiditySource string  `json:"humidity_source"`
	WeatherIndex   float64 `json:"weather_index"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	AlarmTriggers  int `json:"alarm_triggers"`
	HVACChanges    int `json:"hvac_changes"`
	DoorToggles    int `json:"door_toggles"`
	ButtonPresses  int `json:"button_presses"`
	SensorFailures int `json:"sensor_failures"`
	WriteFailures  int `json:"write_failures"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64   `json:"poll_ms"`
	DisplayMs      int64   `json:"display_ms"`
	DebounceMs     int64   `json:"debounce_ms"`
	HeartbeatMs    int64   `json:"heartbeat_ms"`
	AlarmThreshold float64 `json:"alarm_threshold"`
	MinTargetF     float64 `json:"min_target_f"`
	MaxTargetF     float64 `json:"max_target_f"`
	City           string  `json:"city,omitempty"`
	Broker         string  `json:"broker"`
	HTTPAddr       string  `json:"http_addr"`
	LogPath        string  `json:"log_path"`
}

// round1 keeps one decimal place for presentation only.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func buildInner(snap Snapshot) StatusInner {
	hvac := string(snap.State.HVACMode)
	if hvac == "" {
		hvac = "UNKNOWN"
	}

	inner := StatusInner{
		BootID: snap.BootID,
		Ready:  snap.InputsReady && snap.HasSample,
		Control: ControlJSON{
			TargetF:     snap.State.TargetTempF,
			HVAC:        hvac,
			DoorOpen:    snap.State.DoorOpen,
			AlarmActive: snap.State.AlarmActive,
			LightOn:     snap.State.LightOn,
		},
		SensorError:   snap.SensorError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			AlarmTriggers:  snap.Counts.AlarmTriggers,
			HVACChanges:    snap.Counts.HVACChanges,
			DoorToggles:    snap.Counts.DoorToggles,
			ButtonPresses:  snap.Counts.ButtonPresses,
			SensorFailures: snap.Counts.SensorFailures,
			WriteFailures:  snap.Counts.WriteFailures,
		},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			DisplayMs:      snap.Config.DisplayMs,
			DebounceMs:     snap.Config.DebounceMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			AlarmThreshold: snap.Config.AlarmThreshold,
			MinTargetF:     snap.Config.MinTargetF,
			MaxTargetF:     snap.Config.MaxTargetF,
			City:           snap.Config.City,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
			LogPath:        snap.Config.LogPath,
		},
	}

	if snap.HasSample {
		src := "sensor"
		if snap.Sample.HumidityFromAPI {
			src = "weather_api"
		}
		inner.Reading = &ReadingJSON{
			TemperatureF:   round1(snap.Sample.TemperatureF),
			HumidityPct:    round1(snap.Sample.HumidityPct),
			HumiditySource: src,
			WeatherIndex:   round1(snap.WI),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
