package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/home-bms/internal/logic"
	"github.com/sweeney/home-bms/internal/sensor"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	cfg := Config{PollMs: 1000, DebounceMs: 30, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, "boot-1", cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.BootID != "boot-1" {
		t.Errorf("BootID: got %q, want boot-1", snap.BootID)
	}
	if snap.Config.PollMs != 1000 {
		t.Errorf("Config.PollMs: got %d, want 1000", snap.Config.PollMs)
	}
	if snap.HasSample {
		t.Error("expected HasSample=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestPublishAndSnapshot(t *testing.T) {
	tr := NewTracker(start, "", Config{})

	tr.Publish(Frame{
		State:     logic.ControlState{TargetTempF: 72, HVACMode: logic.HVACCool, LightOn: true},
		Sample:    sensor.Sample{TemperatureF: 76, HumidityPct: 40},
		HasSample: true,
		WI:        78,
		Counts:    logic.EventCounts{HVACChanges: 2},
		Cycles:    5,
	})

	snap := tr.Snapshot()
	if snap.State.HVACMode != logic.HVACCool {
		t.Errorf("HVACMode: got %q, want COOL", snap.State.HVACMode)
	}
	if snap.WI != 78 {
		t.Errorf("WI: got %v, want 78", snap.WI)
	}
	if snap.Counts.HVACChanges != 2 {
		t.Errorf("Counts.HVACChanges: got %d, want 2", snap.Counts.HVACChanges)
	}
	if got := tr.Frame(); got.Cycles != 5 {
		t.Errorf("Frame().Cycles: got %d, want 5", got.Cycles)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(start, "", Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestPublishKeepsConnectivity(t *testing.T) {
	tr := NewTracker(start, "", Config{})
	tr.SetMQTTConnected(true)
	tr.SetNetwork(&NetworkInfo{IP: "10.0.0.2"})

	tr.Publish(Frame{Cycles: 1})

	snap := tr.Snapshot()
	if !snap.MQTTConnected || snap.Network == nil {
		t.Error("Publish must only replace the frame")
	}
}

func TestSnapshotUsesClock(t *testing.T) {
	tr := NewTracker(start, "", Config{})
	tr.SetClock(func() time.Time { return start.Add(15 * time.Minute) })

	snap := tr.Snapshot()
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, "", Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, "", Config{})
	tr.Publish(Frame{State: logic.ControlState{TargetTempF: 70}})

	snap1 := tr.Snapshot()
	tr.Publish(Frame{State: logic.ControlState{TargetTempF: 74}})

	if snap1.State.TargetTempF != 70 {
		t.Error("snapshot should be a copy; target was modified")
	}
}

func testSnapshot() Snapshot {
	return Snapshot{
		Frame: Frame{
			State: logic.ControlState{
				TargetTempF: 72,
				HVACMode:    logic.HVACHeat,
				LightOn:     true,
			},
			Sample:      sensor.Sample{TemperatureF: 68.04, HumidityPct: 55, HumidityFromAPI: true},
			HasSample:   true,
			WI:          70.79,
			InputsReady: true,
			Counts:      logic.EventCounts{HVACChanges: 5, ButtonPresses: 2},
		},
		BootID:        "b0",
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{PollMs: 1000, DisplayMs: 500, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Control.HVAC != "HEAT" {
		t.Errorf("HVAC: got %q, want HEAT", s.Control.HVAC)
	}
	if s.Control.TargetF != 72 {
		t.Errorf("TargetF: got %v, want 72", s.Control.TargetF)
	}
	if !s.Ready {
		t.Error("expected Ready=true")
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if s.Reading == nil {
		t.Fatal("expected reading")
	}
	if s.Reading.TemperatureF != 68 {
		t.Errorf("TemperatureF: got %v, want 68", s.Reading.TemperatureF)
	}
	if s.Reading.WeatherIndex != 70.8 {
		t.Errorf("WeatherIndex: got %v, want 70.8", s.Reading.WeatherIndex)
	}
	if s.Reading.HumiditySource != "weather_api" {
		t.Errorf("HumiditySource: got %q", s.Reading.HumiditySource)
	}
	if s.Counts.HVACChanges != 5 {
		t.Errorf("Counts.HVACChanges: got %d, want 5", s.Counts.HVACChanges)
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONBeforeFirstCycle(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Control.HVAC != "UNKNOWN" {
		t.Errorf("HVAC: got %q, want UNKNOWN", parsed.Status.Control.HVAC)
	}
	if parsed.Status.Reading != nil {
		t.Error("reading should be omitted before the first sample")
	}
	if parsed.Status.Ready {
		t.Error("expected Ready=false")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.BootID != "b0" {
		t.Errorf("BootID: got %q, want b0", parsed.Status.BootID)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

// Every published frame satisfies AlarmActive => DoorOpen and carries a
// count equal to its cycle number. A reader must never see a mix.
func TestReadersNeverSeeMixedFrames(t *testing.T) {
	tr := NewTracker(start, "", Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 2000; i++ {
			alarm := i%2 == 0
			tr.Publish(Frame{
				State:  logic.ControlState{AlarmActive: alarm, DoorOpen: alarm},
				Counts: logic.EventCounts{HVACChanges: i},
				Cycles: uint64(i),
			})
			tr.SetMQTTConnected(i%3 == 0)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				snap := tr.Snapshot()
				if snap.State.AlarmActive && !snap.State.DoorOpen {
					t.Error("alarm active with door closed")
					return
				}
				if uint64(snap.Counts.HVACChanges) != snap.Cycles {
					t.Errorf("counts from cycle %d in frame %d", snap.Counts.HVACChanges, snap.Cycles)
					return
				}
			}
		}()
	}

	wg.Wait()
}
