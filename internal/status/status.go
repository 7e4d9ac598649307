// Package status provides a thread-safe status tracker for the home-bms daemon.
// It is written by the poll loop and read by the display loop, the HTTP
// server and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/home-bms/internal/logic"
	"github.com/sweeney/home-bms/internal/sensor"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs         int64
	DisplayMs      int64
	DebounceMs     int64
	HeartbeatMs    int64
	AlarmThreshold float64
	MinTargetF     float64
	MaxTargetF     float64
	City           string
	Broker         string
	HTTPAddr       string
	LogPath        string
}

// Frame is everything one poll cycle produces. It is published as a unit
// so readers never see the state of one cycle mixed with another.
type Frame struct {
	State       logic.ControlState
	Sample      sensor.Sample
	HasSample   bool
	WI          float64
	Notice      logic.Notice
	InputsReady bool
	Counts      logic.EventCounts
	SensorError string // last sensor failure, cleared on recovery
	Cycles      uint64
	UpdatedAt   time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a copy and stays valid after the lock is released.
type Snapshot struct {
	Frame
	BootID        string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time, boot id and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Publish replaces the current frame. Called from the poll loop once per
// cycle, after the policy has run.
func (t *Tracker) Publish(f Frame) {
	t.mu.Lock()
	t.snap.Frame = f
	t.mu.Unlock()
}

// Frame returns the last published frame.
func (t *Tracker) Frame() Frame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Frame
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set from the tracker clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
