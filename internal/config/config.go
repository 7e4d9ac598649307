// Package config loads and validates the daemon configuration.
//
// Configuration is read once at process start from an optional YAML file
// layered over the defaults. It is never changed at runtime.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/home-bms/internal/display"
	"github.com/sweeney/home-bms/internal/gpio"
	"github.com/sweeney/home-bms/internal/logic"
	"github.com/sweeney/home-bms/internal/sensor"
)

// Error is a configuration problem. The daemon refuses to start on one.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Policy holds the control thresholds.
type Policy struct {
	AlarmThreshold float64       `yaml:"alarm_threshold"`
	ToleranceF     float64       `yaml:"tolerance_f"`
	StepF          float64       `yaml:"step_f"`
	MinTargetF     float64       `yaml:"min_target_f"`
	MaxTargetF     float64       `yaml:"max_target_f"`
	InitialTargetF float64       `yaml:"initial_target_f"`
	DoorPausesHVAC bool          `yaml:"door_pauses_hvac"`
	LightHold      time.Duration `yaml:"light_hold"`
	LogMotion      bool          `yaml:"log_motion"`
	NoticeDuration time.Duration `yaml:"notice_duration"`
}

// GPIO selects the chip and line offsets.
type GPIO struct {
	Chip string    `yaml:"chip"`
	Pins gpio.Pins `yaml:"pins"`
}

// Sensor configures the temperature/humidity sensor.
type Sensor struct {
	Device        string        `yaml:"device"`
	Timeout       time.Duration `yaml:"timeout"`
	AverageWindow int           `yaml:"average_window"`
}

// LCD configures the I2C character display.
type LCD struct {
	Enabled bool   `yaml:"enabled"`
	Bus     string `yaml:"bus"`
	Addr    uint16 `yaml:"addr"`
}

// Weather configures the humidity lookup. An empty API key disables it.
type Weather struct {
	City     string        `yaml:"city"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Enabled reports whether the weather API should be queried.
func (w Weather) Enabled() bool {
	return w.APIKey != "" && w.City != ""
}

// MQTT configures event publishing. An empty broker disables it.
type MQTT struct {
	Broker      string `yaml:"broker"`
	EventsTopic string `yaml:"events_topic"`
	SystemTopic string `yaml:"system_topic"`
	BufferSize  int    `yaml:"buffer_size"`
}

// Config is the complete daemon configuration.
type Config struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	DisplayInterval   time.Duration `yaml:"display_interval"`
	SampleInterval    time.Duration `yaml:"sample_interval"`
	Debounce          time.Duration `yaml:"debounce"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SplashDuration    time.Duration `yaml:"splash_duration"`
	LogPath           string        `yaml:"log_path"`
	HTTPAddr          string        `yaml:"http_addr"`

	Policy  Policy  `yaml:"policy"`
	GPIO    GPIO    `yaml:"gpio"`
	Sensor  Sensor  `yaml:"sensor"`
	LCD     LCD     `yaml:"lcd"`
	Weather Weather `yaml:"weather"`
	MQTT    MQTT    `yaml:"mqtt"`
}

// Default returns the stock configuration.
func Default() Config {
	p := logic.DefaultPolicyConfig()
	return Config{
		PollInterval:      time.Second,
		DisplayInterval:   500 * time.Millisecond,
		SampleInterval:    10 * time.Millisecond,
		Debounce:          30 * time.Millisecond,
		HeartbeatInterval: 15 * time.Minute,
		SplashDuration:    2 * time.Second,
		LogPath:           "bms_log.txt",
		HTTPAddr:          ":8080",
		Policy: Policy{
			AlarmThreshold: p.AlarmThreshold,
			ToleranceF:     p.ToleranceF,
			StepF:          p.StepF,
			MinTargetF:     p.MinTargetF,
			MaxTargetF:     p.MaxTargetF,
			InitialTargetF: 72,
			DoorPausesHVAC: p.DoorPausesHVAC,
			LightHold:      p.LightHold,
			LogMotion:      p.LogMotion,
			NoticeDuration: p.NoticeDuration,
		},
		GPIO: GPIO{
			Chip: gpio.DefaultChip,
			Pins: gpio.DefaultPins,
		},
		Sensor: Sensor{
			Device:        sensor.DefaultIIODevice,
			Timeout:       500 * time.Millisecond,
			AverageWindow: 3,
		},
		LCD: LCD{
			Enabled: true,
			Addr:    display.DefaultAddr,
		},
		Weather: Weather{
			City:     "Irvine",
			Interval: 10 * time.Minute,
			Timeout:  5 * time.Second,
		},
		MQTT: MQTT{
			EventsTopic: "home/bms/events",
			SystemTopic: "home/bms/system",
			BufferSize:  1000,
		},
	}
}

// Load reads the YAML file at path over the defaults. Unknown keys are
// rejected. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, &Error{Field: path, Reason: err.Error()}
	}
	return cfg, nil
}

// ApplyEnv fills settings that may come from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.Weather.APIKey == "" {
		c.Weather.APIKey = getenv("WEATHER_API_KEY")
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	positive := []struct {
		field string
		d     time.Duration
	}{
		{"poll_interval", c.PollInterval},
		{"display_interval", c.DisplayInterval},
		{"sample_interval", c.SampleInterval},
		{"sensor.timeout", c.Sensor.Timeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return &Error{Field: p.field, Reason: "must be positive"}
		}
	}
	nonNegative := []struct {
		field string
		d     time.Duration
	}{
		{"debounce", c.Debounce},
		{"heartbeat_interval", c.HeartbeatInterval},
		{"splash_duration", c.SplashDuration},
		{"policy.light_hold", c.Policy.LightHold},
		{"policy.notice_duration", c.Policy.NoticeDuration},
	}
	for _, p := range nonNegative {
		if p.d < 0 {
			return &Error{Field: p.field, Reason: "must not be negative"}
		}
	}

	p := c.Policy
	if p.MinTargetF >= p.MaxTargetF {
		return &Error{Field: "policy.min_target_f", Reason: fmt.Sprintf("%.1f is not below max_target_f %.1f", p.MinTargetF, p.MaxTargetF)}
	}
	if p.InitialTargetF < p.MinTargetF || p.InitialTargetF > p.MaxTargetF {
		return &Error{Field: "policy.initial_target_f", Reason: fmt.Sprintf("%.1f is outside %.1f-%.1f", p.InitialTargetF, p.MinTargetF, p.MaxTargetF)}
	}
	if p.ToleranceF < 0 {
		return &Error{Field: "policy.tolerance_f", Reason: "must not be negative"}
	}
	if p.StepF <= 0 {
		return &Error{Field: "policy.step_f", Reason: "must be positive"}
	}
	if c.Sensor.AverageWindow < 1 {
		return &Error{Field: "sensor.average_window", Reason: "must be at least 1"}
	}

	seen := make(map[int]string)
	for _, np := range c.GPIO.Pins.Named() {
		if np.Pin < 0 {
			return &Error{Field: "gpio.pins." + np.Name, Reason: "must not be negative"}
		}
		if other, dup := seen[np.Pin]; dup {
			return &Error{Field: "gpio.pins." + np.Name, Reason: fmt.Sprintf("line %d already used by %s", np.Pin, other)}
		}
		seen[np.Pin] = np.Name
	}

	if c.Weather.APIKey != "" {
		if c.Weather.Interval <= 0 {
			return &Error{Field: "weather.interval", Reason: "must be positive"}
		}
		if c.Weather.Timeout <= 0 {
			return &Error{Field: "weather.timeout", Reason: "must be positive"}
		}
	}
	if c.MQTT.Broker != "" && c.MQTT.BufferSize < 0 {
		return &Error{Field: "mqtt.buffer_size", Reason: "must not be negative"}
	}
	return nil
}

// PolicyConfig converts the policy section for logic.NewPolicy.
func (c Config) PolicyConfig() logic.PolicyConfig {
	return logic.PolicyConfig{
		AlarmThreshold: c.Policy.AlarmThreshold,
		ToleranceF:     c.Policy.ToleranceF,
		StepF:          c.Policy.StepF,
		MinTargetF:     c.Policy.MinTargetF,
		MaxTargetF:     c.Policy.MaxTargetF,
		DoorPausesHVAC: c.Policy.DoorPausesHVAC,
		LightHold:      c.Policy.LightHold,
		LogMotion:      c.Policy.LogMotion,
		NoticeDuration: c.Policy.NoticeDuration,
	}
}
