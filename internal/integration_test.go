package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/home-bms/internal/actuator"
	"github.com/sweeney/home-bms/internal/controller"
	"github.com/sweeney/home-bms/internal/display"
	"github.com/sweeney/home-bms/internal/eventlog"
	"github.com/sweeney/home-bms/internal/gpio"
	"github.com/sweeney/home-bms/internal/input"
	"github.com/sweeney/home-bms/internal/logic"
	"github.com/sweeney/home-bms/internal/mqtt"
	"github.com/sweeney/home-bms/internal/sensor"
	"github.com/sweeney/home-bms/internal/status"
	"github.com/sweeney/home-bms/internal/weather"
	"github.com/sweeney/home-bms/internal/web"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

// stepClock returns start, start+step, ... on successive calls.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type rig struct {
	t       *testing.T
	in      *gpio.FakeInputs
	handler *input.Handler
	reader  *sensor.FakeReader
	leds    *gpio.FakeOutputs
	lcd     *display.FakeDisplay
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	web     *httptest.Server
	logPath string
	clk     *clock
	poll    chan time.Time
	show    chan time.Time
	cancel  context.CancelCauseFunc
	done    chan error
	loop    *controller.Loop
	cycles  uint64
}

func newRig(t *testing.T, humidityAPI *httptest.Server) *rig {
	t.Helper()
	r := &rig{
		t:       t,
		in:      gpio.NewFakeInputs(gpio.Levels{}),
		reader:  sensor.NewFakeReader(sensor.Reading{TemperatureC: sensor.Fahrenheit(80), HumidityPct: 10}),
		leds:    gpio.NewFakeOutputs(),
		lcd:     &display.FakeDisplay{},
		pub:     mqtt.NewFakePublisher(),
		logPath: filepath.Join(t.TempDir(), "bms_log.txt"),
		clk:     &clock{t: t0},
		poll:    make(chan time.Time),
		show:    make(chan time.Time),
		done:    make(chan error, 1),
	}
	r.tracker = status.NewTracker(t0, "boot-int", status.Config{PollMs: 1000, AlarmThreshold: 90})
	r.tracker.SetClock(func() time.Time { return t0 })

	events, err := eventlog.Open(r.logPath, func(e logic.LogEntry) { r.pub.Publish(e) })
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	var humidity sensor.HumiditySource
	if humidityAPI != nil {
		client := weather.NewClient(humidityAPI.URL, "Irvine", "key", time.Second)
		poller := weather.NewPoller(client, events, r.clk.now)
		require.NoError(t, poller.Refresh(context.Background()))
		humidity = poller
	}

	r.handler = input.NewHandler(r.in, 30*time.Millisecond, stepClock(t0, 10*time.Millisecond))
	r.sample(5)
	require.True(t, r.handler.Ready())

	r.loop = controller.New(controller.Deps{
		Sampler:    sensor.NewSampler(r.reader, humidity, 50*time.Millisecond, 1),
		Inputs:     r.handler,
		Actuator:   actuator.NewDriver(r.leds),
		Display:    r.lcd,
		Log:        events,
		Publisher:  r.pub,
		MQTTStatus: r.pub,
		Tracker:    r.tracker,
		Policy:     logic.NewPolicy(logic.DefaultPolicyConfig()),
		Now:        r.clk.now,
	}, controller.Options{InitialTargetF: 72})

	r.web = httptest.NewServer(web.New(":0", r.tracker, time.Hour).Handler())
	t.Cleanup(r.web.Close)

	ctx, cancel := context.WithCancelCause(context.Background())
	r.cancel = cancel
	go func() { r.done <- r.loop.Run(ctx, r.poll, r.show) }()

	// Let startup read the clock before the first tick moves it
	require.Eventually(t, func() bool { return len(r.pub.System()) == 1 }, 2*time.Second, time.Millisecond)
	return r
}

func (r *rig) sample(n int) {
	r.t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(r.t, r.handler.Sample())
	}
}

// press holds a line long enough to debounce, then releases it.
func (r *rig) press(l gpio.Levels) {
	r.in.Set(l)
	r.sample(5)
	r.in.Set(gpio.Levels{})
	r.sample(5)
}

// tick runs one poll cycle and waits for its frame to be published, so
// nothing touches the sensor between ticks.
func (r *rig) tick() {
	r.t.Helper()
	r.cycles++
	r.poll <- r.clk.advance(time.Second)
	require.Eventually(r.t, func() bool { return r.tracker.Frame().Cycles >= r.cycles }, 2*time.Second, time.Millisecond)
}

func (r *rig) status() status.StatusInner {
	r.t.Helper()
	resp, err := http.Get(r.web.URL + "/index.json")
	require.NoError(r.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(r.t, err)
	var s status.StatusJSON
	require.NoError(r.t, json.Unmarshal(body, &s))
	return s.Status
}

func (r *rig) stop(reason string) {
	r.t.Helper()
	r.cancel(controller.Stop{Reason: reason})
	select {
	case err := <-r.done:
		require.NoError(r.t, err)
	case <-time.After(5 * time.Second):
		r.t.Fatal("loop did not stop")
	}
}

func (r *rig) logLines() []string {
	r.t.Helper()
	data, err := os.ReadFile(r.logPath)
	require.NoError(r.t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func messages(entries []logic.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(t, nil)

	// 80F against a 72F target: cooling
	r.tick()

	// Target up one step; still well above the dead band
	r.press(gpio.Levels{TempUp: true})
	r.tick()

	r.press(gpio.Levels{Door: true})
	r.tick()

	// WI 95 + 0.05*10 = 95.5 trips the alarm
	r.reader.SetReadings(sensor.Reading{TemperatureC: sensor.Fahrenheit(95), HumidityPct: 10})
	r.tick()

	s := r.status()
	assert.True(t, s.Ready)
	assert.True(t, s.Control.AlarmActive)
	assert.True(t, s.Control.DoorOpen)
	assert.Equal(t, "OFF", s.Control.HVAC)
	assert.Equal(t, 73.0, s.Control.TargetF)
	require.NotNil(t, s.Reading)
	assert.Equal(t, "sensor", s.Reading.HumiditySource)
	assert.Equal(t, 1, s.Counts.AlarmTriggers)

	// The display goroutine flashes the alert
	r.show <- t0
	r.show <- t0
	r.show <- t0

	r.stop("SIGTERM")

	msgs := messages(r.pub.Published())
	require.NotEmpty(t, msgs)
	assert.Equal(t, "SYSTEM STARTED", msgs[0])
	assert.Contains(t, msgs, "HVAC COOL")
	assert.Contains(t, msgs, "DOOR OPEN")
	assert.Contains(t, strings.Join(msgs, "\n"), "TARGET TEMP 73")
	assert.Contains(t, strings.Join(msgs, "\n"), "FIRE ALARM TRIGGERED")
	assert.Equal(t, "SYSTEM STOPPED", msgs[len(msgs)-1])

	lines := r.logLines()
	require.Len(t, lines, len(msgs), "every log line is also published")
	assert.Equal(t, "[2026-03-01T12:00:00Z] INFO SYSTEM STARTED", lines[0])
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "INFO SYSTEM STOPPED"))

	sys := r.pub.System()
	require.Len(t, sys, 2)
	assert.Equal(t, "STARTUP", sys[0].Event)
	assert.True(t, sys[0].Retained)
	assert.Equal(t, "SHUTDOWN", sys[1].Event)
	assert.Equal(t, "SIGTERM", sys[1].Reason)

	last, ok := r.leds.Last()
	require.True(t, ok)
	assert.Equal(t, gpio.Outputs{}, last, "LEDs off after shutdown")
	assert.Equal(t, 1, r.lcd.ClearCount())

	var alerts int
	for _, f := range r.lcd.Shown() {
		if f[1] == "DOOR OPEN - EVAC" {
			alerts++
		}
	}
	assert.Equal(t, 3, alerts)
}

func TestIntegrationWeatherHumidity(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"main":{"humidity":60}}`))
	}))
	defer api.Close()

	r := newRig(t, api)
	r.tick()

	s := r.status()
	require.NotNil(t, s.Reading)
	assert.Equal(t, "weather_api", s.Reading.HumiditySource)
	assert.Equal(t, 60.0, s.Reading.HumidityPct)
	assert.Equal(t, 83.0, s.Reading.WeatherIndex)
	assert.False(t, s.Control.AlarmActive)

	r.stop("SIGINT")
	assert.Equal(t, "SIGINT", r.pub.System()[1].Reason)
}

func TestIntegrationSensorOutage(t *testing.T) {
	r := newRig(t, nil)
	r.tick()

	r.reader.SetHang(true)
	r.press(gpio.Levels{TempDown: true})
	r.tick()
	r.tick()

	s := r.status()
	assert.NotEmpty(t, s.SensorError)
	assert.Equal(t, 72.0, s.Control.TargetF, "press held while the sensor is down")

	r.reader.SetHang(false)
	r.tick()
	assert.Equal(t, 71.0, r.status().Control.TargetF)
	assert.Empty(t, r.status().SensorError)

	r.stop("SIGTERM")

	var warns int
	for _, l := range r.logLines() {
		if strings.Contains(l, "WARN SENSOR UNAVAILABLE") {
			warns++
		}
	}
	// One entry per failed cycle
	assert.Equal(t, 2, warns)
}
