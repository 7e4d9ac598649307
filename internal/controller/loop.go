// Package controller runs the poll/compute/actuate cycle and the display
// refresh of the home-bms daemon.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/home-bms/internal/display"
	"github.com/sweeney/home-bms/internal/logic"
	"github.com/sweeney/home-bms/internal/mqtt"
	"github.com/sweeney/home-bms/internal/sensor"
	"github.com/sweeney/home-bms/internal/status"
)

// Sampler provides one fused sensor sample per call.
type Sampler interface {
	Poll(ctx context.Context) (sensor.Sample, error)
}

// Inputs provides debounced button presses and the motion level.
type Inputs interface {
	PollEvents() ([]logic.Button, bool)
	Requeue(presses []logic.Button)
	Ready() bool
}

// Actuator drives the indicator LEDs.
type Actuator interface {
	Apply(s logic.ControlState, phase bool) error
	Off() error
}

// Recorder is the event log.
type Recorder interface {
	Record(logic.LogEntry)
	Flush() error
}

// Stop is the cancellation cause carrying the shutdown reason
// (e.g. "SIGTERM") into the SHUTDOWN event.
type Stop struct {
	Reason string
}

func (s Stop) Error() string {
	return "stop: " + s.Reason
}

// Deps are the loop's collaborators. Display, Publisher, MQTTStatus and
// Network may be nil.
type Deps struct {
	Sampler    Sampler
	Inputs     Inputs
	Actuator   Actuator
	Display    display.Display
	Log        Recorder
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Tracker    *status.Tracker
	Policy     *logic.Policy
	Network    func() *status.NetworkInfo
	Now        func() time.Time
}

// Options tune the loop.
type Options struct {
	InitialTargetF float64
	Heartbeat      time.Duration // 0 disables
	Splash         time.Duration // each splash screen; 0 skips them
}

// Loop owns the control state. Only the poll goroutine writes it; the
// display goroutine reads published snapshots from the tracker.
type Loop struct {
	d    Deps
	opts Options

	state        logic.ControlState
	notice       logic.Notice
	counts       logic.EventCounts
	cycles       uint64
	sample       sensor.Sample
	hasSample    bool
	sensorErr    string
	phase        bool
	actuatorFail bool
	heartbeat    *logic.Heartbeat
}

// New creates a loop. The initial state has the HVAC off, the door
// closed and the target at opts.InitialTargetF.
func New(d Deps, opts Options) *Loop {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Loop{
		d:    d,
		opts: opts,
		state: logic.ControlState{
			TargetTempF: opts.InitialTargetF,
			HVACMode:    logic.HVACOff,
		},
	}
}

// State returns the current control state. Only call it from the
// goroutine running the loop, or after Run has returned.
func (l *Loop) State() logic.ControlState {
	return l.state
}

// Run shows the splash, then polls on pollTick and refreshes the display
// on displayTick until ctx is cancelled. The cycle in progress when ctx is
// cancelled is completed before shutting down.
func (l *Loop) Run(ctx context.Context, pollTick, displayTick <-chan time.Time) error {
	l.splash(ctx)

	start := l.d.Now()
	l.heartbeat = logic.NewHeartbeat(l.opts.Heartbeat, start)
	l.record(logic.LogEntry{Timestamp: start, Level: logic.LevelInfo, Kind: logic.KindSystem, Message: "SYSTEM STARTED"})
	l.publishFrame(start)
	l.flush()
	l.publishSystem("STARTUP", "", true)

	var wg sync.WaitGroup
	displayCtx, stopDisplay := context.WithCancel(context.Background())
	if l.d.Display != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.runDisplay(displayCtx, displayTick)
		}()
	}

	// Cycles must finish even when ctx is cancelled mid-cycle
	cycleCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			stopDisplay()
			wg.Wait()
			return l.shutdown(ctx)
		case <-pollTick:
			l.cycle(cycleCtx, l.d.Now())
		}
	}
}

func (l *Loop) splash(ctx context.Context) {
	if l.d.Display == nil || l.opts.Splash <= 0 {
		return
	}
	for _, lines := range [][2]string{display.SplashInit, display.SplashReady} {
		if err := l.d.Display.Show(lines); err != nil {
			log.Printf("lcd write error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.opts.Splash):
		}
	}
}

// cycle runs one poll/compute/actuate step. No error escapes it.
func (l *Loop) cycle(ctx context.Context, now time.Time) {
	l.cycles++
	l.phase = !l.phase
	presses, motion := l.d.Inputs.PollEvents()

	sample, err := l.d.Sampler.Poll(ctx)
	if err != nil {
		// Keep the previous state; the presses wait for the next good cycle
		l.d.Inputs.Requeue(presses)
		l.sensorErr = err.Error()
		log.Printf("sensor read error: %v", err)
		l.record(logic.LogEntry{
			Timestamp: now,
			Level:     logic.LevelWarn,
			Kind:      logic.KindSensor,
			Message:   fmt.Sprintf("SENSOR UNAVAILABLE: %v", err),
		})
	} else {
		if l.sensorErr != "" {
			log.Printf("sensor read recovered")
			l.sensorErr = ""
		}
		l.sample, l.hasSample = sample, true

		res := l.d.Policy.Apply(logic.SensorSnapshot{
			TemperatureF:   sample.TemperatureF,
			HumidityPct:    sample.HumidityPct,
			MotionDetected: motion,
			Time:           now,
		}, l.state, presses, now)

		for _, e := range res.Entries {
			log.Printf("event: %s", e.Message)
			l.record(e)
		}
		l.state = res.State
		if res.Notice != nil {
			l.notice = *res.Notice
		}
	}

	l.actuate(now)
	l.publishFrame(now)
	l.flush()

	if l.heartbeat.Due(now) {
		c := l.counts
		log.Printf("heartbeat: cycles=%d alarms=%d hvac=%d doors=%d presses=%d sensor_failures=%d",
			l.cycles, c.AlarmTriggers, c.HVACChanges, c.DoorToggles, c.ButtonPresses, c.SensorFailures)
		if l.d.Network != nil {
			if net := l.d.Network(); net != nil {
				l.d.Tracker.SetNetwork(net)
			}
		}
		l.publishSystem("HEARTBEAT", "", false)
	}
}

func (l *Loop) actuate(now time.Time) {
	err := l.d.Actuator.Apply(l.state, l.phase)
	switch {
	case err != nil && !l.actuatorFail:
		l.actuatorFail = true
		log.Printf("led write error: %v", err)
		l.record(logic.LogEntry{
			Timestamp: now,
			Level:     logic.LevelWarn,
			Kind:      logic.KindActuator,
			Message:   fmt.Sprintf("LED WRITE FAILED: %v", err),
		})
	case err == nil && l.actuatorFail:
		l.actuatorFail = false
		log.Printf("led write recovered")
	}
}

func (l *Loop) record(e logic.LogEntry) {
	l.counts.Add(e)
	l.d.Log.Record(e)
}

func (l *Loop) flush() {
	if err := l.d.Log.Flush(); err != nil {
		log.Printf("event log flush error: %v", err)
	}
}

// publishFrame hands the whole cycle result to readers in one step.
func (l *Loop) publishFrame(now time.Time) {
	wi := 0.0
	if l.hasSample {
		wi = logic.WeatherIndex(l.sample.TemperatureF, l.sample.HumidityPct)
	}
	l.d.Tracker.Publish(status.Frame{
		State:       l.state,
		Sample:      l.sample,
		HasSample:   l.hasSample,
		WI:          wi,
		Notice:      l.notice,
		InputsReady: l.d.Inputs.Ready(),
		Counts:      l.counts,
		SensorError: l.sensorErr,
		Cycles:      l.cycles,
		UpdatedAt:   now,
	})
	if l.d.MQTTStatus != nil {
		l.d.Tracker.SetMQTTConnected(l.d.MQTTStatus.IsConnected())
	}
}

func (l *Loop) publishSystem(event, reason string, retained bool) {
	if l.d.Publisher == nil {
		return
	}
	snap := l.d.Tracker.Snapshot()
	err := l.d.Publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

// runDisplay re-renders the latest published snapshot on every tick. It
// never touches sensor I/O and never blocks the poll loop.
func (l *Loop) runDisplay(ctx context.Context, tick <-chan time.Time) {
	phase := false
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			phase = !phase
			snap := l.d.Tracker.Snapshot()
			err := l.d.Display.Show(display.Render(snap, phase, l.d.Now()))
			switch {
			case err != nil && !failing:
				failing = true
				log.Printf("lcd write error: %v", err)
			case err == nil && failing:
				failing = false
				log.Printf("lcd write recovered")
			}
		}
	}
}

func (l *Loop) shutdown(ctx context.Context) error {
	reason := "UNKNOWN"
	var stop Stop
	if errors.As(context.Cause(ctx), &stop) {
		reason = stop.Reason
	}
	log.Printf("shutting down (%s)", reason)

	var errs []error
	if err := l.d.Actuator.Off(); err != nil {
		errs = append(errs, fmt.Errorf("leds off: %w", err))
	}
	if l.d.Display != nil {
		if err := l.d.Display.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("clear lcd: %w", err))
		}
	}

	now := l.d.Now()
	l.record(logic.LogEntry{Timestamp: now, Level: logic.LevelInfo, Kind: logic.KindSystem, Message: "SYSTEM STOPPED"})
	if err := l.d.Log.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush event log: %w", err))
	}
	l.publishFrame(now)
	l.publishSystem("SHUTDOWN", reason, true)

	for _, err := range errs {
		log.Printf("shutdown: %v", err)
	}
	return errors.Join(errs...)
}
