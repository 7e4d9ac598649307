// Command home-bms runs the building management loop: it reads the
// temperature/humidity and motion sensors, decides HVAC, fire alarm, door
// and lighting, and drives the LEDs and LCD.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/home-bms/internal/actuator"
	"github.com/sweeney/home-bms/internal/config"
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

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults apply when empty)")
	broker := flag.String("broker", "", "MQTT broker address, overrides the config file")
	httpAddr := flag.String("http", "", `HTTP status address, overrides the config file ("off" disables)`)
	logPath := flag.String("log", "", "Event log path, overrides the config file")
	noLCD := flag.Bool("no-lcd", false, "Run without the LCD")
	printState := flag.Bool("print-state", false, "Print current inputs and sensor reading and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyFlags(&cfg, *broker, *httpAddr, *logPath, *noLCD)
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printState {
		if err := printCurrentState(cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags layers non-empty command line overrides onto cfg.
func applyFlags(cfg *config.Config, broker, httpAddr, logPath string, noLCD bool) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTPAddr = ""
	default:
		cfg.HTTPAddr = httpAddr
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	if noLCD {
		cfg.LCD.Enabled = false
	}
}

func run(cfg config.Config) error {
	startTime := time.Now()
	bootID := uuid.NewString()

	tracker := status.NewTracker(startTime, bootID, statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// MQTT is optional; without a broker events only go to the log file
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			Topics:     mqtt.Topics{Events: cfg.MQTT.EventsTopic, System: cfg.MQTT.SystemTopic},
			BufferSize: cfg.MQTT.BufferSize,
			OnStatus:   tracker.SetMQTTConnected,
		})
		if err != nil {
			log.Printf("mqtt disabled: %v", err)
		} else {
			defer p.Close()
			publisher, mqttStatus = p, p
		}
	}

	var hooks []eventlog.Hook
	if publisher != nil {
		hooks = append(hooks, func(e logic.LogEntry) {
			if err := publisher.Publish(e); err != nil {
				log.Printf("publish error: %v", err)
			}
		})
	}
	events, err := eventlog.Open(cfg.LogPath, hooks...)
	if err != nil {
		return err
	}
	defer events.Close()

	inputs, err := gpio.NewRealInputs(cfg.GPIO.Chip, cfg.GPIO.Pins)
	if err != nil {
		return fmt.Errorf("init gpio inputs: %w", err)
	}
	defer inputs.Close()

	outputs, err := gpio.NewRealOutputs(cfg.GPIO.Chip, cfg.GPIO.Pins)
	if err != nil {
		return fmt.Errorf("init gpio outputs: %w", err)
	}
	leds := actuator.NewDriver(outputs)
	defer leds.Close()

	var lcd display.Display
	if cfg.LCD.Enabled {
		l, err := display.Open(cfg.LCD.Bus, cfg.LCD.Addr)
		if err != nil {
			log.Printf("lcd disabled: %v", err)
		} else {
			defer l.Close()
			lcd = l
		}
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	var wg sync.WaitGroup

	handler := input.NewHandler(inputs, cfg.Debounce, time.Now)
	sampleTicker := time.NewTicker(cfg.SampleInterval)
	defer sampleTicker.Stop()
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.Run(ctx, sampleTicker.C)
	}()

	var humidity sensor.HumiditySource
	if cfg.Weather.Enabled() {
		client := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.City, cfg.Weather.APIKey, cfg.Weather.Timeout)
		poller := weather.NewPoller(client, events, time.Now)
		weatherTicker := time.NewTicker(cfg.Weather.Interval)
		defer weatherTicker.Stop()
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx, weatherTicker.C)
		}()
		humidity = poller
		log.Printf("weather humidity enabled for %s every %v", cfg.Weather.City, cfg.Weather.Interval)
	}
	sampler := sensor.NewSampler(sensor.NewIIOReader(cfg.Sensor.Device), humidity, cfg.Sensor.Timeout, cfg.Sensor.AverageWindow)

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, 5*cfg.PollInterval+cfg.SplashDuration*2)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	loop := controller.New(controller.Deps{
		Sampler:    sampler,
		Inputs:     handler,
		Actuator:   leds,
		Display:    lcd,
		Log:        events,
		Publisher:  publisher,
		MQTTStatus: mqttStatus,
		Tracker:    tracker,
		Policy:     logic.NewPolicy(cfg.PolicyConfig()),
		Network:    readNetworkInfo,
		Now:        time.Now,
	}, controller.Options{
		InitialTargetF: cfg.Policy.InitialTargetF,
		Heartbeat:      cfg.HeartbeatInterval,
		Splash:         cfg.SplashDuration,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Printf("received %v, shutting down", s)
		cancel(controller.Stop{Reason: signalName(s)})
	}()

	log.Printf("started: boot=%s poll=%v display=%v debounce=%v broker=%q log=%s",
		bootID, cfg.PollInterval, cfg.DisplayInterval, cfg.Debounce, cfg.MQTT.Broker, cfg.LogPath)

	pollTicker := time.NewTicker(cfg.PollInterval)
	defer pollTicker.Stop()
	displayTicker := time.NewTicker(cfg.DisplayInterval)
	defer displayTicker.Stop()

	err = loop.Run(ctx, pollTicker.C, displayTicker.C)
	wg.Wait()
	if err != nil {
		// Shutdown problems are reported but do not make the exit fail
		log.Printf("shutdown incomplete: %v", err)
	}
	return nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		PollMs:         cfg.PollInterval.Milliseconds(),
		DisplayMs:      cfg.DisplayInterval.Milliseconds(),
		DebounceMs:     cfg.Debounce.Milliseconds(),
		HeartbeatMs:    cfg.HeartbeatInterval.Milliseconds(),
		AlarmThreshold: cfg.Policy.AlarmThreshold,
		MinTargetF:     cfg.Policy.MinTargetF,
		MaxTargetF:     cfg.Policy.MaxTargetF,
		City:           cfg.Weather.City,
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTPAddr,
		LogPath:        cfg.LogPath,
	}
}

func printCurrentState(cfg config.Config) error {
	inputs, err := gpio.NewRealInputs(cfg.GPIO.Chip, cfg.GPIO.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer inputs.Close()

	lv, err := inputs.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Println(formatLevels(lv))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Sensor.Timeout)
	defer cancel()
	r, err := sensor.NewIIOReader(cfg.Sensor.Device).Read(ctx)
	if err != nil {
		fmt.Printf("sensor: %v\n", err)
		return nil
	}
	fmt.Println(formatReading(r))
	return nil
}

func formatLevels(lv gpio.Levels) string {
	return fmt.Sprintf("TEMP_UP: %s, TEMP_DOWN: %s, DOOR: %s, MOTION: %s",
		stateString(lv.TempUp), stateString(lv.TempDown), stateString(lv.Door), stateString(lv.Motion))
}

func formatReading(r sensor.Reading) string {
	f := logic.CelsiusToFahrenheit(r.TemperatureC)
	return fmt.Sprintf("TEMP: %.1fF, HUMIDITY: %.0f%%, WI: %.1f", f, r.HumidityPct, logic.WeatherIndex(f, r.HumidityPct))
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
