package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"strings"
	"time"

	"github.com/sweeney/home-bms/internal/display"
	"github.com/sweeney/home-bms/internal/logic"
	"github.com/sweeney/home-bms/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"hvac": func(m logic.HVACMode) string {
		if m == "" {
			return "OFF"
		}
		return string(m)
	},
}).Parse(indexHTML))

// formatUptime renders d as "3d 4h 5m 6s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{secs / 86400, "d"},
		{secs / 3600 % 24, "h"},
		{secs / 60 % 60, "m"},
	}
	var b strings.Builder
	for _, p := range parts {
		if p.n > 0 || b.Len() > 0 {
			fmt.Fprintf(&b, "%d%s ", p.n, p.unit)
		}
	}
	fmt.Fprintf(&b, "%ds", secs%60)
	return b.String()
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Home BMS</title>
<style>
body { font: 14px/1.4 ui-monospace, Menlo, monospace; max-width: 40em; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1em; text-transform: uppercase; color: #666; margin: 1.5em 0 0.3em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 6px; border-bottom: 1px dotted #ccc; }
th { font-weight: normal; color: #555; width: 12em; }
.on, .connected { color: #080; font-weight: bold; }
.off { color: #999; }
.disconnected { color: #c00; }
.alarm { color: #fff; background: #c00; font-weight: bold; padding: 0.5em; }
pre.lcd { background: #9c3; color: #000; display: inline-block; padding: 6px; margin: 0.5em 0; }
</style>
</head>
<body>
<h1>Home BMS</h1>
{{if .State.AlarmActive}}<p class="alarm">FIRE ALARM ACTIVE: door open, HVAC off</p>{{end}}

<pre class="lcd">{{index .LCD 0}}
{{index .LCD 1}}</pre>

<h2>Control</h2>
<table>
<tr><th>HVAC</th><td class="{{if eq (hvac .State.HVACMode) "OFF"}}off{{else}}on{{end}}">{{hvac .State.HVACMode}}</td></tr>
<tr><th>Target</th><td>{{printf "%.0f" .State.TargetTempF}}&deg;F</td></tr>
<tr><th>Door</th><td>{{if .State.DoorOpen}}open{{else}}closed{{end}}</td></tr>
<tr><th>Light</th><td class="{{if .State.LightOn}}on{{else}}off{{end}}">{{if .State.LightOn}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Inputs ready</th><td>{{if .InputsReady}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Environment</h2>
<table>
{{if .HasSample}}<tr><th>Temperature</th><td>{{printf "%.1f" .Sample.TemperatureF}}&deg;F</td></tr>
<tr><th>Humidity</th><td>{{printf "%.0f" .Sample.HumidityPct}}% ({{if .Sample.HumidityFromAPI}}weather API{{else}}sensor{{end}})</td></tr>
<tr><th>Weather Index</th><td>{{printf "%.1f" .WI}} (alarm above {{printf "%.0f" .Config.AlarmThreshold}})</td></tr>
{{else}}<tr><th>Sensor</th><td>waiting for data</td></tr>{{end}}
{{if .SensorError}}<tr><th>Sensor error</th><td class="disconnected">{{.SensorError}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
{{$mqtt := "disconnected"}}{{if .MQTTConnected}}{{$mqtt = "connected"}}{{end}}<tr><th>MQTT</th><td class="{{$mqtt}}">{{$mqtt}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>Address</th><td>{{.Network.IP}}{{if .Network.Gateway}} via {{.Network.Gateway}}{{end}}</td></tr>{{end}}
</table>

<h2>Events</h2>
<table>
<tr><th>Fire alarms</th><td>{{.Counts.AlarmTriggers}}</td></tr>
<tr><th>HVAC changes</th><td>{{.Counts.HVACChanges}}</td></tr>
<tr><th>Door toggles</th><td>{{.Counts.DoorToggles}}</td></tr>
<tr><th>Target changes</th><td>{{.Counts.ButtonPresses}}</td></tr>
<tr><th>Sensor failures</th><td>{{.Counts.SensorFailures}}</td></tr>
<tr><th>LED write failures</th><td>{{.Counts.WriteFailures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05"}} UTC</td></tr>
<tr><th>Boot ID</th><td>{{.BootID}}</td></tr>
<tr><th>Intervals</th><td>poll {{.Config.PollMs}}ms, display {{.Config.DisplayMs}}ms, debounce {{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if .Config.HeartbeatMs}}{{.Config.HeartbeatMs}}ms{{else}}off{{end}}</td></tr>
<tr><th>Event log</th><td>{{.Config.LogPath}}</td></tr>
</table>

<p><a href="/index.json">index.json</a> &middot; <a href="/healthz">healthz</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.Snapshot
		Uptime time.Duration
		LCD    [2]string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		LCD:      display.Render(snap, true, snap.Now),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web template error: %v", err)
	}
}
