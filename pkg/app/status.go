package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/micromint/Simple-DAP/pkg/bridge"
	"github.com/micromint/Simple-DAP/pkg/cmsisdap"
	"github.com/micromint/Simple-DAP/pkg/mqtt"
	"github.com/micromint/Simple-DAP/pkg/port"
	"github.com/micromint/Simple-DAP/pkg/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// statusCheck is the interval of the status change detection.
const statusCheck = time.Second

// Status is a snapshot of the probe, served on /status and published to mqtt.
type Status struct {
	Time       time.Time
	Version    string
	Transfer   string
	State      string
	Port       string
	Enumerated bool
	Uptime     string

	Bridge *bridge.Counters `json:",omitempty"`
	UART   *stream.Stats    `json:",omitempty"`
	CDC    *stream.Stats    `json:",omitempty"`
	DAP    *cmsisdap.Stats  `json:",omitempty"`

	Loop struct {
		Iterations uint64
		Errors     uint64
	}
	MQTT struct {
		Published uint64
		Dropped   uint64
	}
}

// Status returns the current status snapshot.
// Every counter is read atomically, so it's safe to call from any goroutine.
func (app *App) Status() Status {
	s := Status{
		Time:     time.Now(),
		Version:  Version(),
		Transfer: string(app.config.Transfer),
		State:    Stopped.String(),
		Port:     port.Off.String(),
	}

	if !app.started.IsZero() {
		s.Uptime = time.Since(app.started).Round(time.Second).String()
	}
	if app.loop != nil {
		s.State = app.loop.State().String()
		s.Loop.Iterations = app.loop.Iterations()
		s.Loop.Errors = app.loop.Errors()
	}
	if app.port != nil {
		s.Port = app.port.Mode().String()
	}
	if app.usb != nil {
		s.Enumerated = app.usb.IsConfigured()
		if serial := app.usb.Serial(); serial != nil {
			st := serial.Stats()
			s.CDC = &st
		}
	}
	if app.pump != nil {
		c := app.pump.Counters()
		s.Bridge = &c
	}
	if app.uart != nil {
		st := app.uart.Stats()
		s.UART = &st
	}
	if app.dap != nil {
		st := app.dap.Stats()
		s.DAP = &st
	}
	if app.mqtt != nil {
		s.MQTT.Published, s.MQTT.Dropped = app.mqtt.Counters()
	}

	return s
}

// HandleStatus is the get probe status web handler.
func (app *App) HandleStatus() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request status")

		ctx.Status(http.StatusOK)
		return ctx.JSON(app.Status())
	}
}

// publishStatus sends the status to the mqtt broker every interval
// and whenever the loop state, the port mode or the enumeration changes.
func (app *App) publishStatus(ctx context.Context) {
	if !app.mqtt.Enabled() {
		return
	}

	ticker := time.NewTicker(statusCheck)
	defer ticker.Stop()

	var last Status
	var lastTime time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s := app.Status()
		if !statusChanged(last, s) && time.Since(lastTime) < app.config.MQTT.Interval {
			continue
		}

		if app.sendMQTT(s) {
			last, lastTime = s, time.Now()
		}
	}
}

// statusChanged reports a change of the fields which trigger an immediate publish.
func statusChanged(old, s Status) bool {
	return old.State != s.State || old.Port != s.Port || old.Enumerated != s.Enumerated
}

func (app *App) sendMQTT(s Status) bool {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		debug.ErrorLog.Printf("sendMQTT marshal: %v", err)
		return false
	}

	return app.mqtt.Publish(mqtt.Message{
		Qos:      0,
		Retained: true,
		Topic:    app.config.MQTT.Topic,
		Payload:  b,
	})
}
