package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/micromint/Simple-DAP/pkg/app/config"
	"github.com/micromint/Simple-DAP/pkg/mqtt"
	"github.com/micromint/Simple-DAP/pkg/port"
	"github.com/micromint/Simple-DAP/pkg/raspberry"

	"github.com/gofiber/fiber/v2"
)

func simConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.GPIO.Backend = raspberry.BackendSim
	cfg.Transfer = config.TransferDAP
	return cfg
}

func simApp(t *testing.T, cfg *config.Config) (*App, *raspberry.SimGPIO) {
	t.Helper()

	app := &App{
		config: cfg,
		web:    fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt:   mqtt.New(),
	}
	if err := app.openHardware(); err != nil {
		t.Fatalf("openHardware failed: %v", err)
	}
	t.Cleanup(app.closeHardware)

	sim, ok := app.gpio.(*raspberry.SimGPIO)
	if !ok {
		t.Fatalf("expected sim gpio, got %T", app.gpio)
	}
	return app, sim
}

func TestOpenHardwareSim(t *testing.T) {
	cfg := simConfig()
	app, sim := simApp(t, cfg)

	app.port.Setup()
	if app.port.Mode() != port.Off {
		t.Errorf("expected port off, got %v", app.port.Mode())
	}

	app.leds.SetConnected(true)
	if !sim.IsOutput(cfg.Board.Connected) || !sim.Latch(cfg.Board.Connected) {
		t.Error("expected connected indicator on")
	}
	if sim.Latch(cfg.Board.Running) {
		t.Error("expected running indicator off")
	}

	app.port.Configure(port.SWD)
	app.closeHardware()
	if app.port.Mode() != port.Off {
		t.Errorf("expected port released on close, got %v", app.port.Mode())
	}
	if sim.IsOutput(cfg.Board.Clock) {
		t.Error("expected clock released on close")
	}
}

func TestAliasedIndicatorsShareOutput(t *testing.T) {
	cfg := simConfig()
	cfg.Board.Running = cfg.Board.Connected
	app, sim := simApp(t, cfg)

	app.leds.SetRunning(true)
	if !sim.Latch(cfg.Board.Connected) {
		t.Error("expected shared line on")
	}
	app.leds.SetConnected(false)
	if sim.Latch(cfg.Board.Connected) {
		t.Error("expected shared line off")
	}
}

func TestIndicatorsNotConnected(t *testing.T) {
	cfg := simConfig()
	cfg.Board.Connected = -1
	cfg.Board.Running = -1
	app, _ := simApp(t, cfg)

	// no outputs, nothing to drive
	app.leds.SetConnected(true)
	app.leds.SetRunning(true)
}

func TestHandleStatus(t *testing.T) {
	cfg := simConfig()
	app, _ := simApp(t, cfg)
	app.loop = &Loop{}
	app.port.Setup()
	app.port.Configure(port.JTAG)
	app.initDefaultRoutes()

	resp, err := app.web.Test(httptest.NewRequest(http.MethodGet, "/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %v", resp.StatusCode)
	}

	var s Status
	if err = json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Transfer != "dap" || s.Port != "jtag" || s.State != Booting.String() {
		t.Errorf("unexpected status %+v", s)
	}
	if s.Bridge != nil || s.UART != nil || s.DAP != nil {
		t.Errorf("expected no transfer counters, got %+v", s)
	}
	if s.Version != Version() {
		t.Errorf("expected version %q, got %q", Version(), s.Version)
	}
}

func TestHealthWithoutLoop(t *testing.T) {
	cfg := simConfig()
	app, _ := simApp(t, cfg)
	app.initDefaultRoutes()

	resp, err := app.web.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a running loop, got %v", resp.StatusCode)
	}
}

func TestDisabledRoute(t *testing.T) {
	cfg := simConfig()
	cfg.Webserver.Webservices["status"] = false
	app, _ := simApp(t, cfg)
	app.initDefaultRoutes()

	resp, err := app.web.Test(httptest.NewRequest(http.MethodGet, "/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %v", resp.StatusCode)
	}
}

func TestStatusChanged(t *testing.T) {
	base := Status{State: "steady", Port: "swd", Enumerated: true}

	tests := []struct {
		name string
		s    Status
		want bool
	}{
		{"same", base, false},
		{"counters only", Status{State: "steady", Port: "swd", Enumerated: true, Uptime: "1m0s"}, false},
		{"state", Status{State: "stopped", Port: "swd", Enumerated: true}, true},
		{"port", Status{State: "steady", Port: "jtag", Enumerated: true}, true},
		{"enumeration", Status{State: "steady", Port: "swd"}, true},
	}
	for _, tt := range tests {
		if got := statusChanged(base, tt.s); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestVersion(t *testing.T) {
	if got, want := Version(), MODULE+" V"+firmwareVersion(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if firmwareVersion() == VERSION {
		t.Error("expected build date stripped")
	}
}
