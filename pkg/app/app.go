package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/micromint/Simple-DAP/pkg/app/config"
	"github.com/micromint/Simple-DAP/pkg/bridge"
	"github.com/micromint/Simple-DAP/pkg/cmsisdap"
	"github.com/micromint/Simple-DAP/pkg/led"
	"github.com/micromint/Simple-DAP/pkg/mqtt"
	"github.com/micromint/Simple-DAP/pkg/pins"
	"github.com/micromint/Simple-DAP/pkg/raspberry"
	"github.com/micromint/Simple-DAP/pkg/swj"
	"github.com/micromint/Simple-DAP/pkg/uart"
	"github.com/micromint/Simple-DAP/pkg/usbd"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// gpio is the register block of the debug port lines
	gpio raspberry.GPIO
	// chip and lines drive the indicators on the rpi backend
	chip  *raspberry.Chip
	lines []*raspberry.Line

	pins *pins.Driver
	port *swj.Controller
	leds *led.Indicator

	usb  *usbd.Device
	uart *uart.Port
	pump *bridge.Pump
	dap  *cmsisdap.Engine
	loop *Loop

	started time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// shutdown signals application shutdown
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	return &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt: mqtt.New(),

		shutdown: make(chan struct{}),
	}, nil
}

// Run starts the application.
// The dispatch loop, the web server and the status publisher run in
// separate goroutines until Close.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.started = time.Now()

	if app.uart != nil {
		app.uart.Start(ctx)
	}

	app.wg.Add(3)
	go func() {
		defer app.wg.Done()
		app.mqtt.Service(ctx)
	}()
	go func() {
		defer app.wg.Done()
		app.publishStatus(ctx)
	}()
	go func() {
		defer app.wg.Done()
		app.runLoop(ctx)
	}()

	go app.runWebServer()
	return nil
}

// runLoop runs the dispatch loop and signals shutdown if it fails.
func (app *App) runLoop(ctx context.Context) {
	err := app.loop.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	debug.ErrorLog.Printf("dispatch loop: %v", err)
	app.shutdownOnce.Do(func() { close(app.shutdown) })
}

// init initializes the application.
func (app *App) init() (err error) {
	cfg := app.config

	if err = app.openHardware(); err != nil {
		debug.ErrorLog.Print(err)
		return err
	}

	if cfg.Debug.File != nil {
		usbd.SetLogOutput(cfg.Debug.File, cfg.Debug.Flag&debug.Debug != 0)
	}

	h, err := usbd.NewFifoHAL(cfg.USB.Bus)
	if err != nil {
		debug.ErrorLog.Printf("can't open usb hal: %v", err)
		return err
	}

	app.usb, err = usbd.New(usbd.Config{
		VendorID:     cfg.USB.VendorID,
		ProductID:    cfg.USB.ProductID,
		Manufacturer: cfg.USB.Manufacturer,
		Product:      cfg.USB.Product,
		Serial:       cfg.USB.Serial,
		HID:          cfg.Transfer.DAP(),
		CDC:          cfg.Transfer.CDC(),
		PacketSize:   cfg.USB.PacketSize,
		PacketCount:  cfg.USB.PacketCount,
		RingSize:     cfg.Bridge.RingSize,
	}, h)
	if err != nil {
		debug.ErrorLog.Printf("can't create usb device: %v", err)
		return err
	}

	var services []Servicer

	if cfg.Transfer.DAP() {
		app.dap = cmsisdap.New(cmsisdap.Info{
			Vendor:      cfg.USB.Manufacturer,
			Product:     cfg.USB.Product,
			Serial:      cfg.USB.Serial,
			Firmware:    firmwareVersion(),
			PacketSize:  cfg.USB.PacketSize,
			PacketCount: cfg.USB.PacketCount,
			DefaultPort: cfg.Board.DefaultPort,
		}, app.usb.Reports(), app.port, app.pins, app.leds)
		services = append(services, app.dap)
	}

	if cfg.Transfer.CDC() {
		app.uart, err = uart.Open(uart.Config{
			Device:   cfg.UART.Device,
			BaudRate: cfg.UART.BaudRate,
			RingSize: cfg.Bridge.RingSize,
		})
		if err != nil {
			debug.ErrorLog.Printf("can't open uart: %v", err)
			return err
		}
		app.pump = bridge.New(app.usb.Serial(), app.uart, cfg.Bridge.BufferSize)
		services = append(services, app.pump)
	}

	app.loop = &Loop{
		Port:      app.port,
		Indicator: app.leds,
		USB:       app.usb,
		BootPort:  cfg.Board.BootPort,
		Services:  services,
		Poll:      cfg.Loop.Poll,
		Idle:      cfg.Loop.Idle,
		Blink:     cfg.Loop.Blink,
	}

	if err = app.mqtt.Connect(cfg.MQTT.Connection, MODULE+"-"+cfg.USB.Serial); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	// initDefaultRoutes should be always called last because it may access things like app.loop
	// which must be initialized before
	app.initDefaultRoutes()

	return nil
}

// Shutdown returns the read only shutdown channel.
// Shutdown is used to be able to react on application shutdown. (see cmd/dapbridge.go)
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

// Close stops the dispatch loop and releases all resources.
// The debug port is left released and the indicators off.
func (app *App) Close() error {
	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	var errs []error
	if app.web != nil {
		if err := app.web.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("web server: %w", err))
		}
	}

	app.closeHardware()

	if app.usb != nil {
		if err := app.usb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("usb: %w", err))
		}
	}
	if app.uart != nil {
		// closing the device unblocks a pending read
		if err := app.uart.Close(); err != nil {
			errs = append(errs, fmt.Errorf("uart: %w", err))
		}
		app.uart.Wait()
	}
	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}

	return errors.Join(errs...)
}
