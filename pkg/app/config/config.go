package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/micromint/Simple-DAP/pkg/pins"
	"github.com/micromint/Simple-DAP/pkg/port"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

var (
	ErrUnknownTransfer = errors.New("unknown transfer mode")
	ErrInvalidBoard    = errors.New("invalid board table")
)

// Transfer selects the data processing mode(s) of the dispatch loop.
type Transfer string

const (
	// TransferDAP serves CMSIS-DAP command reports.
	TransferDAP Transfer = "dap"
	// TransferCDC runs the serial bridge.
	TransferCDC Transfer = "cdc"
	// TransferBoth serves both on a composite device.
	TransferBoth Transfer = "both"
)

// DAP reports whether the debug command engine is serviced.
func (t Transfer) DAP() bool {
	return t == TransferDAP || t == TransferBoth
}

// CDC reports whether the serial bridge is serviced.
func (t Transfer) CDC() bool {
	return t == TransferCDC || t == TransferBoth
}

// Config holds the application configuration. Attention!
// To make it possible to overwrite fields with the -overwrite command
// line option each of the struct fields must be in the format
// first letter uppercase -> followed by CamelCase as in the config file.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	TransferString string          `yaml:"transfer"`
	Transfer       Transfer        `yaml:"-"`
	GPIO           GPIOConfig      `yaml:"gpio"`
	Board          BoardConfig     `yaml:"board"`
	USB            USBConfig       `yaml:"usb"`
	UART           UARTConfig      `yaml:"uart"`
	Bridge         BridgeConfig    `yaml:"bridge"`
	Loop           LoopConfig      `yaml:"loop"`
	Flag           FlagConfig      `yaml:"-"`
	Debug          DebugConfig     `yaml:"debug"`
	Webserver      WebserverConfig `yaml:"webserver"`
	MQTT           MQTTConfig      `yaml:"mqtt"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Version    bool
	Debug      string
	ConfigFile string
}

// GPIOConfig selects the gpio backend.
type GPIOConfig struct {
	// Backend is rpi (register access) or sim (in-memory register file)
	Backend string `yaml:"backend"`
	// Chip is the gpio character device of the indicator lines
	Chip string `yaml:"chip"`
}

// BoardConfig is the pin table of the probe, BCM gpio numbers, -1 if not connected.
type BoardConfig struct {
	Clock        int    `yaml:"clock"`
	Data         int    `yaml:"data"`
	SecondaryOut int    `yaml:"secondaryout"`
	SecondaryIn  int    `yaml:"secondaryin"`
	Reset        int    `yaml:"reset"`
	Pull         string `yaml:"pull"`
	Connected    int    `yaml:"connected"`
	Running      int    `yaml:"running"`

	BootPortString    string    `yaml:"bootport"`
	BootPort          port.Mode `yaml:"-"`
	DefaultPortString string    `yaml:"defaultport"`
	DefaultPort       port.Mode `yaml:"-"`
}

// Pins returns the signal table of the pin driver.
func (b BoardConfig) Pins() pins.Board {
	return pins.Board{
		Clock:        b.Clock,
		Data:         b.Data,
		SecondaryOut: b.SecondaryOut,
		SecondaryIn:  b.SecondaryIn,
		Reset:        b.Reset,
		PullUp:       b.Pull != "none",
	}
}

// USBConfig defines the usb device.
type USBConfig struct {
	Bus          string `yaml:"bus"`
	VendorID     uint16 `yaml:"vendorid"`
	ProductID    uint16 `yaml:"productid"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`
	Serial       string `yaml:"serial"`
	PacketSize   int    `yaml:"packetsize"`
	PacketCount  int    `yaml:"packetcount"`
}

// UARTConfig defines the serial device of the bridge.
type UARTConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baudrate"`
}

// BridgeConfig defines the buffers of the serial bridge.
type BridgeConfig struct {
	BufferSize int `yaml:"buffersize"`
	RingSize   int `yaml:"ringsize"`
}

// LoopConfig defines the timing of the dispatch loop.
type LoopConfig struct {
	PollInt  int           `yaml:"poll"`
	Poll     time.Duration `yaml:"-"`
	IdleInt  int           `yaml:"idle"`
	Idle     time.Duration `yaml:"-"`
	BlinkInt int           `yaml:"blink"`
	Blink    time.Duration `yaml:"-"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection  string        `yaml:"connection"`
	Interval    time.Duration `yaml:"-"`
	IntervalInt int           `yaml:"interval"`
	Topic       string        `yaml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	return &Config{
		TransferString: string(TransferDAP),
		GPIO: GPIOConfig{
			Backend: "rpi",
			Chip:    "gpiochip0",
		},
		Board: BoardConfig{
			Clock:             11,
			Data:              25,
			SecondaryOut:      10,
			SecondaryIn:       9,
			Reset:             24,
			Pull:              "up",
			Connected:         17,
			Running:           27,
			BootPortString:    "off",
			DefaultPortString: "swd",
		},
		USB: USBConfig{
			Bus:          "/tmp/softusb",
			VendorID:     0x0d28,
			ProductID:    0x0204,
			Manufacturer: "ARM",
			Product:      "Simple-DAP CMSIS-DAP",
			Serial:       "0001",
			PacketSize:   64,
			PacketCount:  4,
		},
		UART: UARTConfig{
			Device:   "/dev/ttyAMA0",
			BaudRate: 115200,
		},
		Bridge: BridgeConfig{
			BufferSize: 64,
			RingSize:   512,
		},
		Loop: LoopConfig{
			PollInt:  10,
			IdleInt:  1,
			BlinkInt: 500,
		},
		Flag: FlagConfig{},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"status":  true,
			},
		},
		MQTT: MQTTConfig{
			Connection:  "",
			IntervalInt: 10,
			Topic:       "/simpledap/status"},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	return c.derive()
}

// derive converts and validates the raw file values.
func (c *Config) derive() (err error) {
	c.MQTT.Interval = time.Duration(c.MQTT.IntervalInt) * time.Second
	c.Loop.Poll = time.Duration(c.Loop.PollInt) * time.Millisecond
	c.Loop.Idle = time.Duration(c.Loop.IdleInt) * time.Millisecond
	c.Loop.Blink = time.Duration(c.Loop.BlinkInt) * time.Millisecond

	switch t := Transfer(strings.ToLower(strings.TrimSpace(c.TransferString))); t {
	case TransferDAP, TransferCDC, TransferBoth:
		c.Transfer = t
	default:
		return fmt.Errorf("%q: %w", c.TransferString, ErrUnknownTransfer)
	}

	if c.Board.BootPort, err = port.ParseMode(c.Board.BootPortString); err != nil {
		return fmt.Errorf("board.bootport: %w", err)
	}
	if c.Board.DefaultPort, err = port.ParseMode(c.Board.DefaultPortString); err != nil {
		return fmt.Errorf("board.defaultport: %w", err)
	}
	if c.Board.DefaultPort == port.Off {
		c.Board.DefaultPort = port.SWD
	}

	return c.Board.validate()
}

// validate rejects pin tables that use a line twice.
// Aliased indicators are only reported, see led.Aliased.
func (b BoardConfig) validate() error {
	used := map[int]string{}
	for name, pin := range map[string]int{
		"clock":        b.Clock,
		"data":         b.Data,
		"secondaryout": b.SecondaryOut,
		"secondaryin":  b.SecondaryIn,
		"reset":        b.Reset,
	} {
		if pin < 0 {
			continue
		}
		if other, ok := used[pin]; ok {
			return fmt.Errorf("%s and %s on gpio %v: %w", name, other, pin, ErrInvalidBoard)
		}
		used[pin] = name
	}

	for name, pin := range map[string]int{"connected": b.Connected, "running": b.Running} {
		if other, ok := used[pin]; ok && pin >= 0 {
			return fmt.Errorf("%s indicator and %s on gpio %v: %w", name, other, pin, ErrInvalidBoard)
		}
	}

	switch b.Pull {
	case "up", "none", "":
	default:
		return fmt.Errorf("pull %q: %w", b.Pull, ErrInvalidBoard)
	}
	return nil
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
