// Package cmsisdap answers CMSIS-DAP command reports with the primitive
// operations of the debug port.
//
// Only the commands that map directly onto pin, port mode and indicator
// operations are handled. Every other command is answered with DAP_Invalid.
package cmsisdap

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/micromint/Simple-DAP/pkg/port"

	"github.com/womat/debug"
)

// maxPinWait caps the DAP_SWJ_Pins wait time.
const maxPinWait = 3 * time.Second

// Reports is the HID report transport.
type Reports interface {
	Receive(p []byte) (int, bool)
	Send(p []byte) bool
	Free() int
}

// Port switches the debug port mode.
type Port interface {
	Configure(mode port.Mode)
	Mode() port.Mode
}

// Pins reads and writes single debug port signals.
type Pins interface {
	Read(s port.Signal) port.StateType
	Write(s port.Signal, level port.StateType)
}

// Indicator is the status LED pair.
type Indicator interface {
	SetConnected(on bool)
	SetRunning(on bool)
}

// Info is the probe identification returned by DAP_Info.
type Info struct {
	Vendor      string
	Product     string
	Serial      string
	Firmware    string
	PacketSize  int
	PacketCount int
	// DefaultPort is used for DAP_Connect with port 0.
	DefaultPort port.Mode
}

// Stats are the command counters of an engine.
type Stats struct {
	Commands uint64
	Invalid  uint64
	// Clock is the last requested SWJ clock in Hz.
	Clock uint32
}

// Engine executes CMSIS-DAP commands.
type Engine struct {
	info    Info
	reports Reports
	port    Port
	pins    Pins
	leds    Indicator

	req  []byte
	resp []byte

	commands atomic.Uint64
	invalid  atomic.Uint64
	clock    atomic.Uint32

	sleep func(time.Duration)
	now   func() time.Time
}

// New returns an engine serving reports.
func New(info Info, reports Reports, p Port, pins Pins, leds Indicator) *Engine {
	if info.PacketSize <= 0 {
		info.PacketSize = 64
	}
	if info.PacketCount <= 0 {
		info.PacketCount = 1
	}
	if info.DefaultPort == port.Off {
		info.DefaultPort = port.SWD
	}
	return &Engine{
		info:    info,
		reports: reports,
		port:    p,
		pins:    pins,
		leds:    leds,
		req:     make([]byte, info.PacketSize),
		resp:    make([]byte, info.PacketSize),
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// Service answers at most one pending command report.
// It reports whether a command was executed.
func (e *Engine) Service(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	// keep the request pending until the response can be queued
	if e.reports.Free() == 0 {
		return false, nil
	}

	n, ok := e.reports.Receive(e.req)
	if !ok {
		return false, nil
	}

	m := e.Execute(e.req[:n], e.resp)
	if !e.reports.Send(e.resp[:m]) {
		debug.ErrorLog.Printf("dap response 0x%02x dropped", e.resp[0])
	}
	return true, nil
}

// Stats returns the command counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Commands: e.commands.Load(),
		Invalid:  e.invalid.Load(),
		Clock:    e.clock.Load(),
	}
}

// Execute runs the command in req and writes the response to resp.
// It returns the response length. resp must hold at least 2 bytes.
func (e *Engine) Execute(req, resp []byte) int {
	e.commands.Add(1)
	if len(req) == 0 {
		return e.reject(resp)
	}

	debug.TraceLog.Printf("dap command 0x%02x", req[0])

	resp[0] = req[0]
	switch req[0] {
	case CmdInfo:
		if len(req) < 2 {
			return e.reject(resp)
		}
		return e.dapInfo(req[1], resp)

	case CmdHostStatus:
		if len(req) < 3 {
			return e.reject(resp)
		}
		on := req[2] != 0
		switch req[1] {
		case HostConnected:
			e.leds.SetConnected(on)
		case HostRunning:
			e.leds.SetRunning(on)
		}
		resp[1] = StatusOK
		return 2

	case CmdConnect:
		if len(req) < 2 {
			return e.reject(resp)
		}
		resp[1] = e.connect(req[1])
		return 2

	case CmdDisconnect:
		e.port.Configure(port.Off)
		resp[1] = StatusOK
		return 2

	case CmdDelay:
		if len(req) < 3 {
			return e.reject(resp)
		}
		e.sleep(time.Duration(binary.LittleEndian.Uint16(req[1:3])) * time.Microsecond)
		resp[1] = StatusOK
		return 2

	case CmdResetTarget:
		if len(resp) < 3 {
			return e.reject(resp)
		}
		// no device specific reset sequence
		resp[1] = StatusOK
		resp[2] = 0
		return 3

	case CmdSWJPins:
		if len(req) < 7 {
			return e.reject(resp)
		}
		wait := time.Duration(binary.LittleEndian.Uint32(req[3:7])) * time.Microsecond
		resp[1] = e.swjPins(req[1], req[2], wait)
		return 2

	case CmdSWJClock:
		if len(req) < 5 {
			return e.reject(resp)
		}
		hz := binary.LittleEndian.Uint32(req[1:5])
		if hz == 0 {
			resp[1] = StatusError
			return 2
		}
		e.clock.Store(hz)
		resp[1] = StatusOK
		return 2

	default:
		return e.reject(resp)
	}
}

func (e *Engine) reject(resp []byte) int {
	e.invalid.Add(1)
	resp[0] = CmdInvalid
	return 1
}

func (e *Engine) dapInfo(id byte, resp []byte) int {
	var data []byte

	switch id {
	case InfoVendor:
		data = []byte(e.info.Vendor)
	case InfoProduct:
		data = []byte(e.info.Product)
	case InfoSerial:
		data = []byte(e.info.Serial)
	case InfoFirmware:
		data = []byte(e.info.Firmware)
	case InfoTargetVendor, InfoTargetName:
	case InfoCapabilities:
		data = []byte{CapSWD | CapJTAG}
	case InfoPacketCount:
		data = []byte{byte(e.info.PacketCount)}
	case InfoPacketSize:
		data = binary.LittleEndian.AppendUint16(nil, uint16(e.info.PacketSize))
	}

	if room := len(resp) - 2; len(data) > room {
		data = data[:room]
	}
	resp[1] = byte(len(data))
	return 2 + copy(resp[2:], data)
}

// connect returns the selected port, 0 if none.
func (e *Engine) connect(p byte) byte {
	mode := port.Off
	switch p {
	case PortDefault:
		mode = e.info.DefaultPort
	case PortSWD:
		mode = port.SWD
	case PortJTAG:
		mode = port.JTAG
	}

	e.port.Configure(mode)
	debug.DebugLog.Printf("dap connect port %v: %v", p, mode)

	switch mode {
	case port.SWD:
		return PortSWD
	case port.JTAG:
		return PortJTAG
	default:
		return 0
	}
}

var swjSignals = []struct {
	bit    uint
	signal port.Signal
}{
	{PinSWCLK, port.Clock},
	{PinSWDIO, port.Data},
	{PinTDI, port.SecondaryOut},
	{PinNRESET, port.Reset},
}

// swjOutputs are the DAP_SWJ_Pins bits with a writable signal.
const swjOutputs = 1<<PinSWCLK | 1<<PinSWDIO | 1<<PinTDI | 1<<PinNRESET

// swjPins writes the selected output pins, waits until they read back the
// requested levels or the wait time is over and returns the pin levels.
func (e *Engine) swjPins(value, selected byte, wait time.Duration) byte {
	for _, p := range swjSignals {
		if selected&(1<<p.bit) == 0 {
			continue
		}
		e.pins.Write(p.signal, port.Level(value&(1<<p.bit) != 0))
	}

	if wait > maxPinWait {
		wait = maxPinWait
	}
	mask := selected & swjOutputs
	if wait > 0 && mask != 0 {
		deadline := e.now().Add(wait)
		for (e.readPins()^value)&mask != 0 && e.now().Before(deadline) {
			e.sleep(time.Microsecond)
		}
	}

	return e.readPins()
}

func (e *Engine) readPins() byte {
	var b byte
	set := func(bit uint, s port.Signal) {
		if e.pins.Read(s) == port.High {
			b |= 1 << bit
		}
	}
	set(PinSWCLK, port.Clock)
	set(PinSWDIO, port.Data)
	set(PinTDI, port.SecondaryOut)
	set(PinTDO, port.SecondaryIn)
	set(PinNRESET, port.Reset)
	return b
}
