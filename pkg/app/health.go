package app

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// health is the payload of /health.
type health struct {
	NumGoroutines      int
	NumCPU             int
	HeapAllocatedBytes uint64
	HeapAllocatedMB    uint64
	SysMemoryBytes     uint64
	SysMemoryMB        uint64
	Version            string
	ProgLang           string
	HostName           string
	Time               string
	// Healthy is false once the dispatch loop stopped
	Healthy bool
	State   string
	Port    string
}

// HandleHealth returns data about the health of myself.
// output example:
//
//	{"NumGoroutines":11,"NumCPU":4,"HeapAllocatedBytes":332256,"HeapAllocatedMB":0,
//	 "SysMemoryBytes":360290312,"SysMemoryMB":343,"Version":"1.6.10+20261001","ProgLang":"go1.22.1",
//	 "HostName":"probe","Time":"2026-10-01T12:00:00Z","Healthy":true,"State":"steady","Port":"swd"}
func (app *App) HandleHealth() fiber.Handler {
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		s := app.Status()
		h := health{
			NumGoroutines:      runtime.NumGoroutine(),
			NumCPU:             runtime.NumCPU(),
			HeapAllocatedBytes: m.Alloc,
			HeapAllocatedMB:    bToMb(m.Alloc),
			SysMemoryBytes:     m.Sys,
			SysMemoryMB:        bToMb(m.Sys),
			ProgLang:           runtime.Version(),
			Version:            VERSION,
			HostName:           host,
			Time:               time.Now().Format(time.RFC3339),
			Healthy:            s.State != Stopped.String(),
			State:              s.State,
			Port:               s.Port,
		}

		if !h.Healthy {
			ctx.Status(http.StatusServiceUnavailable)
		} else {
			ctx.Status(http.StatusOK)
		}
		return ctx.JSON(h)
	}
}
