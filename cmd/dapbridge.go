package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/micromint/Simple-DAP/pkg/app"
	"github.com/micromint/Simple-DAP/pkg/app/config"
	"github.com/micromint/Simple-DAP/pkg/probe"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

const defaultConfigFile = "/opt/simpledap/config/" + app.MODULE + ".yaml"

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "CMSIS-DAP probe and usb serial bridge on a Raspberry Pi",
		Version: app.VERSION,
		Description: "Drives the SWD/JTAG debug port of a target from the gpio header" +
			"\n and presents a CMSIS-DAP HID interface and/or a CDC-ACM serial bridge to the" +
			"\n usb host. The transfer mode is selected by the configuration file.",
		UsageText: "dapbridge [--config <file>] [--log standard|debug|trace] [scan]" +
			"\n\nEXAMPLE:" +
			"\n\tstart the probe and use the configuration file dapbridge.yaml" +
			"\n\t\tdapbridge --config /opt/simpledap/dapbridge.yaml" +
			"\n\tlist the CMSIS-DAP probes attached to this host" +
			"\n\t\tdapbridge scan",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.Debug, Value: "", Usage: "`LEVEL` overrides the configured log level (standard|debug|trace|full)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "list CMSIS-DAP probes attached to this host",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "known", Aliases: []string{"k"}, Usage: "match the known probe ids only, ignore the configuration file"},
				},
				Action: func(ctx *cli.Context) error {
					debug.SetDebug(os.Stderr, debug.Standard)

					ids := probe.Known
					if !ctx.Bool("known") {
						if err := cfg.LoadConfig(); err != nil {
							return err
						}
						debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
						ids = append([]probe.ID{{
							VendorID:    cfg.USB.VendorID,
							ProductID:   cfg.USB.ProductID,
							Description: cfg.USB.Product,
						}}, probe.Known...)
					}

					probes, err := probe.Discover(ctx.Context, ids)
					if err != nil {
						return err
					}
					if len(probes) == 0 {
						fmt.Println("no probe found")
						return nil
					}
					for _, p := range probes {
						fmt.Println(p)
					}
					return nil
				},
			},
		},
		Action: func(ctx *cli.Context) error {
			if err := cfg.LoadConfig(); err != nil {
				return err
			}

			debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
			defer func() {
				debug.InfoLog.Printf("closing debug file %s", cfg.Debug.FileString)
				_ = cfg.Debug.File.Close()
			}()

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer func() {
				debug.InfoLog.Printf("closing app %s", app.Version())
				if err := a.Close(); err != nil {
					debug.ErrorLog.Printf("close: %v", err)
				}
			}()

			debug.InfoLog.Printf("starting app %s, transfer %v", app.Version(), cfg.Transfer)
			if err = a.Run(); err != nil {
				return err
			}

			// capture exit signals to ensure resources are released on exit.
			sig, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case <-sig.Done():
				debug.InfoLog.Print("Got exit signal. Aborting...")
			case <-a.Shutdown():
				return fmt.Errorf("%s stopped", app.MODULE)
			}
			return nil
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	err := cliApp.Run(os.Args)
	if err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
}
