// witrn-worker is the acquisition process: it owns the HID device and
// streams decoded records to its parent over stdout. Keeping the device
// in its own process means a wedged read or a driver fault never takes
// the capture daemon down with it.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/LauH1987/witrn-pd-sniffer/internal/acquire"
	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
	"github.com/LauH1987/witrn-pd-sniffer/internal/device"
	"github.com/LauH1987/witrn-pd-sniffer/internal/logger"
	"github.com/LauH1987/witrn-pd-sniffer/internal/wire"
)

func main() {
	devicePath := flag.String("device", "", "hidraw device path (empty for the synthetic device)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	// stdout belongs to the record stream, logs go to stderr
	log := logger.New(*logLevel, "json").With().Str("service", "witrn-worker").Logger()

	var dev device.Adapter
	if *devicePath == "" {
		log.Info().Msg("no device path, using synthetic device")
		dev = device.NewMock(time.Millisecond)
	} else {
		dev = device.NewHIDRaw(*devicePath)
	}

	ctl := acquire.NewControl()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// commands arrive on stdin; a closed pipe means the parent is gone
	go func() {
		dec := wire.NewDecoder(os.Stdin)
		for {
			var cmd wire.Command
			if err := dec.Decode(&cmd); err != nil {
				if !errors.Is(err, io.EOF) {
					log.Warn().Err(err).Msg("command stream failed")
				}
				ctl.Stop()
				return
			}
			switch cmd.Op {
			case wire.OpPause:
				ctl.Pause()
			case wire.OpResume:
				ctl.Resume()
			case wire.OpStop:
				ctl.Stop()
			default:
				log.Warn().Str("op", cmd.Op).Msg("unknown command ignored")
			}
		}
	}()

	pub := &acquire.StreamPublisher{Enc: wire.NewEncoder(os.Stdout)}
	if err := acquire.Run(ctx, log, dev, decode.NewWITRN(), pub, ctl); err != nil {
		log.Error().Err(err).Msg("acquisition ended")
		os.Exit(1)
	}
}
