// Command coversim emulates the cover controller on stdin/stdout. Point a
// pty at it (e.g. socat PTY,link=/tmp/cover STDIO,raw EXEC:coversim) and
// the host side cannot tell it from real hardware.
package main

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"time"

	"coverctl/core"
)

var (
	storePath = flag.String("store", "coversim-cal.bin", "Calibration record file")
	gain      = flag.Float64("gain", 1.875, "Simulated feedback gain (counts per degree)")
	offset    = flag.Float64("offset", 99.5, "Simulated feedback offset (counts)")
	noise     = flag.Float64("noise", 0, "Simulated feedback noise half-width (counts)")
	tick      = flag.Duration("tick", 15*time.Millisecond, "Motion tick interval")
	settle    = flag.Duration("settle", time.Second, "Settle pause per calibration sweep point")
	verbose   = flag.Bool("verbose", false, "Enable debug logging")
)

// stdio joins stdin and stdout into the device's serial channel.
type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	hw := core.NewSimHardware(*gain, *offset)
	hw.Noise = *noise

	dev, err := core.NewDevice(core.Config{
		TickInterval: *tick,
		SettleTime:   *settle,
	}, hw, hw, hw, core.NewFileStore(*storePath))
	if err != nil {
		logger.Error("device init failed", "error", err)
		os.Exit(1)
	}

	logger.Info("cover simulator ready",
		"store", *storePath, "calibrated", dev.Calibrated())

	if err := core.NewLoop(dev, stdio{}, logger).Run(); err != nil && err != io.EOF {
		logger.Error("service loop failed", "error", err)
		os.Exit(1)
	}
}
