package core

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Loop services a Device over a line-oriented channel. One goroutine owns
// all device state: incoming commands are handled synchronously to
// completion, and motion is advanced by a fixed-interval tick interleaved
// with command servicing. Command servicing is therefore never withheld
// for more than one tick interval, except during a calibration sweep,
// which blocks the loop by design.
type Loop struct {
	dev *Device
	rw  io.ReadWriter
	log *slog.Logger
}

// NewLoop creates a service loop for the device on rw. A nil logger
// discards log output.
func NewLoop(dev *Device, rw io.ReadWriter, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Loop{dev: dev, rw: rw, log: log}
}

// Run drains the boot close sequence, then services commands until the
// reader reaches EOF or fails.
func (l *Loop) Run() error {
	if l.dev.Moving() {
		l.log.Info("boot close sequence", "state", l.dev.CoverState().String())
		l.dev.Settle()
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(l.rw)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimRight(scanner.Text(), "\r"):
			case <-done:
				// Run returned on a write error; stop rather than block
				// on a channel nobody reads.
				return
			}
		}
		readErr <- scanner.Err()
	}()

	ticker := time.NewTicker(l.dev.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if line == "" {
				continue
			}
			reply, deferred := l.dev.Handle(line)
			l.log.Debug("command", "request", line, "reply", reply)
			if _, err := fmt.Fprintf(l.rw, "%s%c", reply, '\n'); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
			if deferred != nil {
				if err := deferred(); err != nil {
					l.log.Error("calibration sweep failed", "error", err)
				}
			}

		case <-ticker.C:
			l.dev.Tick()
		}
	}
}
