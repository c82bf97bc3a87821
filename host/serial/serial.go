package serial

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrReadTimeout is returned by ReadLine when the deadline passes before a
// full line arrives.
var ErrReadTimeout = errors.New("serial: read timed out")

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes and scripted ports for testing
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC devices ignore this)
	Baud int

	// Poll interval for blocking reads. Line reads are assembled from
	// short polls so a caller-supplied deadline stays in charge, not the
	// OS driver.
	ReadTimeout time.Duration
}

// DefaultConfig returns a default configuration for the cover controller
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        57600,
		ReadTimeout: 50 * time.Millisecond,
	}
}

// ReadLine assembles one newline-terminated line from the port, polling
// until the deadline. The trailing newline (and any carriage return) is
// stripped. A deadline hit returns ErrReadTimeout with whatever partial
// data had arrived discarded.
func ReadLine(p Port, deadline time.Time) (string, error) {
	var line []byte
	buf := make([]byte, 1)

	for {
		n, err := p.Read(buf)
		if n > 0 {
			switch buf[0] {
			case '\n':
				if len(line) > 0 && line[len(line)-1] == '\r' {
					line = line[:len(line)-1]
				}
				return string(line), nil
			default:
				line = append(line, buf[0])
			}
			continue
		}
		// tarm/serial reports a read timeout as io.EOF with n == 0; other
		// errors are fatal.
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("serial read: %w", err)
		}
		if !time.Now().Before(deadline) {
			return "", ErrReadTimeout
		}
	}
}
