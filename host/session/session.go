package session

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"coverctl/host/serial"
	"coverctl/protocol"
)

// Config holds the connection parameters.
type Config struct {
	// Port is the serial device to use. Empty enables auto-discovery.
	Port string

	// Baud rate for the serial link.
	Baud int

	// ProbeTimeout bounds each handshake attempt during discovery. Kept
	// short so scanning a machine full of serial ports stays quick.
	ProbeTimeout time.Duration

	// CommandTimeout bounds each steady-state command round-trip.
	CommandTimeout time.Duration

	// Linger is how long Close waits after releasing the port, covering
	// OS-level "port still closing" races before a reopen.
	Linger time.Duration

	// LastPortFile caches the last successfully handshaken port so
	// auto-discovery tries it first. Empty disables the cache.
	LastPortFile string
}

// DefaultConfig returns the connection defaults.
func DefaultConfig() Config {
	return Config{
		Baud:           57600,
		ProbeTimeout:   2 * time.Second,
		CommandTimeout: 5 * time.Second,
		Linger:         time.Second,
	}
}

// Connector discovers and handshakes with a cover controller. ListPorts
// and Open default to the real serial implementations; tests swap in
// scripted ones.
type Connector struct {
	Config    Config
	Logger    *slog.Logger
	ListPorts func() ([]string, error)
	Open      func(cfg *serial.Config) (serial.Port, error)

	active *Session
}

// NewConnector creates a connector with the real serial backends.
func NewConnector(cfg Config) *Connector {
	if cfg.Baud == 0 {
		cfg.Baud = 57600
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = DefaultConfig().CommandTimeout
	}
	return &Connector{
		Config:    cfg,
		Logger:    slog.New(slog.DiscardHandler),
		ListPorts: serial.ListPorts,
		Open:      serial.Open,
	}
}

// Connect establishes an exclusive session with the device.
//
// With a configured port the port must exist in the OS list before any
// I/O is attempted, otherwise ErrInvalidConfig. In auto mode every
// OS-visible port is probed in order, with the last successfully used
// port moved to the front; a probe failure just advances to the next
// candidate. Only exhausting the whole candidate list is fatal.
func (c *Connector) Connect() (*Session, error) {
	// Connecting while a session is live is a no-op.
	if c.active != nil && !c.active.Closed() {
		return c.active, nil
	}

	ports, err := c.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	var candidates []string
	if c.Config.Port != "" {
		if !slices.Contains(ports, c.Config.Port) {
			return nil, fmt.Errorf("%w: port %s not present on this system",
				ErrInvalidConfig, c.Config.Port)
		}
		candidates = []string{c.Config.Port}
	} else {
		candidates = ports
		if last := loadLastPort(c.Config.LastPortFile); last != "" {
			if i := slices.Index(candidates, last); i > 0 {
				candidates = slices.Delete(slices.Clone(candidates), i, i+1)
				candidates = slices.Insert(candidates, 0, last)
			}
		}
	}

	for _, device := range candidates {
		port, ok := c.probe(device)
		if !ok {
			continue
		}
		c.Logger.Info("connected", "port", device)
		saveLastPort(c.Config.LastPortFile, device)
		c.active = &Session{
			port:  port,
			cfg:   c.Config,
			log:   c.Logger,
			sleep: time.Sleep,
		}
		return c.active, nil
	}

	return nil, &ConnectionError{Candidates: candidates}
}

// probe opens one candidate and runs the PING handshake. Any failure
// (busy port, timeout, wrong identity) rejects the candidate without
// raising an error, per the discovery contract.
func (c *Connector) probe(device string) (serial.Port, bool) {
	cfg := serial.DefaultConfig(device)
	cfg.Baud = c.Config.Baud

	port, err := c.Open(cfg)
	if err != nil {
		c.Logger.Debug("probe: open failed", "port", device, "error", err)
		return nil, false
	}

	identity, err := roundTrip(port, protocol.CmdPing, c.Config.ProbeTimeout)
	if err != nil || identity != protocol.DeviceIdentity {
		c.Logger.Debug("probe: handshake failed",
			"port", device, "identity", identity, "error", err)
		port.Close()
		return nil, false
	}
	return port, true
}

// Session exclusively owns one transport handle for its lifetime. A
// single mutex serializes every transmit+receive pair: at most one
// request is in flight, and concurrent callers block until the full
// round-trip of the previous one has finished.
type Session struct {
	mu     sync.Mutex
	port   serial.Port
	cfg    Config
	log    *slog.Logger
	closed bool
	sleep  func(time.Duration)
}

// Closed reports whether the session has been disconnected.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// send runs one serialized command round-trip and returns the payload.
func (s *Session) send(cmd protocol.Command) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSessionClosed
	}
	payload, err := roundTrip(s.port, cmd, s.cfg.CommandTimeout)
	if err != nil {
		s.log.Debug("command failed", "request", cmd.Request, "error", err)
	}
	return payload, err
}

// Close releases the transport and waits the configured linger interval
// so the OS has finished tearing the port down before anyone reopens it.
// Best-effort: a dead device cannot make disconnect fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if err := s.port.Close(); err != nil {
		s.log.Debug("close", "error", err)
	}
	if s.cfg.Linger > 0 {
		s.sleep(s.cfg.Linger)
	}
}

// roundTrip runs one write-then-read-one-line exchange. The caller is
// responsible for serialization; sessions hold their mutex across it.
func roundTrip(port serial.Port, cmd protocol.Command, timeout time.Duration) (string, error) {
	if _, err := port.Write([]byte(cmd.Request + string(protocol.Terminator))); err != nil {
		return "", &ProtocolError{Request: cmd.Request, Err: fmt.Errorf("write: %w", err)}
	}

	line, err := serial.ReadLine(port, time.Now().Add(timeout))
	if err != nil {
		return "", &ProtocolError{Request: cmd.Request, Err: err}
	}

	payload, err := cmd.Payload(line)
	if err != nil {
		return "", &ProtocolError{Request: cmd.Request, Response: line}
	}
	return payload, nil
}
