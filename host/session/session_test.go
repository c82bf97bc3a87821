package session

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverctl/host/serial"
	"coverctl/protocol"
)

// scriptedPort plays the device side of the protocol for one port. It
// also checks the single-outstanding-request discipline: a request
// arriving before the previous response was fully read is a violation.
type scriptedPort struct {
	mu      sync.Mutex
	handler func(request string) (response string, respond bool)
	delay   time.Duration

	inbuf      []byte
	pending    []byte
	inFlight   bool
	violations int
	requests   []string
	closed     bool
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight {
		p.violations++
	}
	p.inbuf = append(p.inbuf, b...)
	for {
		i := -1
		for j, c := range p.inbuf {
			if c == '\n' {
				i = j
				break
			}
		}
		if i < 0 {
			break
		}
		req := string(p.inbuf[:i])
		p.inbuf = p.inbuf[i+1:]
		p.requests = append(p.requests, req)

		resp, respond := p.handler(req)
		if !respond {
			continue
		}
		p.inFlight = true
		if p.delay > 0 {
			go func() {
				time.Sleep(p.delay)
				p.mu.Lock()
				p.pending = append(p.pending, resp+"\n"...)
				p.mu.Unlock()
			}()
		} else {
			p.pending = append(p.pending, resp+"\n"...)
		}
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		// Same shape as a tarm/serial poll timeout.
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	if len(p.pending) == 0 {
		p.inFlight = false
	}
	return n, nil
}

func (p *scriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// echoDevice answers like a healthy cover controller in the given state.
func echoDevice(state string) func(string) (string, bool) {
	return func(req string) (string, bool) {
		switch req {
		case protocol.CmdPing.Request:
			return protocol.CmdPing.ResponsePrefix + protocol.DeviceIdentity, true
		case protocol.CmdCoverState.Request:
			return protocol.CmdCoverState.ResponsePrefix + state, true
		case protocol.CmdOpenCover.Request:
			return protocol.CmdOpenCover.ResponsePrefix + protocol.PayloadOK, true
		case protocol.CmdCloseCover.Request:
			return protocol.CmdCloseCover.ResponsePrefix + protocol.PayloadOK, true
		default:
			return protocol.ErrorInvalidCommand, true
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConnector(cfg Config, ports map[string]*scriptedPort, available []string) (*Connector, *[]string) {
	cfg.ProbeTimeout = 50 * time.Millisecond
	cfg.CommandTimeout = 100 * time.Millisecond
	cfg.Linger = 0

	var opened []string
	c := NewConnector(cfg)
	c.ListPorts = func() ([]string, error) { return available, nil }
	c.Open = func(scfg *serial.Config) (serial.Port, error) {
		opened = append(opened, scfg.Device)
		p, ok := ports[scfg.Device]
		if !ok {
			return nil, errors.New("port busy")
		}
		return p, nil
	}
	return c, &opened
}

func TestDiscoveryProbesLastGoodPortFirst(t *testing.T) {
	lastPortFile := filepath.Join(t.TempDir(), "lastport.json")
	saveLastPort(lastPortFile, "B")

	cfg := DefaultConfig()
	cfg.LastPortFile = lastPortFile
	// No port answers: every candidate is probed, in order.
	c, opened := testConnector(cfg, nil, []string{"A", "B", "C"})

	_, err := c.Connect()
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, []string{"B", "A", "C"}, *opened)
	assert.Equal(t, []string{"B", "A", "C"}, connErr.Candidates)
}

func TestDiscoverySkipsFailedCandidates(t *testing.T) {
	ports := map[string]*scriptedPort{
		"B": {handler: func(string) (string, bool) { return "", false }}, // mute peer
		"C": {handler: echoDevice(protocol.CoverClosed)},
	}
	c, opened := testConnector(DefaultConfig(), ports, []string{"A", "B", "C"})

	sess, err := c.Connect()
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, []string{"A", "B", "C"}, *opened)
	assert.True(t, ports["B"].closed, "rejected candidate must be released")
}

func TestDiscoveryRejectsWrongIdentity(t *testing.T) {
	imposter := &scriptedPort{handler: func(req string) (string, bool) {
		return protocol.CmdPing.ResponsePrefix + "SOMEOTHERGADGET", true
	}}
	c, _ := testConnector(DefaultConfig(), map[string]*scriptedPort{"A": imposter}, []string{"A"})

	_, err := c.Connect()
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, imposter.closed)
}

func TestManualPortAbsentFailsBeforeIO(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = "/dev/ttyCOVER"
	c, opened := testConnector(cfg, nil, []string{"/dev/ttyUSB0"})

	_, err := c.Connect()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Empty(t, *opened, "no I/O may happen for an absent manual port")
}

func TestConnectSavesLastGoodPort(t *testing.T) {
	lastPortFile := filepath.Join(t.TempDir(), "lastport.json")
	cfg := DefaultConfig()
	cfg.LastPortFile = lastPortFile
	ports := map[string]*scriptedPort{"A": {handler: echoDevice(protocol.CoverClosed)}}
	c, _ := testConnector(cfg, ports, []string{"A"})

	sess, err := c.Connect()
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, "A", loadLastPort(lastPortFile))
}

func newTestSession(port *scriptedPort) *Session {
	return &Session{
		port:  port,
		cfg:   Config{CommandTimeout: 100 * time.Millisecond},
		log:   discardLogger(),
		sleep: func(time.Duration) {},
	}
}

func TestRejectedOperation(t *testing.T) {
	port := &scriptedPort{handler: func(req string) (string, bool) {
		return protocol.CmdOpenCover.ResponsePrefix + protocol.PayloadNOK, true
	}}
	s := newTestSession(port)

	err := s.OpenCover()
	require.ErrorIs(t, err, ErrRejected)
}

func TestWrongPrefixIsProtocolError(t *testing.T) {
	port := &scriptedPort{handler: func(req string) (string, bool) {
		return "RESULT:COVER:CLOSE:OK", true
	}}
	s := newTestSession(port)

	err := s.OpenCover()
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "RESULT:COVER:CLOSE:OK", protoErr.Response)
}

func TestResponseTimeoutIsProtocolError(t *testing.T) {
	port := &scriptedPort{handler: func(string) (string, bool) { return "", false }}
	s := newTestSession(port)
	s.cfg.CommandTimeout = 30 * time.Millisecond

	err := s.CalibratorOn()
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.ErrorIs(t, err, serial.ErrReadTimeout)
}

func TestConcurrentCommandsDoNotInterleave(t *testing.T) {
	port := &scriptedPort{
		handler: echoDevice(protocol.CoverClosed),
		delay:   5 * time.Millisecond,
	}
	s := newTestSession(port)
	s.cfg.CommandTimeout = time.Second

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, s.OpenCover())
			} else {
				assert.NoError(t, s.CloseCover())
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, port.violations,
		"a request hit the wire before the previous response was fully read")
	assert.Len(t, port.requests, 8)
}

func TestCloseIsBestEffortAndExclusive(t *testing.T) {
	port := &scriptedPort{handler: echoDevice(protocol.CoverClosed)}
	var slept time.Duration
	s := newTestSession(port)
	s.cfg.Linger = 500 * time.Millisecond
	s.sleep = func(d time.Duration) { slept = d }

	s.Close()
	assert.True(t, port.closed)
	assert.Equal(t, 500*time.Millisecond, slept, "close must linger before a reopen")

	// Commands after close fail fast; a second close is a no-op.
	require.ErrorIs(t, s.CalibratorOn(), ErrSessionClosed)
	s.Close()
}

func TestReconnectWhileConnectedIsNoOp(t *testing.T) {
	ports := map[string]*scriptedPort{"A": {handler: echoDevice(protocol.CoverClosed)}}
	c, opened := testConnector(DefaultConfig(), ports, []string{"A"})

	sess, err := c.Connect()
	require.NoError(t, err)
	defer sess.Close()

	again, err := c.Connect()
	require.NoError(t, err)
	assert.Same(t, sess, again)
	assert.Len(t, *opened, 1, "a live session must not trigger a new probe")

	// After a disconnect, connecting really reconnects.
	sess.Close()
	_, err = c.Connect()
	require.NoError(t, err)
	assert.Len(t, *opened, 2)
}

func TestHaltMotionNotSupported(t *testing.T) {
	s := newTestSession(&scriptedPort{handler: echoDevice(protocol.CoverClosed)})
	require.ErrorIs(t, s.HaltMotion(), ErrNotSupported)
}

func TestCalibrationParsing(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		slope      float64
		intercept  float64
		calibrated bool
		wantErr    bool
	}{
		{name: "uncalibrated", payload: "0:0"},
		{name: "calibrated", payload: "1.875:99.5", slope: 1.875, intercept: 99.5, calibrated: true},
		{name: "garbage", payload: "banana", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &scriptedPort{handler: func(string) (string, bool) {
				return protocol.CmdGetCalibration.ResponsePrefix + tt.payload, true
			}}
			s := newTestSession(port)

			slope, intercept, calibrated, err := s.Calibration()
			if tt.wantErr {
				var protoErr *ProtocolError
				require.ErrorAs(t, err, &protoErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.slope, slope)
			assert.Equal(t, tt.intercept, intercept)
			assert.Equal(t, tt.calibrated, calibrated)
		})
	}
}
