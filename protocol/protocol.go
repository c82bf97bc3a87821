package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceIdentity is the token the device returns in its PING response.
// The host rejects any peer that answers with a different identity, so a
// cover controller is never confused with some other serial gadget that
// happens to echo lines back.
const DeviceIdentity = "COVERCTL"

// Terminator ends every request and response on the wire.
const Terminator = '\n'

// Command pairs a request token with the response prefix the device is
// required to answer with. Commands are stateless and enumerable; each one
// maps 1:1 onto a logical device operation.
type Command struct {
	Request        string
	ResponsePrefix string
}

// The full command set. The device answers exactly one line per request.
var (
	CmdPing = Command{"COMMAND:PING", "RESULT:PING:OK:"}

	CmdOpenCover       = Command{"COMMAND:COVER:OPEN", "RESULT:COVER:OPEN:"}
	CmdCloseCover      = Command{"COMMAND:COVER:CLOSE", "RESULT:COVER:CLOSE:"}
	CmdCalibrate       = Command{"COMMAND:COVER:CALIBRATE", "RESULT:COVER:CALIBRATE:"}
	CmdCoverState      = Command{"COMMAND:COVER:GETSTATE", "RESULT:COVER:GETSTATE:"}
	CmdGetCalibration  = Command{"COMMAND:COVER:GETCALIBRATION", "RESULT:COVER:GETCALIBRATION:"}
	CmdCalibratorOn    = Command{"COMMAND:CALIBRATOR:ON", "RESULT:CALIBRATOR:ON:"}
	CmdCalibratorOff   = Command{"COMMAND:CALIBRATOR:OFF", "RESULT:CALIBRATOR:OFF:"}
	CmdCalibratorState = Command{"COMMAND:CALIBRATOR:GETSTATE", "RESULT:CALIBRATOR:GETSTATE:"}
)

// Result payloads shared by several commands.
const (
	PayloadOK  = "OK"
	PayloadNOK = "NOK"
)

// ErrorInvalidCommand is the device's reply to any unrecognized request.
const ErrorInvalidCommand = "ERROR:INVALID_COMMAND"

// CoverState values as they appear on the wire.
const (
	CoverClosed  = "CLOSED"
	CoverOpening = "OPENING"
	CoverOpen    = "OPEN"
	CoverClosing = "CLOSING"
)

// Calibrator state values as they appear on the wire.
const (
	CalibratorOn  = "ON"
	CalibratorOff = "OFF"
)

// Payload extracts the payload from a response line for the given command.
// The response must start with the command's expected prefix; anything else
// (including an empty line) is a protocol violation.
func (c Command) Payload(response string) (string, error) {
	rest, ok := strings.CutPrefix(response, c.ResponsePrefix)
	if !ok {
		return "", fmt.Errorf("response %q does not match prefix %q", response, c.ResponsePrefix)
	}
	return rest, nil
}

// FormatCalibration renders fit coefficients for the GETCALIBRATION
// response. An uncalibrated device reports "0:0".
func FormatCalibration(slope, intercept float64) string {
	return strconv.FormatFloat(slope, 'f', -1, 64) + ":" +
		strconv.FormatFloat(intercept, 'f', -1, 64)
}

// ParseCalibration parses a "<slope>:<intercept>" payload. "0:0" means the
// device has never been calibrated; callers distinguish that case by the
// returned slope being zero (a valid fit never has zero slope).
func ParseCalibration(payload string) (slope, intercept float64, err error) {
	a, b, ok := strings.Cut(payload, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed calibration payload %q", payload)
	}
	slope, err = strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad slope in %q: %w", payload, err)
	}
	intercept, err = strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad intercept in %q: %w", payload, err)
	}
	return slope, intercept, nil
}
