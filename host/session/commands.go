package session

import (
	"fmt"

	"coverctl/protocol"
)

// CoverStatus is the host-side view of the cover's reported state.
type CoverStatus int

const (
	CoverClosed CoverStatus = iota
	CoverOpening
	CoverOpen
	CoverClosing
)

// String returns the wire name of the status.
func (s CoverStatus) String() string {
	switch s {
	case CoverClosed:
		return protocol.CoverClosed
	case CoverOpening:
		return protocol.CoverOpening
	case CoverOpen:
		return protocol.CoverOpen
	case CoverClosing:
		return protocol.CoverClosing
	default:
		return "UNKNOWN"
	}
}

// checkAck maps an OK/NOK payload onto the error taxonomy.
func checkAck(cmd protocol.Command, payload string) error {
	switch payload {
	case protocol.PayloadOK:
		return nil
	case protocol.PayloadNOK:
		return fmt.Errorf("%s: %w", cmd.Request, ErrRejected)
	default:
		return &ProtocolError{Request: cmd.Request, Response: cmd.ResponsePrefix + payload}
	}
}

// OpenCover asks the device to start opening. A NOK reply (wrong state or
// missing calibration) surfaces as ErrRejected; the motion itself runs on
// after the acknowledgment.
func (s *Session) OpenCover() error {
	payload, err := s.send(protocol.CmdOpenCover)
	if err != nil {
		return err
	}
	return checkAck(protocol.CmdOpenCover, payload)
}

// CloseCover asks the device to start closing.
func (s *Session) CloseCover() error {
	payload, err := s.send(protocol.CmdCloseCover)
	if err != nil {
		return err
	}
	return checkAck(protocol.CmdCloseCover, payload)
}

// Calibrate starts a calibration sweep. The device acknowledges before
// the sweep runs and then stops servicing commands for its duration
// (around 19 seconds on real hardware), so the next command after this
// one may block far longer than usual.
func (s *Session) Calibrate() error {
	payload, err := s.send(protocol.CmdCalibrate)
	if err != nil {
		return err
	}
	return checkAck(protocol.CmdCalibrate, payload)
}

// CoverStatus reports the device's current cover state.
func (s *Session) CoverStatus() (CoverStatus, error) {
	payload, err := s.send(protocol.CmdCoverState)
	if err != nil {
		return CoverClosed, err
	}
	switch payload {
	case protocol.CoverClosed:
		return CoverClosed, nil
	case protocol.CoverOpening:
		return CoverOpening, nil
	case protocol.CoverOpen:
		return CoverOpen, nil
	case protocol.CoverClosing:
		return CoverClosing, nil
	default:
		return CoverClosed, &ProtocolError{
			Request:  protocol.CmdCoverState.Request,
			Response: protocol.CmdCoverState.ResponsePrefix + payload,
		}
	}
}

// CalibratorOn lights the spectral calibrator.
func (s *Session) CalibratorOn() error {
	payload, err := s.send(protocol.CmdCalibratorOn)
	if err != nil {
		return err
	}
	return checkAck(protocol.CmdCalibratorOn, payload)
}

// CalibratorOff extinguishes the spectral calibrator.
func (s *Session) CalibratorOff() error {
	payload, err := s.send(protocol.CmdCalibratorOff)
	if err != nil {
		return err
	}
	return checkAck(protocol.CmdCalibratorOff, payload)
}

// CalibratorStatus reports whether the calibrator lamp is on.
func (s *Session) CalibratorStatus() (bool, error) {
	payload, err := s.send(protocol.CmdCalibratorState)
	if err != nil {
		return false, err
	}
	switch payload {
	case protocol.CalibratorOn:
		return true, nil
	case protocol.CalibratorOff:
		return false, nil
	default:
		return false, &ProtocolError{
			Request:  protocol.CmdCalibratorState.Request,
			Response: protocol.CmdCalibratorState.ResponsePrefix + payload,
		}
	}
}

// Calibration fetches the persisted fit coefficients. calibrated is false
// when the device reports the 0:0 never-calibrated record.
func (s *Session) Calibration() (slope, intercept float64, calibrated bool, err error) {
	payload, err := s.send(protocol.CmdGetCalibration)
	if err != nil {
		return 0, 0, false, err
	}
	slope, intercept, err = protocol.ParseCalibration(payload)
	if err != nil {
		return 0, 0, false, &ProtocolError{
			Request:  protocol.CmdGetCalibration.Request,
			Response: protocol.CmdGetCalibration.ResponsePrefix + payload,
		}
	}
	return slope, intercept, slope != 0, nil
}

// HaltMotion is not implemented by the device: once a motion or sweep
// starts it runs to completion.
func (s *Session) HaltMotion() error {
	return fmt.Errorf("halt motion: %w", ErrNotSupported)
}
