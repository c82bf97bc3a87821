package core

import (
	"fmt"
	"time"

	"coverctl/protocol"
)

// CoverState tracks where the cover is, or which way it is travelling.
type CoverState uint8

const (
	CoverClosed CoverState = iota
	CoverOpening
	CoverOpen
	CoverClosing
)

// String returns the wire representation of the state.
func (s CoverState) String() string {
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

// Servo travel limits in degrees.
const (
	MinAngle = 0
	MaxAngle = 180
)

// Config holds the device timing parameters.
type Config struct {
	// TickInterval is the pause between one-degree motion steps. It bounds
	// the full-transit time at 180 * TickInterval regardless of how busy
	// the command channel is.
	TickInterval time.Duration

	// SettleTime is how long the mechanism is given to stop oscillating at
	// each calibration sweep point before the feedback sensor is sampled.
	SettleTime time.Duration
}

// DefaultConfig returns the timings used on real hardware: a 15 ms step
// (2.7 s full transit) and a 1 s settle per sweep point (~19 s sweep).
func DefaultConfig() Config {
	return Config{
		TickInterval: 15 * time.Millisecond,
		SettleTime:   time.Second,
	}
}

// Device owns all cover and calibrator state. Everything mutable lives
// here and is touched only by the single goroutine servicing commands and
// motion ticks; the struct itself takes no locks.
type Device struct {
	cfg    Config
	servo  Actuator
	sensor FeedbackSensor
	lamp   Lamp
	store  Store

	// In-memory copy of the persisted record, loaded once at construction.
	// All runtime decisions use this copy, never the store.
	cal        Calibration
	calibrated bool

	cover    CoverState
	lampOn   bool
	position int // commanded servo angle, advanced by ticks
	sleep    func(time.Duration)
}

// NewDevice wires the hardware interfaces together and loads the persisted
// calibration. If a valid record exists the device assumes it may not be
// fully closed and starts a close sequence; the caller must drain it (see
// Settle) before servicing commands. Without a record the cover is assumed
// Closed and motion commands are rejected until a calibration runs.
func NewDevice(cfg Config, servo Actuator, sensor FeedbackSensor, lamp Lamp, store Store) (*Device, error) {
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %v", cfg.TickInterval)
	}

	d := &Device{
		cfg:    cfg,
		servo:  servo,
		sensor: sensor,
		lamp:   lamp,
		store:  store,
		cover:  CoverClosed,
		sleep:  time.Sleep,
	}

	cal, ok, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load calibration: %w", err)
	}
	if ok {
		d.cal = cal
		d.calibrated = true
		d.beginClose()
	}

	return d, nil
}

// CoverState reports the current cover state.
func (d *Device) CoverState() CoverState { return d.cover }

// CalibratorOn reports whether the calibrator lamp is lit.
func (d *Device) CalibratorOn() bool { return d.lampOn }

// Calibrated reports whether a valid calibration is loaded.
func (d *Device) Calibrated() bool { return d.calibrated }

// Calibration returns the in-memory model. Meaningless unless Calibrated.
func (d *Device) Calibration() Calibration { return d.cal }

// Moving reports whether a motion sequence is in progress.
func (d *Device) Moving() bool {
	return d.cover == CoverOpening || d.cover == CoverClosing
}

// Tick advances an in-progress motion by one degree. Reaching an endpoint
// settles the state and cuts servo power; ticks in Open or Closed are
// no-ops. The caller invokes this from a periodic timer.
func (d *Device) Tick() {
	switch d.cover {
	case CoverOpening:
		if d.position < MaxAngle {
			d.position++
			d.servo.Move(d.position)
		}
		if d.position >= MaxAngle {
			d.cover = CoverOpen
			d.servo.Disable()
		}
	case CoverClosing:
		if d.position > MinAngle {
			d.position--
			d.servo.Move(d.position)
		}
		if d.position <= MinAngle {
			d.cover = CoverClosed
			d.servo.Disable()
		}
	}
}

// Settle runs ticks at the configured interval until motion stops. Used
// for the boot close sequence and after a calibration sweep.
func (d *Device) Settle() {
	for d.Moving() {
		d.sleep(d.cfg.TickInterval)
		d.Tick()
	}
}

// requestOpen starts an open sequence. Rejected unless the cover is Closed
// or Closing and a valid calibration exists; rejection changes nothing.
func (d *Device) requestOpen() bool {
	if !d.calibrated {
		return false
	}
	if d.cover != CoverClosed && d.cover != CoverClosing {
		return false
	}
	d.servo.Enable()
	d.position = d.cal.Angle(d.sensor.Read())
	d.servo.Move(d.position)
	d.cover = CoverOpening
	return true
}

// requestClose starts a close sequence, symmetric to requestOpen.
func (d *Device) requestClose() bool {
	if !d.calibrated {
		return false
	}
	if d.cover != CoverOpen && d.cover != CoverOpening {
		return false
	}
	d.beginClose()
	return true
}

// beginClose energizes the servo at the calibration-derived current angle
// and enters Closing. Also used at boot, where the state precondition of
// requestClose does not apply.
func (d *Device) beginClose() {
	d.servo.Enable()
	d.position = d.cal.Angle(d.sensor.Read())
	d.servo.Move(d.position)
	d.cover = CoverClosing
}

// setLamp drives the calibrator output. Always permitted; the calibrator
// axis never interacts with cover motion.
func (d *Device) setLamp(on bool) {
	d.lamp.Set(on)
	d.lampOn = on
}

// Handle services one request line and returns the reply plus an optional
// deferred task to run after the reply has been written. Only Calibrate
// uses the deferred slot: the sweep is acknowledged first and then blocks
// the loop, matching the device's documented extended unresponsiveness.
func (d *Device) Handle(line string) (reply string, deferred func() error) {
	switch line {
	case protocol.CmdPing.Request:
		return protocol.CmdPing.ResponsePrefix + protocol.DeviceIdentity, nil

	case protocol.CmdOpenCover.Request:
		if d.requestOpen() {
			return protocol.CmdOpenCover.ResponsePrefix + protocol.PayloadOK, nil
		}
		return protocol.CmdOpenCover.ResponsePrefix + protocol.PayloadNOK, nil

	case protocol.CmdCloseCover.Request:
		if d.requestClose() {
			return protocol.CmdCloseCover.ResponsePrefix + protocol.PayloadOK, nil
		}
		return protocol.CmdCloseCover.ResponsePrefix + protocol.PayloadNOK, nil

	case protocol.CmdCalibrate.Request:
		return protocol.CmdCalibrate.ResponsePrefix + protocol.PayloadOK, d.calibrate

	case protocol.CmdCoverState.Request:
		return protocol.CmdCoverState.ResponsePrefix + d.cover.String(), nil

	case protocol.CmdGetCalibration.Request:
		if !d.calibrated {
			return protocol.CmdGetCalibration.ResponsePrefix + "0:0", nil
		}
		return protocol.CmdGetCalibration.ResponsePrefix +
			protocol.FormatCalibration(d.cal.Slope, d.cal.Intercept), nil

	case protocol.CmdCalibratorOn.Request:
		d.setLamp(true)
		return protocol.CmdCalibratorOn.ResponsePrefix + protocol.PayloadOK, nil

	case protocol.CmdCalibratorOff.Request:
		d.setLamp(false)
		return protocol.CmdCalibratorOff.ResponsePrefix + protocol.PayloadOK, nil

	case protocol.CmdCalibratorState.Request:
		if d.lampOn {
			return protocol.CmdCalibratorState.ResponsePrefix + protocol.CalibratorOn, nil
		}
		return protocol.CmdCalibratorState.ResponsePrefix + protocol.CalibratorOff, nil

	default:
		return protocol.ErrorInvalidCommand, nil
	}
}
