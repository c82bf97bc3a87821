package core

import (
	"errors"
	"math"
)

// sweepStep is the spacing between calibration sample points. 0..180
// inclusive at 10 degrees gives 19 samples.
const sweepStep = 10

// minSlope is the smallest fitted slope accepted as a usable mapping.
// A full sweep that moves the feedback by less than one ADC count per
// thousand degrees means the sensor is dead or disconnected, and the
// inverse mapping in Calibration.Angle would be meaningless.
const minSlope = 1e-3

// ErrDegenerateSweep means no usable line can be fit: either the sampled
// positions had no spread, or the feedback never responded to motion.
var ErrDegenerateSweep = errors.New("calibration sweep is degenerate")

// fitLine computes the ordinary least-squares line through the sampled
// (position, feedback) pairs.
func fitLine(positions, feedbacks []float64) (Calibration, error) {
	if len(positions) == 0 || len(positions) != len(feedbacks) {
		return Calibration{}, errors.New("mismatched calibration samples")
	}

	n := float64(len(positions))
	var meanPos, meanFb float64
	for i := range positions {
		meanPos += positions[i]
		meanFb += feedbacks[i]
	}
	meanPos /= n
	meanFb /= n

	var cov, variance float64
	for i := range positions {
		dp := positions[i] - meanPos
		cov += dp * (feedbacks[i] - meanFb)
		variance += dp * dp
	}
	if variance == 0 {
		return Calibration{}, ErrDegenerateSweep
	}

	slope := cov / variance
	if math.Abs(slope) < minSlope {
		return Calibration{}, ErrDegenerateSweep
	}
	return Calibration{Slope: slope, Intercept: meanFb - slope*meanPos}, nil
}

// calibrate runs the full blocking sweep: step the servo through the whole
// range, pause at each point for the mechanism to settle, sample feedback,
// fit the line and persist it, then return to the closed rest position via
// a normal close sequence. The acceptance reply has already gone out by
// the time this runs; the device is deliberately unresponsive for the
// duration of the sweep.
func (d *Device) calibrate() error {
	d.servo.Enable()

	positions := make([]float64, 0, MaxAngle/sweepStep+1)
	feedbacks := make([]float64, 0, MaxAngle/sweepStep+1)
	for angle := MinAngle; angle <= MaxAngle; angle += sweepStep {
		d.servo.Move(angle)
		d.sleep(d.cfg.SettleTime)
		positions = append(positions, float64(angle))
		feedbacks = append(feedbacks, float64(d.sensor.Read()))
	}

	cal, err := fitLine(positions, feedbacks)
	if err != nil {
		d.servo.Disable()
		return err
	}
	if err := d.store.Save(cal); err != nil {
		d.servo.Disable()
		return err
	}

	d.cal = cal
	d.calibrated = true

	// The sweep parked the servo at full travel; declare Open and run the
	// usual close sequence to reach a known rest position.
	d.cover = CoverOpen
	d.position = MaxAngle
	d.requestClose()
	d.Settle()
	return nil
}
