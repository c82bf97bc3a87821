package core

// Actuator is the abstract servo interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type Actuator interface {
	// Enable powers the servo so it holds and follows commanded positions.
	Enable()

	// Disable cuts drive to the servo. The mechanism is expected to hold
	// its resting position passively (magnets), so this is safe at the
	// travel endpoints and eliminates idle hum and power draw.
	Disable()

	// Move commands the servo to the given angle in degrees [0,180].
	// It returns immediately; physical travel time is the caller's problem.
	Move(angle int)
}

// FeedbackSensor reads the analog position feedback channel.
// Values are raw ADC counts with no physical meaning until a calibration
// maps them to degrees.
type FeedbackSensor interface {
	Read() uint16
}

// Lamp drives the spectral calibrator's digital output.
type Lamp interface {
	Set(on bool)
}
