//go:build tinygo

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/servo"

	"coverctl/core"
)

// Pin assignment for the Seeeduino XIAO build: servo signal on D2 (TCC0
// PWM), position feedback pot on A0, calibrator lamp MOSFET on D1.
const (
	servoPin    = machine.D2
	feedbackPin = machine.A0
	lampPin     = machine.D1
)

// Hobby servo pulse range, Arduino-compatible.
const (
	minPulseUs = 544
	maxPulseUs = 2400
)

// servoActuator drives the cover servo through the PWM peripheral.
type servoActuator struct {
	servo   servo.Servo
	enabled bool
	angle   int
}

func (a *servoActuator) Enable() {
	a.enabled = true
	a.Move(a.angle)
}

func (a *servoActuator) Disable() {
	a.enabled = false
	// Zero pulse width stops the pulse train; the servo stops holding and
	// the lid magnets keep the resting position.
	a.servo.SetMicroseconds(0)
}

func (a *servoActuator) Move(angle int) {
	a.angle = angle
	if !a.enabled {
		return
	}
	us := minPulseUs + (maxPulseUs-minPulseUs)*angle/core.MaxAngle
	a.servo.SetMicroseconds(int16(us))
}

// adcSensor samples the feedback potentiometer.
type adcSensor struct {
	adc machine.ADC
}

func (s *adcSensor) Read() uint16 { return s.adc.Get() }

// serialPort adapts machine.Serialer's byte-oriented API to the
// io.ReadWriter the service loop wants.
type serialPort struct {
	s machine.Serialer
}

func (p serialPort) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		if p.s.Buffered() == 0 {
			if n > 0 {
				return n, nil
			}
			time.Sleep(time.Millisecond)
			continue
		}
		c, err := p.s.ReadByte()
		if err != nil {
			return n, err
		}
		b[n] = c
		n++
	}
	return n, nil
}

func (p serialPort) Write(b []byte) (int, error) { return p.s.Write(b) }

// pinLamp switches the calibrator lamp.
type pinLamp struct {
	pin machine.Pin
}

func (l *pinLamp) Set(on bool) {
	if on {
		l.pin.High()
	} else {
		l.pin.Low()
	}
}

func main() {
	// Give USB CDC a moment to enumerate before the first log lines.
	time.Sleep(time.Second)

	sv, err := servo.New(machine.TCC0, servoPin)
	if err != nil {
		blinkForever()
	}
	act := &servoActuator{servo: sv}
	act.Disable()

	machine.InitADC()
	adc := machine.ADC{Pin: feedbackPin}
	adc.Configure(machine.ADCConfig{})

	lampPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	lampPin.Low()

	// TODO: back this with SAMD21 on-chip flash (row erase + page program)
	// so calibration survives a power cycle on real hardware.
	store := core.NewMemStore()

	dev, err := core.NewDevice(core.DefaultConfig(), act, &adcSensor{adc: adc}, &pinLamp{pin: lampPin}, store)
	if err != nil {
		blinkForever()
	}

	for {
		core.NewLoop(dev, serialPort{s: machine.Serial}, nil).Run()
	}
}

// blinkForever signals an unrecoverable init failure on the onboard LED.
func blinkForever() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(150 * time.Millisecond)
		led.Low()
		time.Sleep(150 * time.Millisecond)
	}
}
