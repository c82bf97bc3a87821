package core

import (
	"math/rand"
	"sync"
)

// SimHardware emulates the cover mechanism for tests and the simulator
// target: a servo whose position is observable through a linear feedback
// channel, plus the calibrator lamp output. The feedback electronics are
// modeled as feedback = Gain*angle + Offset with optional uniform noise.
type SimHardware struct {
	mu sync.Mutex

	Gain   float64
	Offset float64
	Noise  float64 // half-width of uniform noise in ADC counts

	angle   int
	powered bool
	lampLit bool
}

// NewSimHardware returns a simulated mechanism with the given feedback
// electronics. The servo starts at angle 0, de-energized, lamp off.
func NewSimHardware(gain, offset float64) *SimHardware {
	return &SimHardware{Gain: gain, Offset: offset}
}

func (h *SimHardware) Enable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.powered = true
}

func (h *SimHardware) Disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.powered = false
}

func (h *SimHardware) Move(angle int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.powered {
		// A de-energized servo ignores position commands.
		return
	}
	if angle < MinAngle {
		angle = MinAngle
	}
	if angle > MaxAngle {
		angle = MaxAngle
	}
	h.angle = angle
}

func (h *SimHardware) Read() uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.Gain*float64(h.angle) + h.Offset
	if h.Noise > 0 {
		v += (rand.Float64()*2 - 1) * h.Noise
	}
	if v < 0 {
		v = 0
	}
	return uint16(v + 0.5)
}

func (h *SimHardware) Set(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lampLit = on
}

// Angle reports the servo's actual position, for assertions.
func (h *SimHardware) Angle() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.angle
}

// Powered reports whether the servo is energized, for assertions.
func (h *SimHardware) Powered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.powered
}

// LampLit reports the calibrator output state, for assertions.
func (h *SimHardware) LampLit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lampLit
}
