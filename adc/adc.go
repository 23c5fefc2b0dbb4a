// Package adc simulates an analog input. Tests set the sample a
// channel reports; driver code reads it the way TinyGo ADCs are read,
// as a left-justified 16-bit value.
package adc

import (
	"sync"

	"machinesim-go/x/mathx"
)

// Vref is the simulated reference voltage in microvolts (3.3 V).
const Vref = 3_300_000

// ADC holds the sample for one analog channel.
type ADC struct {
	mu  sync.Mutex
	raw uint16
}

// New creates a channel reading zero.
func New() *ADC { return &ADC{} }

// SetU16 sets the raw sample, clamped into the 16-bit range.
func (a *ADC) SetU16(v int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw = uint16(mathx.Clamp(v, 0, 0xFFFF))
}

// ReadU16 returns the current raw sample.
func (a *ADC) ReadU16() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raw
}

// SetMicrovolts sets the sample from a voltage against Vref.
func (a *ADC) SetMicrovolts(uv int) {
	uv = mathx.Clamp(uv, 0, Vref)
	a.SetU16(int(int64(uv) * 0xFFFF / Vref))
}

// ReadMicrovolts converts the current sample back to a voltage.
func (a *ADC) ReadMicrovolts() int {
	return int(int64(a.ReadU16()) * Vref / 0xFFFF)
}
