// Package rtc simulates a settable real-time clock. The clock keeps
// ticking at wall rate from whatever instant it was last set to, so
// driver code that computes elapsed time behaves as it would against
// battery-backed hardware.
package rtc

import (
	"sync"
	"time"
)

// RTC is a settable clock.
type RTC struct {
	mu     sync.Mutex
	offset time.Duration // simulated minus wall
}

// New creates a clock tracking wall time.
func New() *RTC { return &RTC{} }

// SetTime moves the clock to t. It keeps advancing from there.
func (r *RTC) SetTime(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offset = t.Sub(time.Now())
}

// Now returns the simulated current time.
func (r *RTC) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Now().Add(r.offset)
}
