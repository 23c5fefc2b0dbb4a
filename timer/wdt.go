package timer

import (
	"sync"
	"time"
)

// WDT simulates a watchdog: unless Feed is called within the timeout
// window, onExpire runs once. The real counterpart resets the board;
// here the caller decides what expiry means (fail the test, flip a
// pin, panic).
type WDT struct {
	timeout  time.Duration
	onExpire func()

	mu      sync.Mutex
	t       *Timer
	expired bool
	stopped bool
}

// NewWDT arms a watchdog. onExpire runs on the internal timer's
// goroutine; a nil onExpire makes expiry observable only via Expired.
func NewWDT(timeout time.Duration, onExpire func()) (*WDT, error) {
	w := &WDT{timeout: timeout, onExpire: onExpire, t: New(-1)}
	if err := w.arm(); err != nil {
		return nil, err
	}
	return w, nil
}

// Feed restarts the window. Feeding an expired or stopped watchdog is
// a no-op: real watchdogs do not come back after biting.
func (w *WDT) Feed() {
	w.mu.Lock()
	dead := w.expired || w.stopped
	w.mu.Unlock()
	if dead {
		return
	}
	// arm validated the timeout at NewWDT; re-arming cannot fail.
	_ = w.arm()
}

// Stop disarms the watchdog permanently.
func (w *WDT) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.t.Deinit()
}

// Expired reports whether the watchdog has bitten.
func (w *WDT) Expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}

func (w *WDT) arm() error {
	return w.t.Init(Config{
		Mode:     OneShot,
		Period:   w.timeout,
		Callback: func(*Timer) { w.bite() },
	})
}

func (w *WDT) bite() {
	w.mu.Lock()
	if w.stopped || w.expired {
		w.mu.Unlock()
		return
	}
	w.expired = true
	w.mu.Unlock()
	if w.onExpire != nil {
		w.onExpire()
	}
}
