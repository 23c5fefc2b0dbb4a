// Package timer provides deferred and periodic callback scheduling for
// simulated hardware timer slots. Each Timer runs its schedule on its
// own goroutine; Init replaces any prior schedule and Deinit cancels
// without waiting for in-flight callbacks.
package timer

import (
	"fmt"
	"sync"
	"time"

	"machinesim-go/bus"
	"machinesim-go/errcode"
)

// Mode selects one-shot or repeating operation.
type Mode int

const (
	OneShot Mode = iota
	Periodic
)

func (m Mode) String() string {
	switch m {
	case OneShot:
		return "one-shot"
	case Periodic:
		return "periodic"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Config describes a schedule. Callback runs on the timer's goroutine;
// a panic inside it is recovered and handed to OnFault. A nil OnFault
// re-raises the panic so a broken callback is never silently dropped.
type Config struct {
	Mode     Mode
	Period   time.Duration
	Callback func(*Timer)
	OnFault  func(error)
}

// Event is published on the timer's bus topic at every firing.
type Event struct {
	Slot int
	Seq  uint64
	TS   time.Time
}

// EventTopic is where a slot's firings are published.
func EventTopic(slot int) bus.Topic {
	return bus.T("timer", slot, "fire")
}

// Timer models one hardware timer slot.
type Timer struct {
	slot int
	conn *bus.Connection

	mu     sync.Mutex
	cancel chan struct{} // nil when idle
}

// Option configures a Timer.
type Option func(*Timer)

// WithEventBus publishes an Event on every firing.
func WithEventBus(conn *bus.Connection) Option {
	return func(t *Timer) { t.conn = conn }
}

// New creates an idle timer for a slot. It does nothing until Init.
func New(slot int, opts ...Option) *Timer {
	t := &Timer{slot: slot}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Slot returns the slot id the timer was created with.
func (t *Timer) Slot() int { return t.slot }

// Init starts the schedule described by cfg, replacing any schedule
// already running on this slot. The first firing happens one full
// Period after Init returns, never sooner.
func (t *Timer) Init(cfg Config) error {
	op := fmt.Sprintf("timer[%d].Init", t.slot)
	if cfg.Period <= 0 {
		return errcode.New(errcode.InvalidConfig, op, "period must be positive")
	}
	if cfg.Callback == nil {
		return errcode.New(errcode.InvalidConfig, op, "nil callback")
	}
	if cfg.Mode != OneShot && cfg.Mode != Periodic {
		return errcode.New(errcode.InvalidConfig, op, "unknown mode "+cfg.Mode.String())
	}

	t.mu.Lock()
	if t.cancel != nil {
		close(t.cancel)
	}
	t.cancel = make(chan struct{})
	cancel := t.cancel
	t.mu.Unlock()

	go t.run(cancel, cfg)
	return nil
}

// Deinit cancels the current schedule. A callback already past its
// cancellation check may still complete; nothing fires after that.
// Safe to call repeatedly and on a never-initialized timer.
func (t *Timer) Deinit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
	}
}

// Active reports whether a schedule is currently armed.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Timer) run(cancel chan struct{}, cfg Config) {
	tm := time.NewTimer(cfg.Period)
	defer tm.Stop()
	var seq uint64
	for {
		select {
		case <-cancel:
			return
		case <-tm.C:
		}
		// Recheck after wake: Deinit and the timer firing can race.
		select {
		case <-cancel:
			return
		default:
		}

		seq++
		t.publish(seq)
		t.call(cfg)

		if cfg.Mode != Periodic {
			t.disarm(cancel)
			return
		}
		resetTimer(tm, cfg.Period)
	}
}

// call runs the callback with panic containment.
func (t *Timer) call(cfg Config) {
	defer func() {
		if r := recover(); r != nil {
			if cfg.OnFault == nil {
				panic(r)
			}
			cfg.OnFault(errcode.New(errcode.HandlerFault,
				fmt.Sprintf("timer[%d]", t.slot),
				fmt.Sprintf("callback panic: %v", r)))
		}
	}()
	cfg.Callback(t)
}

func (t *Timer) publish(seq uint64) {
	if t.conn == nil {
		return
	}
	e := Event{Slot: t.slot, Seq: seq, TS: time.Now()}
	t.conn.Publish(bus.NewMessage(EventTopic(t.slot), e, false))
}

// disarm clears t.cancel after a one-shot completes, unless Init has
// already replaced the schedule with a newer one.
func (t *Timer) disarm(cancel chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == cancel {
		t.cancel = nil
	}
}

// resetTimer safely stops, drains, and re-arms a timer.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		drainTimer(t)
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
