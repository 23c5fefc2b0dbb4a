package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"machinesim-go/errcode"
)

// Pin is a simulated digital line. All pins come from a Registry;
// two requests for the same PinID return the same *Pin.
type Pin struct {
	reg *Registry
	id  PinID

	mu      sync.Mutex
	level   bool
	mode    Mode
	pull    Pull
	watches []*Watch

	// re-entrant Set bookkeeping (sync dispatch only)
	dispatching bool
	pending     []transition
}

// Watch is one (edge, handler) registration on a pin.
type Watch struct {
	pin  *Pin
	edge Edge
	fn   Handler
}

// Cancel removes the registration. An in-flight dispatch that already
// snapshotted this watch still runs it; only future transitions are
// affected. Safe to call more than once.
func (w *Watch) Cancel() {
	p := w.pin
	p.mu.Lock()
	for i, x := range p.watches {
		if x == w {
			p.watches = append(p.watches[:i], p.watches[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// Edge returns the trigger condition the watch was registered with.
func (w *Watch) Edge() Edge { return w.edge }

// transition is one delivered level change plus the handler snapshot
// taken when it happened.
type transition struct {
	old, new bool
	ts       time.Time
	watches  []*Watch
}

// event freezes the transition into what handlers and the bus see.
func (t transition) event(id PinID) Event {
	e := Event{Pin: id, Edge: EdgeFalling, TS: t.ts}
	if t.new {
		e.Level = 1
		e.Edge = EdgeRising
	}
	return e
}

// ID returns the pin's identifier.
func (p *Pin) ID() PinID { return p.id }

// Configure updates mode and pull. It does not touch the level and
// fires no notifications. Switching to analog mode is rejected while
// edge watches are registered, matching Watch's refusal of analog pins.
func (p *Pin) Configure(cfg Config) error {
	if cfg.Mode > ModeAnalog {
		return errcode.New(errcode.InvalidConfig, "gpio.Configure",
			fmt.Sprintf("pin %s: unknown mode %d", p.id, cfg.Mode))
	}
	if cfg.Pull > PullDown {
		return errcode.New(errcode.InvalidConfig, "gpio.Configure",
			fmt.Sprintf("pin %s: unknown pull %d", p.id, cfg.Pull))
	}
	if cfg.Mode == ModeAnalog && cfg.Pull != PullNone {
		return errcode.New(errcode.InvalidConfig, "gpio.Configure",
			fmt.Sprintf("pin %s: analog mode excludes pull resistors", p.id))
	}
	p.mu.Lock()
	if cfg.Mode == ModeAnalog && len(p.watches) > 0 {
		n := len(p.watches)
		p.mu.Unlock()
		return errcode.New(errcode.InvalidConfig, "gpio.Configure",
			fmt.Sprintf("pin %s: analog mode with %d edge watch(es) registered", p.id, n))
	}
	p.mode = cfg.Mode
	p.pull = cfg.Pull
	p.mu.Unlock()
	return nil
}

// Mode returns the configured mode.
func (p *Pin) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Pull returns the configured pull.
func (p *Pin) Pull() Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

// Get returns the current logical level.
func (p *Pin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Level returns the level as 0/1.
func (p *Pin) Level() int {
	if p.Get() {
		return 1
	}
	return 0
}

// Set is the sole level mutator. The stored level is updated and the
// edge engine runs before Set returns. With the default inline
// delivery the return value carries collected handler faults; with
// deferred delivery it is always nil and faults surface on the
// registry's fault channel. Setting the current level is a no-op.
func (p *Pin) Set(level bool) error {
	p.mu.Lock()
	old := p.level
	p.level = level
	if old == level {
		p.mu.Unlock()
		return nil
	}
	t := transition{old: old, new: level, ts: time.Now(),
		watches: append([]*Watch(nil), p.watches...)}

	if p.reg != nil && p.reg.deferred {
		p.mu.Unlock()
		p.reg.enqueue(p, t)
		return nil
	}

	if p.dispatching {
		// Re-entrant Set from inside a handler: the level change took
		// effect above; its dispatch is queued behind the current one.
		p.pending = append(p.pending, t)
		p.mu.Unlock()
		return nil
	}
	p.dispatching = true
	p.mu.Unlock()

	var faults []error
	cur := t
	for {
		faults = append(faults, p.dispatch(cur)...)
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.dispatching = false
			p.mu.Unlock()
			break
		}
		cur = p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()
	}
	return faultError(p.id, faults)
}

// High sets the level to 1.
func (p *Pin) High() error { return p.Set(true) }

// Low sets the level to 0.
func (p *Pin) Low() error { return p.Set(false) }

// Toggle inverts the level.
func (p *Pin) Toggle() error { return p.Set(!p.Get()) }

// Watch registers a handler for the given edge condition. Handlers on
// a pin fire in registration order. Analog pins take no watches.
func (p *Pin) Watch(edge Edge, h Handler) (*Watch, error) {
	if edge != EdgeRising && edge != EdgeFalling && edge != EdgeBoth {
		return nil, errcode.New(errcode.InvalidConfig, "gpio.Watch",
			fmt.Sprintf("pin %s: edge must be rising, falling, or both", p.id))
	}
	if h == nil {
		return nil, errcode.New(errcode.InvalidConfig, "gpio.Watch",
			fmt.Sprintf("pin %s: nil handler", p.id))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == ModeAnalog {
		return nil, errcode.New(errcode.InvalidConfig, "gpio.Watch",
			fmt.Sprintf("pin %s: analog pins take no edge watches", p.id))
	}
	w := &Watch{pin: p, edge: edge, fn: h}
	p.watches = append(p.watches, w)
	return w, nil
}

// Watches returns the current registration count. Test surface.
func (p *Pin) Watches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watches)
}

// dispatch runs one transition against its handler snapshot and
// returns the collected faults. It also publishes the transition on
// the registry's event bus, if one is attached.
func (p *Pin) dispatch(t transition) []error {
	ev := t.event(p.id)
	var faults []error
	for _, w := range t.watches {
		if !w.edge.matches(t.old, t.new) {
			continue
		}
		if err := safeCall(w.fn, p, ev); err != nil {
			faults = append(faults, err)
		}
	}
	if p.reg != nil {
		p.reg.publish(ev)
	}
	return faults
}

// safeCall shields the dispatch loop from a panicking handler; the
// panic is reported as a fault so later handlers still run.
func safeCall(h Handler, p *Pin, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic on pin %s: %v", p.id, r)
		}
	}()
	return h(p, e)
}

func faultError(id PinID, faults []error) error {
	if len(faults) == 0 {
		return nil
	}
	return &errcode.E{
		C:   errcode.HandlerFault,
		Op:  "gpio.Set",
		Msg: fmt.Sprintf("pin %s: %d handler(s) failed", id, len(faults)),
		Err: errors.Join(faults...),
	}
}
