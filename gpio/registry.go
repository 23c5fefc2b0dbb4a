package gpio

import (
	"context"
	"sync"

	"machinesim-go/bus"
)

// Registry owns the simulation's pins. Requesting a PinID that already
// exists returns the existing pin, so every holder of the ID observes
// shared state. The registry is an explicit object with its own
// lifecycle: construct it in test setup, Reset it at teardown.
type Registry struct {
	mu       sync.Mutex
	conn     *bus.Connection
	deferred bool

	// deferred dispatch queue (unbounded; transitions are never shed)
	q      []queued
	qsig   chan struct{}
	faults chan error
	done   chan struct{}

	pins map[PinID]*Pin
}

type queued struct {
	pin *Pin
	t   transition
}

// Option configures a Registry.
type Option func(*Registry)

// WithEventBus publishes every delivered transition as a gpio.Event on
// the connection's bus, under EventTopic(pin).
func WithEventBus(conn *bus.Connection) Option {
	return func(r *Registry) { r.conn = conn }
}

// WithDeferredDispatch switches from inline to queued delivery:
// Set enqueues the transition and returns immediately; a single drain
// goroutine (stopped via ctx) runs the handlers. Handler faults
// surface on Faults and must be consumed. Per-pin ordering is kept by
// the single drainer.
func WithDeferredDispatch(ctx context.Context) Option {
	return func(r *Registry) {
		r.deferred = true
		r.qsig = make(chan struct{}, 1)
		r.faults = make(chan error, 16)
		r.done = make(chan struct{})
		go r.drain(ctx)
	}
}

// NewRegistry creates an empty pin registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{pins: make(map[PinID]*Pin)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Pin returns the pin for id, creating it on first request.
func (r *Registry) Pin(id PinID) *Pin {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pins[id]; ok {
		return p
	}
	p := &Pin{reg: r, id: id}
	r.pins[id] = p
	return p
}

// Lookup returns the pin for id without creating it.
func (r *Registry) Lookup(id PinID) (*Pin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[id]
	return p, ok
}

// Len returns the number of known pins.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pins)
}

// Reset discards all pins, their levels, and their watches. Call
// between test runs to avoid cross-test leakage.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins = make(map[PinID]*Pin)
}

// Faults delivers handler errors from deferred dispatch. Nil unless
// the registry was built with WithDeferredDispatch.
func (r *Registry) Faults() <-chan error { return r.faults }

// Done is closed when the deferred drainer has stopped.
func (r *Registry) Done() <-chan struct{} { return r.done }

func (r *Registry) enqueue(p *Pin, t transition) {
	r.mu.Lock()
	r.q = append(r.q, queued{pin: p, t: t})
	r.mu.Unlock()
	select {
	case r.qsig <- struct{}{}:
	default:
	}
}

func (r *Registry) drain(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.qsig:
		}
		for {
			r.mu.Lock()
			if len(r.q) == 0 {
				r.mu.Unlock()
				break
			}
			item := r.q[0]
			r.q = r.q[1:]
			r.mu.Unlock()

			faults := item.pin.dispatch(item.t)
			if err := faultError(item.pin.id, faults); err != nil {
				select {
				case r.faults <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (r *Registry) publish(e Event) {
	if r.conn == nil {
		return
	}
	r.conn.Publish(bus.NewMessage(EventTopic(e.Pin), e, false))
}
