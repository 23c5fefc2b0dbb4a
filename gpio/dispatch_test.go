package gpio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"machinesim-go/bus"
	"machinesim-go/errcode"
)

func TestDeferredDispatchRunsOffTheSetPath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(WithDeferredDispatch(ctx))
	p := r.Pin(Name("irq"))

	delivered := make(chan Event, 4)
	_, err := p.Watch(EdgeBoth, func(pin *Pin, e Event) error {
		delivered <- e
		return nil
	})
	require.NoError(t, err)

	// Set reports no handler outcome in deferred mode. By the time a
	// handler runs the live level may have moved on; the event carries
	// the transition it was fired for.
	require.NoError(t, p.High())
	require.NoError(t, p.Low())

	first := recvDelivered(t, delivered)
	assert.Equal(t, 1, first.Level)
	assert.Equal(t, EdgeRising, first.Edge)
	second := recvDelivered(t, delivered)
	assert.Equal(t, 0, second.Level)
	assert.Equal(t, EdgeFalling, second.Edge)
}

func TestDeferredDispatchOrdering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(WithDeferredDispatch(ctx))
	p := r.Pin(Name("ord"))

	delivered := make(chan Event, 16)
	_, err := p.Watch(EdgeBoth, func(pin *Pin, e Event) error {
		delivered <- e
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.High())
		require.NoError(t, p.Low())
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, recvDelivered(t, delivered).Level)
		assert.Equal(t, 0, recvDelivered(t, delivered).Level)
	}
}

func TestDeferredHandlerSeesQueuedTransition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(WithDeferredDispatch(ctx))
	p := r.Pin(Name("stale"))

	// Hold the dispatcher until both transitions are queued, so the
	// line is already low again when the rising handler finally runs.
	gate := make(chan struct{})
	type seen struct{ event, live int }
	got := make(chan seen, 4)
	_, err := p.Watch(EdgeBoth, func(pin *Pin, e Event) error {
		<-gate
		got <- seen{event: e.Level, live: pin.Level()}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, p.High())
	require.NoError(t, p.Low())
	close(gate)

	select {
	case s := <-got:
		assert.Equal(t, 1, s.event, "handler fired for the rising transition")
		assert.Equal(t, 0, s.live, "live level has already moved on")
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
	select {
	case s := <-got:
		assert.Equal(t, 0, s.event)
	case <-time.After(time.Second):
		t.Fatal("no second delivery")
	}
}

func TestDeferredFaultsSurfaceOnChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(WithDeferredDispatch(ctx))
	p := r.Pin(Name("flt"))

	_, err := p.Watch(EdgeRising, func(*Pin, Event) error {
		return errors.New("handler broke")
	})
	require.NoError(t, err)

	require.NoError(t, p.High())

	select {
	case ferr := <-r.Faults():
		assert.True(t, errors.Is(ferr, errcode.HandlerFault))
		assert.Contains(t, ferr.Error(), "handler broke")
	case <-time.After(time.Second):
		t.Fatal("fault never surfaced")
	}
}

func TestDeferredDrainerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRegistry(WithDeferredDispatch(ctx))
	cancel()
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("drainer did not stop")
	}
}

func TestBusEventsPublishedOnTransition(t *testing.T) {
	b := bus.NewBus(8)
	r := NewRegistry(WithEventBus(b.NewConnection("gpio")))
	p := r.Pin(Name("led"))

	watcher := b.NewConnection("watcher")
	defer watcher.Disconnect()
	sub := watcher.Subscribe(EventTopic(p.ID()))

	require.NoError(t, p.High())
	require.NoError(t, p.Low())
	require.NoError(t, p.Low()) // no transition, no event

	ev := recvEvent(t, sub)
	assert.Equal(t, p.ID(), ev.Pin)
	assert.Equal(t, 1, ev.Level)
	assert.Equal(t, EdgeRising, ev.Edge)
	assert.False(t, ev.TS.IsZero())

	ev = recvEvent(t, sub)
	assert.Equal(t, 0, ev.Level)
	assert.Equal(t, EdgeFalling, ev.Edge)

	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected event: %+v", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusEventsNotScopedToOtherPins(t *testing.T) {
	b := bus.NewBus(8)
	r := NewRegistry(WithEventBus(b.NewConnection("gpio")))

	watcher := b.NewConnection("watcher")
	defer watcher.Disconnect()
	sub := watcher.Subscribe(EventTopic(Name("a")))

	require.NoError(t, r.Pin(Name("b")).High())
	require.NoError(t, r.Pin(Name("a")).High())

	ev := recvEvent(t, sub)
	assert.Equal(t, Name("a"), ev.Pin)
}

func recvDelivered(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no delivery")
		return Event{}
	}
}

func recvEvent(t *testing.T, sub *bus.Subscription) Event {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		ev, ok := msg.Payload.(Event)
		require.True(t, ok, "payload should be a gpio.Event")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return Event{}
	}
}
