// Package gpio simulates digital I/O lines with edge-triggered
// notifications. Pins live in an explicit Registry with get-or-create
// identity, so driver code and test code asking for the same pin see
// the same state. Level changes run the edge engine, which invokes
// matching watch handlers in registration order; delivery is inline by
// default or via a deferred queue when the registry is configured for
// cooperative dispatch.
package gpio

import (
	"strconv"
	"time"

	"machinesim-go/bus"
)

// Mode is a pin's direction/function configuration.
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
	ModeOpenDrain
	ModeAlt
	ModeAltOpenDrain
	ModeAnalog
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeOpenDrain:
		return "open_drain"
	case ModeAlt:
		return "alt"
	case ModeAltOpenDrain:
		return "alt_open_drain"
	case ModeAnalog:
		return "analog"
	default:
		return "invalid"
	}
}

// Pull is a pin's resistor configuration.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// Edge selects which level transitions a watch fires on.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// matches reports whether a watch for e fires on the given transition.
func (e Edge) matches(old, new bool) bool {
	switch e {
	case EdgeRising:
		return !old && new
	case EdgeFalling:
		return old && !new
	case EdgeBoth:
		return old != new
	default:
		return false
	}
}

// PinID identifies a pin by either a name or a number.
// It is comparable and usable as a map key.
type PinID struct {
	kind byte // 0 = name, 1 = number
	name string
	num  int
}

// Name identifies a pin by label ("LED0", "SPI1_CS").
func Name(s string) PinID { return PinID{kind: 0, name: s} }

// Number identifies a pin by GPIO number.
func Number(n int) PinID { return PinID{kind: 1, num: n} }

func (id PinID) String() string {
	if id.kind == 1 {
		return strconv.Itoa(id.num)
	}
	return id.name
}

// IsNumber reports whether the ID is numeric, and its value.
func (id PinID) IsNumber() (int, bool) {
	return id.num, id.kind == 1
}

func (id PinID) token() bus.Token {
	if id.kind == 1 {
		return bus.I(id.num)
	}
	return bus.S(id.name)
}

// Config carries the settable pin attributes.
type Config struct {
	Mode Mode
	Pull Pull
}

// Handler is a watch callback. It receives the pin whose level
// changed and the transition that fired it; with deferred delivery
// the pin's live level may already differ from e.Level, so handlers
// read the transition from e. A returned error is collected as a
// handler fault and never stops later handlers.
type Handler func(p *Pin, e Event) error

// Event describes one delivered transition. Handlers receive it and
// it is published on the event bus.
type Event struct {
	Pin   PinID
	Level int // 0/1 after the transition
	Edge  Edge
	TS    time.Time
}

// EventTopic is the bus topic a pin's transitions are published under.
func EventTopic(id PinID) bus.Topic {
	return bus.T("gpio", id.token(), "edge")
}
