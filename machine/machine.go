// Package machine assembles a simulated board: buses, pins, timers
// and ports behind one constructor, so a test builds exactly the
// hardware its driver expects and nothing else.
package machine

import (
	"context"
	"fmt"
	"sync"

	"machinesim-go/adc"
	"machinesim-go/bus"
	"machinesim-go/errcode"
	"machinesim-go/gpio"
	"machinesim-go/i2c"
	"machinesim-go/rtc"
	"machinesim-go/spi"
	"machinesim-go/timer"
	"machinesim-go/uart"
)

// Machine is one simulated board. All peripherals share its event bus.
type Machine struct {
	events    *bus.Bus
	timerConn *bus.Connection

	pins  *gpio.Registry
	board *board
	clock *rtc.RTC

	mu     sync.Mutex
	i2cs   map[string]*i2c.Bus
	spis   map[string]*spi.SPI
	uarts  map[string]*uart.UART
	adcs   map[gpio.PinID]*adc.ADC
	timers map[int]*timer.Timer

	cancel context.CancelFunc
}

type config struct {
	i2cIDs   []string
	spiIDs   []string
	uartCfgs map[string]uart.Config
	board    *board
	deferred bool
}

// Option configures a Machine under construction.
type Option func(*config) error

// WithI2C adds an I2C bus under the given id (e.g. "i2c0").
func WithI2C(id string) Option {
	return func(c *config) error {
		c.i2cIDs = append(c.i2cIDs, id)
		return nil
	}
}

// WithSPI adds an SPI bus under the given id.
func WithSPI(id string) Option {
	return func(c *config) error {
		c.spiIDs = append(c.spiIDs, id)
		return nil
	}
}

// WithUART adds a serial port under the given id.
func WithUART(id string, ucfg uart.Config) Option {
	return func(c *config) error {
		if c.uartCfgs == nil {
			c.uartCfgs = make(map[string]uart.Config)
		}
		c.uartCfgs[id] = ucfg
		return nil
	}
}

// WithBoard switches pin-name resolution to strict mode from a JSON
// pinout like {"LED": 25, "-SPARE": 7}. A '-' prefix hides the name.
func WithBoard(raw []byte) Option {
	return func(c *config) error {
		b, err := parseBoardJSON(raw)
		if err != nil {
			return err
		}
		c.board = b
		return nil
	}
}

// WithPinsCSV switches pin-name resolution to strict mode from a
// name,gpio CSV file. A missing file keeps magic resolution.
func WithPinsCSV(path string) Option {
	return func(c *config) error {
		b, err := parseBoardCSV(path)
		if err != nil {
			return err
		}
		c.board = b
		return nil
	}
}

// WithDeferredIRQ delivers pin edge handlers on a dispatcher
// goroutine instead of inline on Set. Handler faults then surface on
// Pins().Faults().
func WithDeferredIRQ() Option {
	return func(c *config) error {
		c.deferred = true
		return nil
	}
}

// New builds a board from the given options.
func New(opts ...Option) (*Machine, error) {
	var c config
	for _, o := range opts {
		if err := o(&c); err != nil {
			return nil, err
		}
	}
	if c.board == nil {
		c.board = magicBoard()
	}

	m := &Machine{
		events: bus.NewBus(16),
		board:  c.board,
		clock:  rtc.New(),
		i2cs:   make(map[string]*i2c.Bus),
		spis:   make(map[string]*spi.SPI),
		uarts:  make(map[string]*uart.UART),
		adcs:   make(map[gpio.PinID]*adc.ADC),
		timers: make(map[int]*timer.Timer),
	}
	m.timerConn = m.events.NewConnection("timer")

	gopts := []gpio.Option{gpio.WithEventBus(m.events.NewConnection("gpio"))}
	if c.deferred {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		gopts = append(gopts, gpio.WithDeferredDispatch(ctx))
	}
	m.pins = gpio.NewRegistry(gopts...)

	for _, id := range c.i2cIDs {
		m.i2cs[id] = i2c.NewBus()
	}
	for _, id := range c.spiIDs {
		m.spis[id] = spi.New()
	}
	for id, ucfg := range c.uartCfgs {
		m.uarts[id] = uart.New(ucfg)
	}
	return m, nil
}

// I2CByID returns the I2C bus registered under id.
func (m *Machine) I2CByID(id string) (*i2c.Bus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.i2cs[id]
	return b, ok
}

// SPIByID returns the SPI bus registered under id.
func (m *Machine) SPIByID(id string) (*spi.SPI, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spis[id]
	return s, ok
}

// UARTByID returns the serial port registered under id.
func (m *Machine) UARTByID(id string) (*uart.UART, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uarts[id]
	return u, ok
}

// Pins exposes the pin registry directly, for tests that want Lookup,
// Reset or the deferred-dispatch fault channel.
func (m *Machine) Pins() *gpio.Registry { return m.pins }

// PinByName resolves a board pin name and returns its pin. In magic
// mode every name resolves; in strict mode unknown or hidden names
// fail with unknown_pin.
func (m *Machine) PinByName(name string) (*gpio.Pin, error) {
	id, err := m.board.resolve(name)
	if err != nil {
		return nil, err
	}
	return m.pins.Pin(id), nil
}

// PinByNumber returns the pin for a raw GPIO number. Numbers bypass
// board resolution entirely.
func (m *Machine) PinByNumber(n int) *gpio.Pin {
	return m.pins.Pin(gpio.Number(n))
}

// ADCByPin returns the analog channel backing a pin, creating it on
// first request.
func (m *Machine) ADCByPin(id gpio.PinID) *adc.ADC {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.adcs[id]
	if !ok {
		a = adc.New()
		m.adcs[id] = a
	}
	return a
}

// Timer returns the timer for a slot, creating it idle on first
// request. Firings are published on the machine's event bus.
func (m *Machine) Timer(slot int) *timer.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[slot]
	if !ok {
		t = timer.New(slot, timer.WithEventBus(m.timerConn))
		m.timers[slot] = t
	}
	return t
}

// RTC returns the board's settable clock.
func (m *Machine) RTC() *rtc.RTC { return m.clock }

// Events exposes the machine's event bus. Connect to observe pin edge
// and timer fire events.
func (m *Machine) Events() *bus.Bus { return m.events }

// Close stops all timers and, when deferred IRQ delivery is on, the
// dispatcher goroutine.
func (m *Machine) Close() error {
	m.mu.Lock()
	for _, t := range m.timers {
		t.Deinit()
	}
	m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		<-m.pins.Done()
	}
	return nil
}

// MustPin is PinByName for wiring code where a bad name is a bug.
func (m *Machine) MustPin(name string) *gpio.Pin {
	p, err := m.PinByName(name)
	if err != nil {
		panic(fmt.Sprintf("machine: %v (%s)", err, errcode.Of(err)))
	}
	return p
}
