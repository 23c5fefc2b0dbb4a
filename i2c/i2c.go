// Package i2c simulates an I2C bus for driver tests. Devices register
// at a 7-bit address and expose byte-addressable registers; the bus
// routes memory and stream transfers to them and reports absent
// devices or registers the way real probing would NAK.
//
// The bus implements tinygo.org/x/drivers.I2C, so TinyGo driver code
// runs against it unmodified:
//
//	b := i2c.NewBus()
//	dev, _ := i2c.NewDevice(b, 0x48)
//	dev.SetRegister(0x0F, []byte{0x01, 0x17})
//	d := tmp117.New(b) // any driver taking drivers.I2C
package i2c

import (
	"fmt"
	"sort"
	"sync"

	"tinygo.org/x/drivers"

	"machinesim-go/errcode"
)

// 7-bit address space; Scan probes the standard window only.
const (
	AddrMax     = 0x7F
	ScanAddrMin = 0x08
	ScanAddrMax = 0x77
)

// Device is the capability a peripheral must expose to sit on the bus.
// Behavioral variants (computed registers, stateful configuration) are
// separate implementations of this interface, not subclasses.
type Device interface {
	// Addr returns the device's 7-bit bus address.
	Addr() uint16
	// ReadRegister fills buf from the register. The stored value must
	// match len(buf) exactly; reads of unset registers fail rather
	// than inventing zeroes.
	ReadRegister(reg uint8, buf []byte) error
	// WriteRegister stores data verbatim as the new register value.
	WriteRegister(reg uint8, data []byte) error
}

// Streamer is the optional non-register transfer capability
// (raw readfrom/writeto style traffic).
type Streamer interface {
	ReadBytes(buf []byte) error
	WriteBytes(data []byte) (int, error)
}

// Bus multiplexes transfers across registered devices.
type Bus struct {
	mu      sync.Mutex
	devices map[uint16]Device
}

var _ drivers.I2C = (*Bus)(nil)

// NewBus creates an empty simulated bus.
func NewBus() *Bus {
	return &Bus{devices: make(map[uint16]Device)}
}

// AddDevice registers a device at its address.
// A second device at an occupied address is rejected loudly.
func (b *Bus) AddDevice(d Device) error {
	addr := d.Addr()
	if addr > AddrMax {
		return errcode.New(errcode.InvalidConfig, "i2c.AddDevice",
			fmt.Sprintf("address 0x%02X beyond 7-bit range", addr))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[addr]; ok {
		return errcode.New(errcode.DuplicateAddress, "i2c.AddDevice",
			fmt.Sprintf("address 0x%02X already occupied", addr))
	}
	b.devices[addr] = d
	return nil
}

// RemoveDevice detaches the device at addr, if any.
func (b *Bus) RemoveDevice(addr uint16) {
	b.mu.Lock()
	delete(b.devices, addr)
	b.mu.Unlock()
}

// Device returns the device at addr. Test surface.
func (b *Bus) Device(addr uint16) (Device, bool) {
	b.mu.Lock()
	d, ok := b.devices[addr]
	b.mu.Unlock()
	return d, ok
}

// Scan returns registered addresses inside the standard probe window
// (0x08..0x77), ascending. Devices outside the window stay hidden.
func (b *Bus) Scan() []uint16 {
	b.mu.Lock()
	addrs := make([]uint16, 0, len(b.devices))
	for a := range b.devices {
		if a >= ScanAddrMin && a <= ScanAddrMax {
			addrs = append(addrs, a)
		}
	}
	b.mu.Unlock()
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func (b *Bus) device(op string, addr uint16) (Device, error) {
	b.mu.Lock()
	d, ok := b.devices[addr]
	b.mu.Unlock()
	if !ok {
		return nil, errcode.New(errcode.DeviceNotFound, op,
			fmt.Sprintf("no device at 0x%02X", addr))
	}
	return d, nil
}

func (b *Bus) streamer(op string, addr uint16) (Streamer, error) {
	d, err := b.device(op, addr)
	if err != nil {
		return nil, err
	}
	s, ok := d.(Streamer)
	if !ok {
		return nil, errcode.New(errcode.Unsupported, op,
			fmt.Sprintf("device at 0x%02X has no stream capability", addr))
	}
	return s, nil
}

// ReadMem reads n bytes from a device register.
func (b *Bus) ReadMem(addr uint16, reg uint8, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.ReadMemInto(addr, reg, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadMemInto reads len(buf) bytes from a device register into buf.
func (b *Bus) ReadMemInto(addr uint16, reg uint8, buf []byte) error {
	d, err := b.device("i2c.ReadMem", addr)
	if err != nil {
		return err
	}
	return d.ReadRegister(reg, buf)
}

// WriteMem writes data verbatim to a device register.
// A later ReadMem of the same register and length returns exactly data.
func (b *Bus) WriteMem(addr uint16, reg uint8, data []byte) error {
	d, err := b.device("i2c.WriteMem", addr)
	if err != nil {
		return err
	}
	return d.WriteRegister(reg, data)
}

// ReadFrom reads n bytes of stream (non-register) data from a device.
func (b *Bus) ReadFrom(addr uint16, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.ReadFromInto(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFromInto fills buf with stream data from a device.
func (b *Bus) ReadFromInto(addr uint16, buf []byte) error {
	s, err := b.streamer("i2c.ReadFrom", addr)
	if err != nil {
		return err
	}
	return s.ReadBytes(buf)
}

// WriteTo sends a raw byte sequence to a device and returns the number
// of acknowledged bytes (all of them, on a simulated bus).
func (b *Bus) WriteTo(addr uint16, data []byte) (int, error) {
	s, err := b.streamer("i2c.WriteTo", addr)
	if err != nil {
		return 0, err
	}
	return s.WriteBytes(data)
}

// Tx implements tinygo.org/x/drivers.I2C on top of the register model:
//
//   - w and r both present: w[0] is the register pointer, r is filled
//     from that register (write / repeated-start read).
//   - only r: stream read.
//   - w of 2+ bytes: register write, w[0] pointer, w[1:] payload.
//   - w of 1 byte: raw stream write (command byte).
//   - both empty: address probe; acknowledges iff a device is present.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	switch {
	case len(r) > 0 && len(w) > 0:
		return b.ReadMemInto(addr, w[0], r)
	case len(r) > 0:
		return b.ReadFromInto(addr, r)
	case len(w) >= 2:
		return b.WriteMem(addr, w[0], w[1:])
	case len(w) == 1:
		_, err := b.WriteTo(addr, w)
		return err
	default:
		_, err := b.device("i2c.Tx", addr)
		return err
	}
}
