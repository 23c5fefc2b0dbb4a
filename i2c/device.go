package i2c

import (
	"fmt"
	"sync"

	"machinesim-go/errcode"
)

// Write is one recorded transfer to a device. Reg is -1 for stream
// (non-register) writes.
type Write struct {
	Reg  int
	Data []byte
}

// ReadHook intercepts a register read before the backing store is
// consulted. Returning handled=true skips the default lookup.
type ReadHook func(reg uint8, buf []byte) (handled bool, err error)

// WriteHook intercepts a register write before the default store.
// Returning handled=true skips the store; the write is still recorded
// in the history either way.
type WriteHook func(reg uint8, data []byte) (handled bool, err error)

// RegisterDevice is the stock register-mapped peripheral: a map of
// register values a test preloads and a driver reads back, plus a raw
// read buffer for stream transfers and a history of everything
// written. Hooks turn it into a computed-register variant without a
// separate type.
type RegisterDevice struct {
	addr uint16

	mu      sync.Mutex
	regs    map[uint8][]byte
	readBuf []byte
	writes  []Write

	// Optional behavior overrides; set before use, not during transfers.
	ReadHook  ReadHook
	WriteHook WriteHook
}

var (
	_ Device   = (*RegisterDevice)(nil)
	_ Streamer = (*RegisterDevice)(nil)
)

// NewDevice constructs a RegisterDevice and registers it with the bus;
// it is visible to Scan immediately on success.
func NewDevice(b *Bus, addr uint16) (*RegisterDevice, error) {
	d := &RegisterDevice{
		addr: addr,
		regs: make(map[uint8][]byte),
	}
	if err := b.AddDevice(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *RegisterDevice) Addr() uint16 { return d.addr }

// ReadRegister fills buf from the register value. The stored value
// must match len(buf) exactly; unset registers fail.
func (d *RegisterDevice) ReadRegister(reg uint8, buf []byte) error {
	if d.ReadHook != nil {
		handled, err := d.ReadHook(reg, buf)
		if handled || err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.regs[reg]
	if !ok {
		return errcode.New(errcode.RegisterNotFound, "i2c.ReadRegister",
			fmt.Sprintf("device 0x%02X register 0x%02X never set", d.addr, reg))
	}
	if len(v) != len(buf) {
		return errcode.New(errcode.LengthMismatch, "i2c.ReadRegister",
			fmt.Sprintf("device 0x%02X register 0x%02X holds %d bytes, want %d",
				d.addr, reg, len(v), len(buf)))
	}
	copy(buf, v)
	return nil
}

// WriteRegister records the write and stores a copy of data as the new
// register value (unless a WriteHook takes over).
func (d *RegisterDevice) WriteRegister(reg uint8, data []byte) error {
	cp := append([]byte(nil), data...)
	d.mu.Lock()
	d.writes = append(d.writes, Write{Reg: int(reg), Data: cp})
	d.mu.Unlock()

	if d.WriteHook != nil {
		handled, err := d.WriteHook(reg, cp)
		if handled || err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.regs[reg] = cp
	d.mu.Unlock()
	return nil
}

// ReadBytes fills buf from the stream read buffer (non-consuming).
func (d *RegisterDevice) ReadBytes(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.readBuf) < len(buf) {
		return errcode.New(errcode.LengthMismatch, "i2c.ReadBytes",
			fmt.Sprintf("device 0x%02X read buffer holds %d bytes, want %d",
				d.addr, len(d.readBuf), len(buf)))
	}
	copy(buf, d.readBuf)
	return nil
}

// WriteBytes records a stream write and returns the ACK count.
func (d *RegisterDevice) WriteBytes(data []byte) (int, error) {
	cp := append([]byte(nil), data...)
	d.mu.Lock()
	d.writes = append(d.writes, Write{Reg: -1, Data: cp})
	d.mu.Unlock()
	return len(data), nil
}

// ---- test surface ----

// SetRegister preloads a register value (copied).
func (d *RegisterDevice) SetRegister(reg uint8, data []byte) {
	d.mu.Lock()
	d.regs[reg] = append([]byte(nil), data...)
	d.mu.Unlock()
}

// Register returns the current register value, if set.
func (d *RegisterDevice) Register(reg uint8) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.regs[reg]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// ClearRegister removes a register value.
func (d *RegisterDevice) ClearRegister(reg uint8) {
	d.mu.Lock()
	delete(d.regs, reg)
	d.mu.Unlock()
}

// SetReadBuf preloads the stream read buffer (copied).
func (d *RegisterDevice) SetReadBuf(data []byte) {
	d.mu.Lock()
	d.readBuf = append([]byte(nil), data...)
	d.mu.Unlock()
}

// Writes returns the full write history in order.
func (d *RegisterDevice) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

// RegisterWrites returns every payload written to one register, in order.
func (d *RegisterDevice) RegisterWrites(reg uint8) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out [][]byte
	for _, w := range d.writes {
		if w.Reg == int(reg) {
			out = append(out, w.Data)
		}
	}
	return out
}

// LastWrite returns the most recent write, if any.
func (d *RegisterDevice) LastWrite() (Write, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.writes) == 0 {
		return Write{}, false
	}
	return d.writes[len(d.writes)-1], true
}

// ClearWrites resets the write history between test runs.
func (d *RegisterDevice) ClearWrites() {
	d.mu.Lock()
	d.writes = nil
	d.mu.Unlock()
}
