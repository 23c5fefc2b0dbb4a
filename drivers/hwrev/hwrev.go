// Package hwrev identifies the hardware revision of a board from two
// ID strap pins and the size of its SPI flash, read with a JEDEC RDID
// probe. Boards encode their revision as a two-bit number on the
// straps; flash size disambiguates assemblies sharing a strap code.
package hwrev

import (
	"tinygo.org/x/drivers"

	"machinesim-go/errcode"
)

// JEDEC read-identification opcode.
const cmdRDID = 0x9F

// Pin is the strap input the driver samples.
type Pin interface {
	Get() bool
}

// ChipSelect drives the flash CS line, active low.
type ChipSelect interface {
	High() error
	Low() error
}

// Device reads board identity. Construct with New; all probes are
// on-demand, nothing is cached.
type Device struct {
	id0, id1 Pin
	spi      drivers.SPI
	cs       ChipSelect
}

// New wires the identity sources. spi and cs may be nil when the board
// has no probeable flash; FlashSize then reports unsupported.
func New(id0, id1 Pin, spi drivers.SPI, cs ChipSelect) *Device {
	return &Device{id0: id0, id1: id1, spi: spi, cs: cs}
}

// Revision decodes the strap pins: id0 is the low bit.
func (d *Device) Revision() int {
	rev := 0
	if d.id0.Get() {
		rev |= 1
	}
	if d.id1.Get() {
		rev |= 2
	}
	return rev
}

// FlashSize probes the flash with RDID and returns its capacity in
// bytes. The third ID byte is a power-of-two size per JEDEC practice.
func (d *Device) FlashSize() (int64, error) {
	if d.spi == nil || d.cs == nil {
		return 0, errcode.New(errcode.Unsupported, "hwrev.FlashSize",
			"no flash wired")
	}

	var rdid [4]byte
	if err := d.cs.Low(); err != nil {
		return 0, err
	}
	err := d.spi.Tx([]byte{cmdRDID, 0, 0, 0}, rdid[:])
	if cerr := d.cs.High(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}

	capacity := rdid[3]
	if capacity == 0 || capacity > 40 {
		return 0, errcode.New(errcode.DeviceNotFound, "hwrev.FlashSize",
			"implausible RDID capacity byte")
	}
	return int64(1) << capacity, nil
}
