// Package tmp117 provides a driver for the TMP117 digital temperature
// sensor. The driver is fixed-point throughout; the native register
// LSB is 7.8125 m°C, exposed as milli-°C and deci-°C.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read
// when both w and r are provided, without releasing the bus.
package tmp117

import (
	"tinygo.org/x/drivers"

	"machinesim-go/errcode"
)

// Default I2C address (ADD0 to ground).
const Address = 0x48

// Registers.
const (
	RegTemp     = 0x00
	RegConfig   = 0x01
	RegDeviceID = 0x0F
)

// DeviceID is the expected contents of RegDeviceID (low 12 bits).
const DeviceID = 0x0117

// Device wraps an I2C connection to a TMP117.
type Device struct {
	bus     drivers.I2C
	Address uint16

	buf [2]byte
}

// New creates a TMP117 connection. It does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure probes the device ID register and fails when something
// else is living at the address.
func (d *Device) Configure() error {
	id, err := d.readRegister(RegDeviceID)
	if err != nil {
		return err
	}
	// Top 4 bits are the die revision.
	if id&0x0FFF != DeviceID {
		return errcode.New(errcode.DeviceNotFound, "tmp117.Configure",
			"unexpected device ID")
	}
	return nil
}

// RawTemperature returns the temperature register as-is: two's
// complement, 7.8125 m°C per LSB.
func (d *Device) RawTemperature() (int16, error) {
	v, err := d.readRegister(RegTemp)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

// MilliCelsius returns the temperature in thousandths of a degree.
func (d *Device) MilliCelsius() (int32, error) {
	raw, err := d.RawTemperature()
	if err != nil {
		return 0, err
	}
	// 7.8125 m°C/LSB == 125/16.
	return int32(raw) * 125 / 16, nil
}

// DeciCelsius returns tenths of a degree, rounding toward zero.
func (d *Device) DeciCelsius() (int32, error) {
	mc, err := d.MilliCelsius()
	if err != nil {
		return 0, err
	}
	return mc / 100, nil
}

func (d *Device) readRegister(reg uint8) (uint16, error) {
	if err := d.bus.Tx(d.Address, []byte{reg}, d.buf[:2]); err != nil {
		return 0, err
	}
	return uint16(d.buf[0])<<8 | uint16(d.buf[1]), nil
}
