package tmp117

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"machinesim-go/errcode"
	"machinesim-go/i2c"
)

func newSim(t *testing.T) (*i2c.Bus, *i2c.RegisterDevice) {
	t.Helper()
	bus := i2c.NewBus()
	dev, err := i2c.NewDevice(bus, Address)
	require.NoError(t, err)
	dev.SetRegister(RegDeviceID, []byte{0x01, 0x17})
	return bus, dev
}

func TestConfigureProbesDeviceID(t *testing.T) {
	bus, _ := newSim(t)
	d := New(bus)
	require.NoError(t, d.Configure())
}

func TestConfigureIgnoresDieRevisionBits(t *testing.T) {
	bus, dev := newSim(t)
	dev.SetRegister(RegDeviceID, []byte{0x31, 0x17})
	d := New(bus)
	assert.NoError(t, d.Configure())
}

func TestConfigureRejectsStrangeID(t *testing.T) {
	bus, dev := newSim(t)
	dev.SetRegister(RegDeviceID, []byte{0x0B, 0xAD})
	d := New(bus)
	err := d.Configure()
	assert.True(t, errors.Is(err, errcode.DeviceNotFound))
}

func TestConfigureFailsOnEmptyBus(t *testing.T) {
	d := New(i2c.NewBus())
	assert.True(t, errors.Is(d.Configure(), errcode.DeviceNotFound))
}

func TestTemperatureConversions(t *testing.T) {
	bus, dev := newSim(t)
	d := New(bus)

	cases := []struct {
		name   string
		reg    []byte
		raw    int16
		milliC int32
	}{
		{"zero", []byte{0x00, 0x00}, 0, 0},
		{"plus 25C", []byte{0x0C, 0x80}, 0x0C80, 25000},
		{"minus 25C", []byte{0xF3, 0x80}, -3200, -25000},
		{"one lsb", []byte{0x00, 0x01}, 1, 7},
		{"max", []byte{0x7F, 0xFF}, 32767, 255992},
		{"min", []byte{0x80, 0x00}, -32768, -256000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dev.SetRegister(RegTemp, tc.reg)

			raw, err := d.RawTemperature()
			require.NoError(t, err)
			assert.Equal(t, tc.raw, raw)

			mc, err := d.MilliCelsius()
			require.NoError(t, err)
			assert.Equal(t, tc.milliC, mc)

			dc, err := d.DeciCelsius()
			require.NoError(t, err)
			assert.Equal(t, tc.milliC/100, dc)
		})
	}
}

func TestTemperatureWithoutSampleLoaded(t *testing.T) {
	bus := i2c.NewBus()
	_, err := i2c.NewDevice(bus, Address)
	require.NoError(t, err)

	d := New(bus)
	_, err = d.RawTemperature()
	assert.True(t, errors.Is(err, errcode.RegisterNotFound),
		"an unprimed sensor register must fail loudly, not read zero")
}
