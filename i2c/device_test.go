package i2c

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"machinesim-go/errcode"
)

func TestWriteHistory(t *testing.T) {
	b := NewBus()
	dev, err := NewDevice(b, 0x48)
	require.NoError(t, err)

	require.NoError(t, b.WriteMem(0x48, 0x01, []byte{0xAA}))
	require.NoError(t, b.WriteMem(0x48, 0x01, []byte{0xBB}))
	require.NoError(t, b.WriteMem(0x48, 0x02, []byte{0xCC}))
	_, err = b.WriteTo(0x48, []byte{0x99})
	require.NoError(t, err)

	writes := dev.Writes()
	require.Len(t, writes, 4)
	assert.Equal(t, Write{Reg: 0x01, Data: []byte{0xAA}}, writes[0])
	assert.Equal(t, Write{Reg: -1, Data: []byte{0x99}}, writes[3])

	assert.Equal(t, [][]byte{{0xAA}, {0xBB}}, dev.RegisterWrites(0x01))

	dev.ClearWrites()
	assert.Empty(t, dev.Writes())
	// History cleared but register state survives.
	v, ok := dev.Register(0x02)
	require.True(t, ok)
	assert.Equal(t, []byte{0xCC}, v)
}

func TestReadHookComputesRegister(t *testing.T) {
	b := NewBus()
	dev, err := NewDevice(b, 0x48)
	require.NoError(t, err)

	// Synthesize a checksum register from another register's value.
	dev.SetRegister(0x00, []byte{0x12, 0x34})
	dev.ReadHook = func(reg uint8, buf []byte) (bool, error) {
		if reg != 0x20 {
			return false, nil
		}
		v, _ := dev.Register(0x00)
		var sum byte
		for _, x := range v {
			sum += x
		}
		buf[0] = sum
		return true, nil
	}

	got, err := b.ReadMem(0x48, 0x20, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12 + 0x34}, got)

	// Unhandled registers still hit the backing store.
	got, err = b.ReadMem(0x48, 0x00, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, got)
}

func TestWriteHookChangesLaterReads(t *testing.T) {
	b := NewBus()
	dev, err := NewDevice(b, 0x48)
	require.NoError(t, err)

	// Writing the config register flips the byte order a later read of
	// the data register reports.
	const (
		regConfig = 0x01
		regData   = 0x02
	)
	bigEndian := true
	value := uint16(0x0117)

	dev.WriteHook = func(reg uint8, data []byte) (bool, error) {
		if reg != regConfig {
			return false, nil
		}
		bigEndian = data[0] == 0
		return true, nil
	}
	dev.ReadHook = func(reg uint8, buf []byte) (bool, error) {
		if reg != regData {
			return false, nil
		}
		if bigEndian {
			binary.BigEndian.PutUint16(buf, value)
		} else {
			binary.LittleEndian.PutUint16(buf, value)
		}
		return true, nil
	}

	got, err := b.ReadMem(0x48, regData, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x17}, got)

	require.NoError(t, b.WriteMem(0x48, regConfig, []byte{1}))
	got, err = b.ReadMem(0x48, regData, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x17, 0x01}, got)

	// Hooked writes are still recorded.
	assert.Equal(t, [][]byte{{1}}, dev.RegisterWrites(regConfig))
	// Hooked writes do not reach the backing store.
	_, ok := dev.Register(regConfig)
	assert.False(t, ok)
}

func TestWriteHookErrorPropagates(t *testing.T) {
	b := NewBus()
	dev, err := NewDevice(b, 0x48)
	require.NoError(t, err)

	dev.WriteHook = func(reg uint8, data []byte) (bool, error) {
		if reg == 0x7F {
			return true, errcode.New(errcode.InvalidConfig, "device", "read-only register")
		}
		return false, nil
	}

	err = b.WriteMem(0x48, 0x7F, []byte{1})
	assert.True(t, errors.Is(err, errcode.InvalidConfig))
	require.NoError(t, b.WriteMem(0x48, 0x01, []byte{1}))
}

func TestClearRegister(t *testing.T) {
	b := NewBus()
	dev, err := NewDevice(b, 0x48)
	require.NoError(t, err)

	dev.SetRegister(0x05, []byte{1})
	dev.ClearRegister(0x05)
	_, err = b.ReadMem(0x48, 0x05, 1)
	assert.True(t, errors.Is(err, errcode.RegisterNotFound))
}
