package errcode

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeImplementsError(t *testing.T) {
	var err error = DeviceNotFound
	assert.Equal(t, "device_not_found", err.Error())
}

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, DuplicateAddress, Of(DuplicateAddress))
	assert.Equal(t, Error, Of(errors.New("opaque")))

	e := New(RegisterNotFound, "i2c.ReadMem", "reg 0x0F")
	assert.Equal(t, RegisterNotFound, Of(e))

	// Codes survive pkg/errors wrapping via Unwrap.
	wrapped := pkgerrors.Wrap(e, "while probing")
	assert.Equal(t, RegisterNotFound, Of(wrapped))
}

func TestErrorsIsMatchesBareCode(t *testing.T) {
	e := Wrap(HandlerFault, "gpio.Set", errors.New("boom"))
	assert.True(t, errors.Is(e, HandlerFault))
	assert.False(t, errors.Is(e, DeviceNotFound))
}

func TestEMessageFormat(t *testing.T) {
	e := New(LengthMismatch, "i2c.ReadMem", "want 2 have 3")
	assert.Equal(t, "i2c.ReadMem: length_mismatch: want 2 have 3", e.Error())

	bare := &E{C: InvalidConfig}
	assert.Equal(t, "invalid_config", bare.Error())

	caused := Wrap(HandlerFault, "gpio.Set", errors.New("boom"))
	assert.Equal(t, "gpio.Set: handler_fault: boom", caused.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ShortRead, "spi.Read", nil))
}
