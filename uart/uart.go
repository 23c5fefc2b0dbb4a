// Package uart is a ring-buffered serial port double. Driver code
// talks to the port side (Read/Write and the Readable wakeup); test
// code feeds the receive ring with InjectData and inspects everything
// the driver transmitted with Written.
package uart

import (
	"context"
	"sync"

	"machinesim-go/x/ring"
)

const defaultBufSize = 256

// Config sizes the receive and transmit rings. Zero values default to
// 256; sizes are rounded up to the next power of two.
type Config struct {
	RxBuf int
	TxBuf int
}

// UART is a simulated serial port.
type UART struct {
	rx *ring.Ring
	tx *ring.Ring

	mu       sync.Mutex
	captured []byte // everything ever written, drained from tx
}

// New creates a port with empty buffers.
func New(cfg Config) *UART {
	return &UART{
		rx: ring.New(ringSize(cfg.RxBuf)),
		tx: ring.New(ringSize(cfg.TxBuf)),
	}
}

func ringSize(n int) int {
	if n <= 0 {
		n = defaultBufSize
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// Write queues p for transmission. It never blocks and never fails:
// the capture log is unbounded even when the tx ring wraps.
func (u *UART) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	rest := p
	for len(rest) > 0 {
		n := u.tx.WriteFrom(rest)
		rest = rest[n:]
		if len(rest) > 0 {
			u.drainTxLocked()
		}
	}
	return len(p), nil
}

// WriteByte queues a single byte.
func (u *UART) WriteByte(b byte) error {
	_, err := u.Write([]byte{b})
	return err
}

// Buffered reports how many received bytes are waiting.
func (u *UART) Buffered() int { return u.rx.Available() }

// Read copies up to len(p) received bytes. An empty buffer reads
// n == 0 with a nil error, matching a non-blocking serial port.
func (u *UART) Read(p []byte) (int, error) {
	return u.rx.ReadInto(p), nil
}

// ReadByte pops one received byte; ok is false when none is waiting.
func (u *UART) ReadByte() (byte, bool) {
	return u.rx.ReadByte()
}

// ReadLine consumes buffered bytes up to and including the first
// newline. Without a buffered newline it consumes and returns whatever
// is waiting, which may be nothing.
func (u *UART) ReadLine() []byte {
	var line []byte
	for {
		b, ok := u.rx.ReadByte()
		if !ok {
			return line
		}
		line = append(line, b)
		if b == '\n' {
			return line
		}
	}
}

// Readable returns a channel that signals when received data arrives.
func (u *UART) Readable() <-chan struct{} { return u.rx.Readable() }

// RecvSomeContext blocks until at least one byte is received or ctx
// ends, then reads what is available.
func (u *UART) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	for {
		if n := u.rx.ReadInto(p); n > 0 {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-u.rx.Readable():
		}
	}
}

// InjectData places p in the receive ring as if the wire delivered it.
// Returns how many bytes fit; the rest is dropped, like a real FIFO
// overrun.
func (u *UART) InjectData(p []byte) int {
	return u.rx.WriteFrom(p)
}

// Written returns a copy of every byte the driver has transmitted.
func (u *UART) Written() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.drainTxLocked()
	out := make([]byte, len(u.captured))
	copy(out, u.captured)
	return out
}

// ClearWritten resets the transmit capture.
func (u *UART) ClearWritten() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.drainTxLocked()
	u.captured = u.captured[:0]
}

func (u *UART) drainTxLocked() {
	buf := make([]byte, u.tx.Cap())
	for {
		n := u.tx.ReadInto(buf)
		if n == 0 {
			return
		}
		u.captured = append(u.captured, buf[:n]...)
	}
}
