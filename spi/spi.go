// Package spi simulates an SPI bus for driver tests. A test preloads
// the response buffer; driver traffic is captured for inspection. The
// bus implements tinygo.org/x/drivers.SPI.
package spi

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"machinesim-go/errcode"
)

// SPI is a full-duplex bus double. Reads are served from a preloaded
// response buffer; everything the driver clocks out is recorded.
type SPI struct {
	mu      sync.Mutex
	readBuf []byte
	cursor  int // Transfer position into readBuf
	written []byte
	writes  [][]byte
}

var _ drivers.SPI = (*SPI)(nil)

// New creates an SPI bus double with an empty response buffer.
func New() *SPI {
	return &SPI{}
}

// SetReadBuf preloads the response data (copied) and rewinds Transfer.
func (s *SPI) SetReadBuf(data []byte) {
	s.mu.Lock()
	s.readBuf = append([]byte(nil), data...)
	s.cursor = 0
	s.mu.Unlock()
}

// Read clocks out n filler bytes and returns the first n response
// bytes. Non-consuming: successive reads return the same prefix.
func (s *SPI) Read(n int, filler byte) ([]byte, error) {
	w := make([]byte, n)
	for i := range w {
		w[i] = filler
	}
	r := make([]byte, n)
	if err := s.Tx(w, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Write records p. The int return mirrors io.Writer-style signatures.
func (s *SPI) Write(p []byte) (int, error) {
	s.record(p)
	return len(p), nil
}

// Tx implements drivers.SPI: w is recorded, r is filled from the
// response buffer. Either side may be nil.
func (s *SPI) Tx(w, r []byte) error {
	if len(w) > 0 {
		s.record(w)
	}
	if len(r) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readBuf) < len(r) {
		return errcode.New(errcode.ShortRead, "spi.Tx",
			fmt.Sprintf("response buffer holds %d bytes, want %d", len(s.readBuf), len(r)))
	}
	copy(r, s.readBuf)
	return nil
}

// Transfer clocks one byte each way, consuming the response buffer.
func (s *SPI) Transfer(b byte) (byte, error) {
	s.record([]byte{b})
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.readBuf) {
		return 0, errcode.New(errcode.ShortRead, "spi.Transfer", "response buffer exhausted")
	}
	out := s.readBuf[s.cursor]
	s.cursor++
	return out, nil
}

func (s *SPI) record(p []byte) {
	cp := append([]byte(nil), p...)
	s.mu.Lock()
	s.written = append(s.written, cp...)
	s.writes = append(s.writes, cp)
	s.mu.Unlock()
}

// ---- test surface ----

// Written returns everything the driver clocked out, concatenated.
func (s *SPI) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written...)
}

// Writes returns the individual transfers in order.
func (s *SPI) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// Reset clears the capture logs and rewinds Transfer; the response
// buffer is kept.
func (s *SPI) Reset() {
	s.mu.Lock()
	s.written = nil
	s.writes = nil
	s.cursor = 0
	s.mu.Unlock()
}
