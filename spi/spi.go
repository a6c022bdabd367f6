// Package spi carries flash commands to the target over a synchronous serial
// link. The link is opened with Transport.Begin; every exchange goes through
// the returned Session, so nothing can be transferred before the target has
// been put into programming mode.
package spi

import (
	"fmt"

	"github.com/pkg/errors"
)

// Opcodes used by TransferScattered.
const (
	OpProgram byte = 0x02
	OpRead    byte = 0x03
)

// Error kinds returned by transports. They are always fatal: the state of the
// target after a failed exchange is unknown.
var ErrOpenFailed = errors.New("spi open failed")
var ErrWriteFailed = errors.New("spi write failed")
var ErrReadFailed = errors.New("spi read failed")

// Error is a transport failure of a given kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Transport opens a programming session with the target.
//
// bus and port select a USB device; zero for both picks the first suitable
// one.
type Transport interface {
	Begin(bus, port uint8) (Session, error)
}

// Session is an open link to a target in programming mode.
type Session interface {
	// Transfer clocks buf out and replaces it with the bytes clocked in. It
	// returns the number of bytes exchanged.
	Transfer(buf []byte) (int, error)

	// TransferScattered sends op followed by a 16-bit big endian address and
	// then buf. For OpRead, buf receives the data read back.
	TransferScattered(op byte, addr uint16, buf []byte) (int, error)

	// End leaves programming mode and releases the link.
	End() error
}

// scattered implements Session.TransferScattered on top of a plain transfer.
func scattered(transfer func([]byte) (int, error), op byte, addr uint16, buf []byte) (int, error) {
	frame := make([]byte, 3+len(buf))
	frame[0] = op
	frame[1] = byte(addr >> 8)
	frame[2] = byte(addr)
	if op != OpRead {
		copy(frame[3:], buf)
	}

	n, err := transfer(frame)
	if err != nil {
		return 0, err
	}
	if n != len(frame) {
		return 0, newError("scattered transfer", ErrReadFailed, errors.Errorf("short transfer %d/%d", n, len(frame)))
	}

	if op == OpRead {
		copy(buf, frame[3:])
	}
	return len(buf), nil
}
