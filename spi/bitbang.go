package spi

import (
	"time"

	"github.com/sirupsen/logrus"
)

// PinPort drives up to eight lines of a bit-bang port as one byte.
type PinPort interface {
	// Tx writes w to the lines one byte per tick and fills r with the line
	// levels sampled just before each byte of w is applied. w and r have the
	// same length.
	Tx(w, r []byte) error
}

// Pins maps target signals to bits of the port byte.
type Pins struct {
	CSN   byte
	MISO  byte
	MOSI  byte
	SCK   byte
	RESET byte
	PROG  byte
}

// DefaultPins is the wiring used on FT232R boards: RXD=FCSN, RTS=FMISO,
// CTS=FMOSI, DTR=FSCK, DSR=RESET, DCD=PROG.
var DefaultPins = Pins{
	CSN:   1 << 1,
	MISO:  1 << 2,
	MOSI:  1 << 3,
	SCK:   1 << 4,
	RESET: 1 << 5,
	PROG:  1 << 6,
}

// Outputs returns the mask of lines driven by the host.
func (p Pins) Outputs() byte {
	return p.PROG | p.RESET | p.CSN | p.SCK | p.MOSI
}

// readFIFOSize is the depth of the bridge's receive FIFO. A chunk of ticks
// must fit in it or samples are lost.
const readFIFOSize = 96

// Timing of the programming mode entry sequence.
var (
	ResetPulse = 1 * time.Microsecond  // needs 0.2 us
	ProgSettle = 2 * time.Millisecond  // needs 1.5 ms before the first command
)

// Bitbang is a Session that clocks SPI mode 0 frames over a PinPort, most
// significant bit first.
type Bitbang struct {
	port  PinPort
	pins  Pins
	state byte
	ticks int

	closer func() error
}

// NewBitbang returns a driver for port. With holdClock set every bit keeps
// the clock high for an extra tick to meet the minimum pulse width.
func NewBitbang(port PinPort, pins Pins, holdClock bool) *Bitbang {
	ticks := 3
	if holdClock {
		ticks = 4
	}
	return &Bitbang{
		port:  port,
		pins:  pins,
		ticks: ticks,
	}
}

// ChunkSize returns the number of bytes clocked per FIFO round trip.
func (b *Bitbang) ChunkSize() int {
	return readFIFOSize / 8 / b.ticks
}

// Start drives the lines to idle and enters programming mode.
func (b *Bitbang) Start() error {
	idle := []struct {
		pin  byte
		high bool
	}{
		{b.pins.PROG, false},
		{b.pins.SCK, false},
		{b.pins.CSN, true},
		{b.pins.MOSI, false},
		{b.pins.RESET, true},
	}
	for _, l := range idle {
		if err := b.digitalWrite(l.pin, l.high); err != nil {
			return err
		}
	}
	return b.progBegin()
}

// End leaves programming mode and releases the port.
func (b *Bitbang) End() error {
	err := b.progEnd()
	if b.closer != nil {
		if cerr := b.closer(); err == nil {
			err = cerr
		}
	}
	logrus.Debug("spi end")
	return err
}

// progBegin pulses RESET with PROG held high, which makes the target boot
// into flash programming mode.
func (b *Bitbang) progBegin() error {
	if err := b.digitalWrite(b.pins.PROG, true); err != nil {
		return err
	}
	if err := b.digitalWrite(b.pins.RESET, false); err != nil {
		return err
	}
	time.Sleep(ResetPulse)
	if err := b.digitalWrite(b.pins.RESET, true); err != nil {
		return err
	}
	time.Sleep(ProgSettle)
	return nil
}

// progEnd resets the target with PROG low so it runs its firmware.
func (b *Bitbang) progEnd() error {
	if err := b.digitalWrite(b.pins.PROG, false); err != nil {
		return err
	}
	if err := b.digitalWrite(b.pins.RESET, false); err != nil {
		return err
	}
	time.Sleep(ResetPulse)
	return b.digitalWrite(b.pins.RESET, true)
}

func (b *Bitbang) digitalWrite(pin byte, high bool) error {
	if high {
		b.state |= pin
	} else {
		b.state &^= pin
	}

	var r [1]byte
	if err := b.port.Tx([]byte{b.state}, r[:]); err != nil {
		return newError("pin write", ErrWriteFailed, err)
	}
	return nil
}

// encode appends the ticks for data to w and returns the number of ticks.
func (b *Bitbang) encode(w []byte, data []byte) int {
	j := 0
	for _, v := range data {
		for bit := byte(1 << 7); bit > 0; bit >>= 1 {
			if v&bit != 0 {
				b.state |= b.pins.MOSI
			} else {
				b.state &^= b.pins.MOSI
			}
			w[j] = b.state
			j++

			b.state |= b.pins.SCK
			w[j] = b.state
			j++
			if b.ticks == 4 {
				w[j] = b.state
				j++
			}

			b.state &^= b.pins.SCK
			w[j] = b.state
			j++
		}
	}
	return j
}

// decode rebuilds the bytes clocked in from the samples. MISO is taken from
// the last tick of each bit, which was sampled while the clock was high.
func (b *Bitbang) decode(r []byte, data []byte) {
	j := 0
	for pos := range data {
		var v byte
		for bit := byte(1 << 7); bit > 0; bit >>= 1 {
			j += b.ticks - 1
			if r[j]&b.pins.MISO != 0 {
				v |= bit
			}
			j++
		}
		data[pos] = v
	}
}

// Transfer implements Session. Chip select stays asserted for the whole
// buffer so a multi-chunk transfer is one frame for the target.
func (b *Bitbang) Transfer(buf []byte) (int, error) {
	chunk := b.ChunkSize()
	w := make([]byte, chunk*8*b.ticks)
	r := make([]byte, len(w))

	if err := b.digitalWrite(b.pins.CSN, false); err != nil {
		return 0, err
	}

	for pos := 0; pos < len(buf); pos += chunk {
		n := min(chunk, len(buf)-pos)

		ticks := b.encode(w, buf[pos:pos+n])
		if err := b.port.Tx(w[:ticks], r[:ticks]); err != nil {
			b.digitalWrite(b.pins.CSN, true)
			return pos, newError("spi transfer", ErrWriteFailed, err)
		}
		b.decode(r[:ticks], buf[pos:pos+n])
	}

	if err := b.digitalWrite(b.pins.CSN, true); err != nil {
		return len(buf), err
	}

	logrus.Debugf("spi xfer %d bytes", len(buf))
	return len(buf), nil
}

// TransferScattered implements Session.
func (b *Bitbang) TransferScattered(op byte, addr uint16, buf []byte) (int, error) {
	return scattered(b.Transfer, op, addr, buf)
}
