package spi

import (
	"github.com/piotrjaromin/gpio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// GPIO opens the target through native GPIO lines, e.g. the header of a
// single board computer. Lines are given by their kernel GPIO number.
type GPIO struct {
	CSN   int
	MISO  int
	MOSI  int
	SCK   int
	RESET int
	PROG  int

	FastClock bool
}

// DefaultGPIO uses the SPI0 lines of a Raspberry Pi header plus GPIO24/25.
var DefaultGPIO = GPIO{
	CSN:   8,
	MISO:  9,
	MOSI:  10,
	SCK:   11,
	RESET: 24,
	PROG:  25,
}

// outputLine and inputLine are the parts of a sysfs gpio.Pin the port uses.
type outputLine interface {
	High() error
	Low() error
	Cleanup()
}

type inputLine interface {
	Read() (uint, error)
	Cleanup()
}

type gpioLine struct {
	mask byte
	num  int
	pin  outputLine
}

// gpioPort implements PinPort one line at a time.
type gpioPort struct {
	lines []gpioLine
	miso  inputLine
	pins  Pins
	state byte
}

// Begin implements Transport. bus and port are not used.
func (g *GPIO) Begin(bus, port uint8) (Session, error) {
	if bus != 0 || port != 0 {
		logrus.Warnf("gpio transport ignores usb device %d-%d", bus, port)
	}

	p, err := g.open()
	if err != nil {
		return nil, newError("gpio", ErrOpenFailed, err)
	}

	bb := NewBitbang(p, p.pins, !g.FastClock)
	bb.closer = p.close
	if err := bb.Start(); err != nil {
		p.close()
		return nil, err
	}

	logrus.Debugf("spi begin: gpio csn=%d miso=%d mosi=%d sck=%d reset=%d prog=%d",
		g.CSN, g.MISO, g.MOSI, g.SCK, g.RESET, g.PROG)
	return bb, nil
}

func (g *GPIO) open() (*gpioPort, error) {
	p := &gpioPort{pins: DefaultPins}

	outputs := []struct {
		mask byte
		num  int
		high bool
	}{
		{p.pins.CSN, g.CSN, true},
		{p.pins.MOSI, g.MOSI, false},
		{p.pins.SCK, g.SCK, false},
		{p.pins.RESET, g.RESET, true},
		{p.pins.PROG, g.PROG, false},
	}
	for _, o := range outputs {
		pin, err := gpio.NewOutput(uint(o.num), o.high)
		if err != nil {
			p.close()
			return nil, errors.Wrapf(err, "could not setup gpio %d", o.num)
		}
		p.lines = append(p.lines, gpioLine{mask: o.mask, num: o.num, pin: pin})
		if o.high {
			p.state |= o.mask
		}
	}

	miso, err := gpio.NewInput(uint(g.MISO))
	if err != nil {
		p.close()
		return nil, errors.Wrapf(err, "could not setup gpio %d", g.MISO)
	}
	p.miso = miso

	return p, nil
}

// Tx implements PinPort. It stops at the first line that fails.
func (p *gpioPort) Tx(w, r []byte) error {
	for i, v := range w {
		level, err := p.miso.Read()
		if err != nil {
			return errors.Wrap(err, "could not read miso")
		}
		s := p.state
		if level != 0 {
			s |= p.pins.MISO
		}
		r[i] = s

		changed := v ^ p.state
		for _, l := range p.lines {
			if changed&l.mask == 0 {
				continue
			}
			if v&l.mask != 0 {
				err = l.pin.High()
			} else {
				err = l.pin.Low()
			}
			if err != nil {
				return errors.Wrapf(err, "could not drive gpio %d", l.num)
			}
			p.state ^= l.mask
		}
	}
	return nil
}

// close returns the lines to the kernel.
func (p *gpioPort) close() error {
	for _, l := range p.lines {
		l.pin.Cleanup()
	}
	p.lines = nil
	if p.miso != nil {
		p.miso.Cleanup()
		p.miso = nil
	}
	return nil
}
