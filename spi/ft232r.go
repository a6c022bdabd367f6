package spi

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

const (
	ftdiVendorID    = 0x0403
	ft232rProductID = 0x6001
)

// DefaultSpeed is the bit-bang tick rate of the FT232R.
var DefaultSpeed = 9600 * physic.Hertz

// FT232R opens the target through the synchronous bit-bang mode of an FTDI
// FT232R USB-serial bridge.
type FT232R struct {
	// Serial selects the bridge by its EEPROM serial number. When empty the
	// bus and port passed to Begin are used, and failing that the first
	// FT232R found.
	Serial string

	Speed physic.Frequency

	// FastClock drops the extra clock-high tick of every bit.
	FastClock bool

	Pins Pins
}

// Begin implements Transport.
func (t *FT232R) Begin(bus, port uint8) (Session, error) {
	if _, err := host.Init(); err != nil {
		return nil, newError("ft232r", ErrOpenFailed, err)
	}

	serial := t.Serial
	if serial == "" && bus > 0 {
		s, err := usbSerial(bus, port)
		if err != nil {
			return nil, newError("ft232r", ErrOpenFailed, err)
		}
		serial = s
	}

	dev, err := findFT232R(serial)
	if err != nil {
		return nil, newError("ft232r", ErrOpenFailed, err)
	}

	pins := t.Pins
	if pins == (Pins{}) {
		pins = DefaultPins
	}
	speed := t.Speed
	if speed == 0 {
		speed = DefaultSpeed
	}

	if err := dev.SetDBusMask(pins.Outputs()); err != nil {
		return nil, newError("ft232r", ErrOpenFailed, errors.Wrap(err, "could not set bitmode"))
	}
	if err := dev.SetSpeed(speed); err != nil {
		dev.SetDBusMask(0)
		return nil, newError("ft232r", ErrOpenFailed, errors.Wrap(err, "could not set baudrate"))
	}

	bb := NewBitbang(dev, pins, !t.FastClock)
	bb.closer = func() error {
		return dev.SetDBusMask(0)
	}
	if err := bb.Start(); err != nil {
		bb.closer()
		return nil, err
	}

	logrus.Debugf("spi begin: %s at %s", dev, speed)
	return bb, nil
}

func findFT232R(serial string) (*ftdi.FT232R, error) {
	var info ftdi.Info
	for _, d := range ftdi.All() {
		d.Info(&info)
		if !info.Opened || info.VenID != ftdiVendorID || info.DevID != ft232rProductID {
			continue
		}
		ft, ok := d.(*ftdi.FT232R)
		if !ok {
			continue
		}
		if serial != "" {
			var ee ftdi.EEPROM
			if err := d.EEPROM(&ee); err != nil {
				logrus.Debugf("%s: could not read eeprom: %v", d, err)
				continue
			}
			if ee.Serial != serial {
				continue
			}
		}
		return ft, nil
	}

	if serial != "" {
		return nil, errors.Errorf("no FT232R with serial %q found", serial)
	}
	return nil, errors.New("no FT232R found")
}
