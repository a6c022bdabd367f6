package flash

import (
	"github.com/jdelfes/nrf24le1-flasher/spi"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Open will put the chip into programming mode through the transport
func (mc *Microcontroller) Open() (err error) {
	if mc.IsOpen() {
		return nil
	}

	mc.sess, err = mc.transport.Begin(mc.config.Bus, mc.config.Port)
	if err != nil {
		return errors.Wrap(err, "could not open transport")
	}

	logrus.Debug("mcu open")

	return nil
}

// Close will end the session and let the chip run its firmware
func (mc *Microcontroller) Close() error {
	if mc.sess == nil {
		return nil
	}

	err := mc.sess.End()
	mc.sess = nil

	logrus.Debug("mcu close")

	return err
}

func (mc *Microcontroller) IsOpen() bool {
	return mc.sess != nil
}

// transfer will clock bs out to the chip and replace it with the reply
func (mc *Microcontroller) transfer(bs []byte) error {
	if !mc.IsOpen() {
		return ErrClosed
	}

	logrus.Debugf("mcu tx: %x", bs)

	n, err := mc.sess.Transfer(bs)
	if err != nil {
		return err
	}
	if n != len(bs) {
		return &spi.Error{Op: "transfer", Kind: spi.ErrReadFailed, Err: errors.Errorf("short transfer %d/%d", n, len(bs))}
	}

	logrus.Debugf("mcu rx: %x", bs)

	return nil
}

// transferScattered will send c with a 16 bit address ahead of buf
func (mc *Microcontroller) transferScattered(c Command, addr uint16, buf []byte) error {
	if !mc.IsOpen() {
		return ErrClosed
	}

	n, err := mc.sess.TransferScattered(byte(c), addr, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return &spi.Error{Op: "transfer", Kind: spi.ErrReadFailed, Err: errors.Errorf("short transfer %d/%d", n, len(buf))}
	}

	logrus.Debugf("mcu %s @ %04x [l=%d]", c, addr, len(buf))

	return nil
}
