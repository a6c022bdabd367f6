package flash

import (
	"io"
	"os"

	"github.com/jdelfes/nrf24le1-flasher/ihex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// WriteFlashSmartFromFile will write the Intel HEX file at filePath with
// WriteFlashSmart
func (mc *Microcontroller) WriteFlashSmartFromFile(filePath string, opts SmartOptions) (*Plan, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mc.WriteFlashSmart(f, opts)
}

// ReadFlash will return the main block followed by the data memory
func (mc *Microcontroller) ReadFlash() ([]byte, error) {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return nil, err
		}
		defer mc.Close()
	}

	if err := mc.checkUnlocked(); err != nil {
		return nil, err
	}
	if err := mc.DisableInfoPage(); err != nil {
		return nil, err
	}

	bs := make([]byte, ReadFlashSize)
	if err := mc.Read(0, bs); err != nil {
		return nil, errors.Wrap(err, "could not read flash")
	}
	return bs, nil
}

// WriteFlash will program every record of the Intel HEX image in r as it
// comes, without erasing. The target area must already be erased.
func (mc *Microcontroller) WriteFlash(r io.Reader) error {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return err
		}
		defer mc.Close()
	}

	if err := mc.checkUnlocked(); err != nil {
		return err
	}
	if err := mc.DisableInfoPage(); err != nil {
		return err
	}

	d := ihex.NewDecoder(r)
	var buf [ihex.MaxDataLen]byte
	written := 0

	for {
		rec, err := d.Next(buf[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if rec.Type != ihex.RecordData || rec.Count() == 0 {
			continue
		}
		if rec.End() > FlashSize {
			return errors.Wrapf(ErrImageTooLarge, "line %d", d.Line())
		}

		logrus.Debugf("wm: @ %04x [l=%d]", rec.Address, rec.Count())

		if err := mc.Program(rec.Address, rec.Data); err != nil {
			return errors.Wrapf(err, "could not write line %d", d.Line())
		}
		if err := mc.verify(rec.Address, rec.Data); err != nil {
			return errors.Wrapf(err, "line %d", d.Line())
		}
		written += rec.Count()
	}

	logrus.Infof("%d bytes written", written)
	return nil
}

// EraseFlash will erase the main block and leave the info page alone
func (mc *Microcontroller) EraseFlash() error {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return err
		}
		defer mc.Close()
	}

	if err := mc.checkUnlocked(); err != nil {
		return err
	}
	if err := mc.DisableInfoPage(); err != nil {
		return err
	}

	return mc.eraseAll()
}

// EraseAll will erase the main block and the info page, which also lifts
// the read back protection. The info page is backed up first.
func (mc *Microcontroller) EraseAll() error {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return err
		}
		defer mc.Close()
	}

	if err := mc.EnableInfoPage(); err != nil {
		return err
	}

	page := make([]byte, PageSize)
	if err := mc.Read(0, page); err != nil {
		return errors.Wrap(err, "could not read info page")
	}
	if err := mc.backupInfoPage(page); err != nil {
		return err
	}

	logrus.Warn("erasing main block and info page")
	if err := mc.eraseAll(); err != nil {
		return err
	}
	mc.identity = nil

	return mc.DisableInfoPage()
}

func (mc *Microcontroller) eraseAll() error {
	if err := mc.EnableWriteLatch(); err != nil {
		return err
	}
	if err := mc.cmdEraseAll(); err != nil {
		return err
	}
	return errors.Wrap(mc.WaitReady(), "erase all")
}

// Lock will disable read back of the main block. Only EraseAll undoes it.
func (mc *Microcontroller) Lock() error {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return err
		}
		defer mc.Close()
	}

	locked, err := mc.IsLocked()
	if err != nil {
		return err
	}
	if locked {
		logrus.Warn("device is already locked")
		return nil
	}

	if err := mc.EnableWriteLatch(); err != nil {
		return err
	}
	if err := mc.cmdReadbackDisable(); err != nil {
		return err
	}
	if err := mc.WaitReady(); err != nil {
		return err
	}

	if locked, err = mc.IsLocked(); err != nil {
		return err
	}
	if !locked {
		return ErrLockFailed
	}
	return nil
}
