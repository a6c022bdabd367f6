package flash

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EnableWriteLatch will set WEN and confirm the chip took it. The latch
// clears itself after every erase or program.
func (mc *Microcontroller) EnableWriteLatch() error {
	fsr, err := mc.ReadFSR()
	if err != nil {
		return err
	}
	if fsr.Has(FSRWEN) {
		return nil
	}

	if err := mc.cmdWriteEnable(); err != nil {
		return err
	}

	fsr, err = mc.ReadFSR()
	if err != nil {
		return err
	}
	if !fsr.Has(FSRWEN) {
		return errors.Wrapf(ErrWriteLatchFailed, "fsr %s", fsr)
	}

	return nil
}

// EnableInfoPage will map the info page in place of the main block
func (mc *Microcontroller) EnableInfoPage() error {
	return mc.setInfoPage(true)
}

// DisableInfoPage will map the main block back
func (mc *Microcontroller) DisableInfoPage() error {
	return mc.setInfoPage(false)
}

func (mc *Microcontroller) setInfoPage(on bool) error {
	fsr, err := mc.ReadFSR()
	if err != nil {
		return err
	}

	if fsr.Has(FSRINFEN) == on {
		return nil
	}

	if err := mc.WriteFSR(fsr ^ FSRINFEN); err != nil {
		return err
	}

	fsr, err = mc.ReadFSR()
	if err != nil {
		return err
	}
	if fsr.Has(FSRINFEN) != on {
		return errors.Wrapf(ErrInfoPageToggleFailed, "fsr %s", fsr)
	}

	return nil
}

// WaitReady will poll the status register until RDYN clears or the
// configured timeout passes
func (mc *Microcontroller) WaitReady() error {
	deadline := time.Now().Add(mc.config.ReadyTimeout)

	for polls := 1; ; polls++ {
		fsr, err := mc.ReadFSR()
		if err != nil {
			return err
		}
		if fsr.Ready() {
			if polls > 1 {
				logrus.Debugf("flash ready after %d polls", polls)
			}
			return nil
		}

		if time.Now().After(deadline) {
			return errors.Wrapf(ErrTimeout, "fsr %s after %d polls", fsr, polls)
		}
		if mc.config.ReadyPoll > 0 {
			time.Sleep(mc.config.ReadyPoll)
		}
	}
}

// IsLocked will report whether read back of the main block is disabled
func (mc *Microcontroller) IsLocked() (bool, error) {
	fsr, err := mc.ReadFSR()
	if err != nil {
		return false, err
	}
	return fsr.Has(FSRRDISMB), nil
}

// checkUnlocked will fail with ErrDeviceLocked on a protected chip
func (mc *Microcontroller) checkUnlocked() error {
	locked, err := mc.IsLocked()
	if err != nil {
		return err
	}
	if locked {
		return ErrDeviceLocked
	}
	return nil
}

// ErasePage will erase one page of whatever block is mapped
func (mc *Microcontroller) ErasePage(page int) error {
	if err := mc.EnableWriteLatch(); err != nil {
		return err
	}
	if err := mc.cmdErasePage(byte(page)); err != nil {
		return err
	}
	return errors.Wrapf(mc.WaitReady(), "erase page %d", page)
}

// Program will program data at addr and wait for the cycle to finish
func (mc *Microcontroller) Program(addr uint16, data []byte) error {
	if err := mc.EnableWriteLatch(); err != nil {
		return err
	}
	if err := mc.cmdProgram(addr, data); err != nil {
		return err
	}
	return errors.Wrapf(mc.WaitReady(), "program 0x%04x", addr)
}
