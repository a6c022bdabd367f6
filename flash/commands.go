package flash

import (
	"bytes"

	"github.com/pkg/errors"
)

// execCmd will send c followed by args and return the full reply frame
func (mc *Microcontroller) execCmd(c Command, args ...byte) ([]byte, error) {
	frame := append([]byte{byte(c)}, args...)
	if err := mc.transfer(frame); err != nil {
		return nil, errors.Wrapf(err, "could not exec %s", c)
	}
	return frame, nil
}

// ReadFSR will return the flash status register
func (mc *Microcontroller) ReadFSR() (FSR, error) {
	frame, err := mc.execCmd(CommandRDSR, 0x00)
	if err != nil {
		return 0, err
	}
	return FSR(frame[1]), nil
}

// WriteFSR will overwrite the flash status register
func (mc *Microcontroller) WriteFSR(f FSR) error {
	_, err := mc.execCmd(CommandWRSR, byte(f))
	return err
}

// ReadFPCR will return the flash protect configuration register
func (mc *Microcontroller) ReadFPCR() (byte, error) {
	frame, err := mc.execCmd(CommandRDFPCR, 0x00)
	if err != nil {
		return 0, err
	}
	return frame[1], nil
}

func (mc *Microcontroller) cmdWriteEnable() error {
	_, err := mc.execCmd(CommandWREN)
	return err
}

func (mc *Microcontroller) cmdErasePage(page byte) error {
	_, err := mc.execCmd(CommandErasePage, page)
	return err
}

func (mc *Microcontroller) cmdEraseAll() error {
	_, err := mc.execCmd(CommandEraseAll)
	return err
}

func (mc *Microcontroller) cmdReadbackDisable() error {
	_, err := mc.execCmd(CommandRDISMB)
	return err
}

// Read will fill buf with the flash contents at addr
func (mc *Microcontroller) Read(addr uint16, buf []byte) error {
	return mc.transferScattered(CommandRead, addr, buf)
}

// cmdProgram will program data at addr. The latch must be set and the page
// erased where bits go from 0 to 1.
func (mc *Microcontroller) cmdProgram(addr uint16, data []byte) error {
	return mc.transferScattered(CommandProgram, addr, data)
}

// verify will read back len(want) bytes at addr and compare them
func (mc *Microcontroller) verify(addr uint16, want []byte) error {
	got := make([]byte, len(want))
	if err := mc.Read(addr, got); err != nil {
		return errors.Wrap(err, "could not read back")
	}

	if bytes.Equal(got, want) {
		return nil
	}
	for i := range want {
		if got[i] != want[i] {
			return &VerificationError{Address: addr + uint16(i), Want: want[i], Got: got[i]}
		}
	}
	return nil
}
