package flash

import (
	"bytes"
	"io"

	"github.com/jdelfes/nrf24le1-flasher/ihex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SmartOptions controls WriteFlashSmart.
type SmartOptions struct {
	Offset        uint16
	HighestOffset bool

	// SkipNUPPCheck lets the image reach into the protected pages.
	SkipNUPPCheck bool

	// MatchNUPPWithOffset moves the protection boundary to the offset the
	// image was written at, so everything below it stays writable from the
	// firmware. It implies SkipNUPPCheck.
	MatchNUPPWithOffset bool

	// ExtraVerification reads every record back after the whole image is
	// written.
	ExtraVerification bool
}

// writeNeeded reports whether any pending byte differs from the chip.
func writeNeeded(pp *PagePlan, current, target []byte) bool {
	needed := false
	pp.spans(func(offset, count int) bool {
		needed = !bytes.Equal(current[offset:offset+count], target[offset:offset+count])
		return !needed
	})
	return needed
}

// eraseNeeded reports whether any pending byte needs a bit to go from 0 to
// 1, which programming alone cannot do.
func eraseNeeded(pp *PagePlan, current, target []byte) bool {
	needed := false
	pp.spans(func(offset, count int) bool {
		for i := offset; i < offset+count; i++ {
			if ^current[i]&target[i] != 0 {
				needed = true
				return false
			}
		}
		return true
	})
	return needed
}

// WritePageSmart will bring the pending runs of page to target, erasing only
// when needed and keeping every other byte of the page. With backup set the
// page is handed to the backup writer before it is changed; it is used for
// the info page.
func (mc *Microcontroller) WritePageSmart(pp *PagePlan, page int, target []byte, backup bool) error {
	addr := uint16(page * PageSize)

	current := make([]byte, PageSize)
	if err := mc.Read(addr, current); err != nil {
		return errors.Wrapf(err, "could not read page %d", page)
	}

	pp.WriteNeeded = writeNeeded(pp, current, target)
	if !pp.WriteNeeded {
		logrus.Debugf("page %d: write not needed", page)
		return nil
	}
	pp.EraseNeeded = eraseNeeded(pp, current, target)

	if backup {
		if err := mc.backupInfoPage(current); err != nil {
			return err
		}
	}

	if pp.EraseNeeded {
		logrus.Debugf("page %d: erasing", page)
		if err := mc.ErasePage(page); err != nil {
			return err
		}
	}

	// after an erase the untouched bytes go back in too
	merged := current
	pp.spans(func(offset, count int) bool {
		copy(merged[offset:offset+count], target[offset:offset+count])
		return true
	})

	logrus.Infof("page %d: writing %d bytes (erase: %v)", page, pp.BytesToWrite, pp.EraseNeeded)
	if err := mc.Program(addr, merged); err != nil {
		return err
	}

	return errors.Wrapf(mc.verify(addr, merged), "page %d", page)
}

// WriteFlashSmart will write the Intel HEX image in rs to the main block a
// page at a time, skipping pages that already hold the image
func (mc *Microcontroller) WriteFlashSmart(rs io.ReadSeeker, opts SmartOptions) (*Plan, error) {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return nil, err
		}
		defer mc.Close()
	}

	if err := mc.checkUnlocked(); err != nil {
		return nil, err
	}

	popts := PlanOptions{
		Offset:        opts.Offset,
		HighestOffset: opts.HighestOffset,
	}
	if !opts.SkipNUPPCheck && !opts.MatchNUPPWithOffset {
		nupp, err := mc.ReadNUPP()
		if err != nil {
			return nil, err
		}
		popts.Limited = true
		popts.Limit = nupp * PageSize
	}

	plan, err := BuildPlan(rs, popts)
	if err != nil {
		return nil, errors.Wrap(err, "could not plan writes")
	}

	if err := mc.DisableInfoPage(); err != nil {
		return nil, err
	}

	for i := range plan.Pages {
		pp := &plan.Pages[i]
		if pp.BytesToWrite == 0 {
			continue
		}
		if err := mc.WritePageSmart(pp, i, plan.Target(i), false); err != nil {
			return plan, err
		}
	}

	if opts.ExtraVerification {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return plan, errors.Wrap(err, "could not rewind image")
		}
		if err := mc.verifyImage(rs, plan.Offset); err != nil {
			return plan, err
		}
	}

	if opts.MatchNUPPWithOffset {
		if err := mc.SetNUPP(byte(plan.Offset / PageSize)); err != nil {
			return plan, err
		}
	}

	return plan, nil
}

// verifyImage will read every data record of the image in r back from the
// chip at its address plus offset
func (mc *Microcontroller) verifyImage(r io.Reader, offset uint16) error {
	d := ihex.NewDecoder(r)
	var buf [ihex.MaxDataLen]byte

	mismatches := 0
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

		addr := rec.Address + offset
		err = mc.verify(addr, rec.Data)
		if errors.Is(err, ErrVerification) {
			logrus.Errorf("line %d: %v", d.Line(), err)
			mismatches++
			continue
		}
		if err != nil {
			return err
		}
	}

	if mismatches > 0 {
		return errors.Wrapf(ErrExtraVerification, "%d records differ", mismatches)
	}
	logrus.Info("extra verification passed")
	return nil
}
