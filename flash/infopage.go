package flash

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ChipID is the unique id programmed into the info page at the factory.
type ChipID [ChipIDSize]byte

func (id ChipID) String() string {
	parts := make([]string, len(id))
	for i, b := range id {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ":")
}

// ChipIDFromPage will extract the chip id from a raw info page
func ChipIDFromPage(page []byte) ChipID {
	var id ChipID
	copy(id[:], page[ChipIDOffset:ChipIDOffset+ChipIDSize])
	return id
}

// withInfoPage will run fn with the info page mapped and map the main block
// back afterwards
func (mc *Microcontroller) withInfoPage(fn func() error) error {
	if err := mc.EnableInfoPage(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		mc.DisableInfoPage()
		return err
	}
	return mc.DisableInfoPage()
}

// ReadInfoPage will return a copy of the whole info page
func (mc *Microcontroller) ReadInfoPage() ([]byte, error) {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return nil, err
		}
		defer mc.Close()
	}

	page := make([]byte, PageSize)
	err := mc.withInfoPage(func() error {
		return mc.Read(0, page)
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not read info page")
	}
	return page, nil
}

// ReadChipID will read the chip id from the info page
func (mc *Microcontroller) ReadChipID() (ChipID, error) {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return ChipID{}, err
		}
		defer mc.Close()
	}

	var id ChipID
	err := mc.withInfoPage(func() error {
		return mc.Read(ChipIDOffset, id[:])
	})
	if err != nil {
		return ChipID{}, errors.Wrap(err, "could not read chip id")
	}
	return id, nil
}

// ReadNUPP will return the number of pages below the protected area,
// clamped to the main block
func (mc *Microcontroller) ReadNUPP() (int, error) {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return 0, err
		}
		defer mc.Close()
	}

	var nupp [1]byte
	err := mc.withInfoPage(func() error {
		return mc.Read(NUPPOffset, nupp[:])
	})
	if err != nil {
		return 0, errors.Wrap(err, "could not read NUPP")
	}

	n := min(int(nupp[0]), PagesCnt)
	logrus.Debugf("NUPP 0x%02x, %d pages writable", nupp[0], n)
	return n, nil
}

// SetNUPP will change the protection boundary in the info page
func (mc *Microcontroller) SetNUPP(nupp byte) error {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return err
		}
		defer mc.Close()
	}

	var pp PagePlan
	pp.Runs[NUPPOffset].Count = 1
	pp.BytesToWrite = 1

	target := make([]byte, PageSize)
	target[NUPPOffset] = nupp

	logrus.Infof("setting NUPP to 0x%02x", nupp)
	return mc.withInfoPage(func() error {
		return mc.WritePageSmart(&pp, 0, target, true)
	})
}

// WriteInfoPage will replace the whole info page with page. Unless force is
// set the chip id in page must match the one on the chip.
func (mc *Microcontroller) WriteInfoPage(page []byte, force bool) error {
	if len(page) != PageSize {
		return errors.Errorf("info page image is %d bytes, want %d", len(page), PageSize)
	}

	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return err
		}
		defer mc.Close()
	}

	if err := mc.checkUnlocked(); err != nil {
		return err
	}

	var pp PagePlan
	pp.Runs[0].Count = PageSize
	pp.BytesToWrite = PageSize

	return mc.withInfoPage(func() error {
		if !force {
			var id ChipID
			if err := mc.Read(ChipIDOffset, id[:]); err != nil {
				return err
			}
			if want := ChipIDFromPage(page); id != want {
				return errors.Wrapf(ErrChipIDMismatch, "chip %s, image %s", id, want)
			}
		}
		return mc.WritePageSmart(&pp, 0, page, true)
	})
}

// WriteUserArea will look the chip up in db and write its radio settings to
// the user area of the info page
func (mc *Microcontroller) WriteUserArea(db ConfigLookup) error {
	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return err
		}
		defer mc.Close()
	}

	id, err := mc.ReadChipID()
	if err != nil {
		return err
	}
	cfg, err := db.Lookup(id.String())
	if err != nil {
		return err
	}
	logrus.Infof("chip %s: %s", id, cfg)

	var pp PagePlan
	pp.Runs[UserAreaOffset].Count = UserAreaSize
	pp.BytesToWrite = UserAreaSize

	target := make([]byte, PageSize)
	copy(target[UserAreaOffset:], cfg.Bytes())

	return mc.withInfoPage(func() error {
		return mc.WritePageSmart(&pp, 0, target, true)
	})
}

// backupInfoPage will hand a copy of the current info page to the
// configured backup writer
func (mc *Microcontroller) backupInfoPage(page []byte) error {
	id := ChipIDFromPage(page)
	if err := mc.config.Backup.WriteBackup(page, id.String()); err != nil {
		return errors.Wrap(err, "could not backup info page")
	}
	return nil
}
