package flash

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BackupWriter stores a raw info page before it is overwritten.
type BackupWriter interface {
	WriteBackup(page []byte, chipID string) error
}

// FileBackup writes every backup to its own file in Dir, or the working
// directory when Dir is empty.
type FileBackup struct {
	Dir string
}

var now = time.Now

// BackupFileName returns the name a backup taken at t gets.
func BackupFileName(t time.Time, chipID string) string {
	return fmt.Sprintf("ip_backup-%s.%s.bin", t.Format("20060102_150405"), chipID)
}

// WriteBackup implements BackupWriter.
func (b *FileBackup) WriteBackup(page []byte, chipID string) error {
	path := filepath.Join(b.Dir, BackupFileName(now(), chipID))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "could not create backup file")
	}

	n, err := f.Write(page)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "could not write %s", path)
	}
	if n != len(page) {
		return errors.Errorf("short write to %s: %d/%d", path, n, len(page))
	}

	logrus.Infof("info page backed up to %s (crc16 %04x)", path, Checksum(page))
	return nil
}
