package flash

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestReadInfoPage(t *testing.T) {
	e := NewEmulator()
	mc, _ := newTestMCU(t, e)

	page, err := mc.ReadInfoPage()
	if err != nil {
		t.Fatalf("ReadInfoPage(): %v", err)
	}
	if !bytes.Equal(page, e.Info[:]) {
		t.Errorf("ReadInfoPage() = %x", page[:16])
	}
	if e.FSR.Has(FSRINFEN) {
		t.Errorf("info page left mapped")
	}

	id, err := mc.Identify()
	if err != nil {
		t.Fatalf("Identify(): %v", err)
	}
	if id.String() != "80:81:82:83:84" {
		t.Errorf("Identify() = %s", id)
	}

	e.ResetCounts()
	if _, err := mc.Identify(); err != nil {
		t.Fatalf("second Identify(): %v", err)
	}
	if n := e.Count(CommandRead); n != 0 {
		t.Errorf("second Identify() read the chip %d times", n)
	}
}

func TestReadNUPP(t *testing.T) {
	tests := []struct {
		raw  byte
		want int
	}{
		{0x00, 0},
		{0x10, 16},
		{0x20, 32},
		{0x21, 32},
		{0xFF, 32},
	}

	for _, tt := range tests {
		e := NewEmulator()
		e.Info[NUPPOffset] = tt.raw
		mc, _ := newTestMCU(t, e)

		got, err := mc.ReadNUPP()
		if err != nil {
			t.Fatalf("ReadNUPP(): %v", err)
		}
		if got != tt.want {
			t.Errorf("ReadNUPP() with 0x%02x = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestSetNUPP(t *testing.T) {
	e := NewEmulator()
	mc, backups := newTestMCU(t, e)
	before := e.Info

	if err := mc.SetNUPP(0x10); err != nil {
		t.Fatalf("SetNUPP(): %v", err)
	}
	if e.Info[NUPPOffset] != 0x10 {
		t.Errorf("NUPP = 0x%02x", e.Info[NUPPOffset])
	}
	if e.Count(CommandErasePage) != 0 {
		t.Errorf("lowering NUPP erased the info page")
	}
	if len(backups.pages) != 1 || !bytes.Equal(backups.pages[0], before[:]) {
		t.Errorf("backup does not hold the info page before the change")
	}

	// raising it again needs an erase, and the rest of the page survives
	if err := mc.SetNUPP(0x18); err != nil {
		t.Fatalf("SetNUPP(): %v", err)
	}
	if e.Count(CommandErasePage) != 1 {
		t.Errorf("sent %d erases, want 1", e.Count(CommandErasePage))
	}
	if e.Info[NUPPOffset] != 0x18 || ChipIDFromPage(e.Info[:]).String() != "80:81:82:83:84" {
		t.Errorf("info page after erase = %x", e.Info[:NUPPOffset+1])
	}
	if len(backups.pages) != 2 {
		t.Errorf("took %d backups, want 2", len(backups.pages))
	}
}

func TestWriteInfoPage(t *testing.T) {
	e := NewEmulator()
	mc, backups := newTestMCU(t, e)

	page := append([]byte(nil), e.Info[:]...)
	page[UserAreaOffset] = 0x42

	t.Run("wrong size", func(t *testing.T) {
		if err := mc.WriteInfoPage(page[:100], false); err == nil {
			t.Fatalf("WriteInfoPage() accepted a short page")
		}
	})

	t.Run("chip id mismatch", func(t *testing.T) {
		other := append([]byte(nil), page...)
		other[ChipIDOffset] = 0x00
		err := mc.WriteInfoPage(other, false)
		if !errors.Is(err, ErrChipIDMismatch) {
			t.Fatalf("WriteInfoPage() error = %v, want ErrChipIDMismatch", err)
		}
		if e.Count(CommandProgram) != 0 {
			t.Errorf("programmed after a mismatch")
		}
	})

	t.Run("matching", func(t *testing.T) {
		if err := mc.WriteInfoPage(page, false); err != nil {
			t.Fatalf("WriteInfoPage(): %v", err)
		}
		if !bytes.Equal(e.Info[:], page) {
			t.Errorf("info page not written")
		}
		if len(backups.pages) != 1 {
			t.Errorf("took %d backups, want 1", len(backups.pages))
		}
	})

	t.Run("force", func(t *testing.T) {
		other := append([]byte(nil), page...)
		copy(other[ChipIDOffset:], []byte{1, 2, 3, 4, 5})
		if err := mc.WriteInfoPage(other, true); err != nil {
			t.Fatalf("WriteInfoPage(): %v", err)
		}
		if got := ChipIDFromPage(e.Info[:]).String(); got != "01:02:03:04:05" {
			t.Errorf("chip id = %s", got)
		}
	})
}

func TestWriteUserArea(t *testing.T) {
	e := NewEmulator()
	mc, _ := newTestMCU(t, e)

	db, err := ParseDeviceDB(strings.NewReader("# id tx channel power\n80:81:82:83:84 e7:e7:e7:e7:e7 4c 3\n"))
	if err != nil {
		t.Fatalf("ParseDeviceDB(): %v", err)
	}

	if err := mc.WriteUserArea(db); err != nil {
		t.Fatalf("WriteUserArea(): %v", err)
	}
	want := []byte{0xE7, 0xE7, 0xE7, 0xE7, 0xE7, 0x4C, 0x03}
	if got := e.Info[UserAreaOffset : UserAreaOffset+UserAreaSize]; !bytes.Equal(got, want) {
		t.Errorf("user area = %x, want %x", got, want)
	}

	e.Info[ChipIDOffset] = 0x00
	if err := mc.WriteUserArea(db); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("WriteUserArea() for unknown chip error = %v", err)
	}
}

func TestParseDeviceDB(t *testing.T) {
	tests := []struct {
		name string
		in   string
		yaml bool
		err  bool
	}{
		{"text", "\n80:81:82:83:84  01:02:03:04:05 2 0\n", false, false},
		{"text bad id", "80:81:82 01:02:03:04:05 2 0\n", false, true},
		{"text fields", "80:81:82:83:84 01:02:03:04:05 2\n", false, true},
		{"text hex prefix", "80:81:82:83:84 01:02:03:04:05 0x2 0X0\n", false, false},
		{"text bad channel", "80:81:82:83:84 01:02:03:04:05 100 0\n", false, true},
		{"text not hex", "80:81:82:83:84 01:02:03:04:05 2g 0\n", false, true},
		{"yaml", "- id: \"80:81:82:83:84\"\n  tx_addr: \"01:02:03:04:05\"\n  channel: 2\n  power: 0\n", true, false},
		{"yaml bad addr", "- id: \"80:81:82:83:84\"\n  tx_addr: \"01:02\"\n", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parse := ParseDeviceDB
			if tt.yaml {
				parse = ParseDeviceDBYAML
			}

			db, err := parse(strings.NewReader(tt.in))
			if tt.err {
				if err == nil {
					t.Fatalf("parse() returned no error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse(): %v", err)
			}

			c, err := db.Lookup("80:81:82:83:84")
			if err != nil {
				t.Fatalf("Lookup(): %v", err)
			}
			if !bytes.Equal(c.Bytes(), []byte{1, 2, 3, 4, 5, 2, 0}) {
				t.Errorf("Bytes() = %x", c.Bytes())
			}
		})
	}
}

func TestParseDeviceDBHexValues(t *testing.T) {
	db, err := ParseDeviceDB(strings.NewReader("80:81:82:83:84 e7:e7:e7:e7:e7 10 10\n"))
	if err != nil {
		t.Fatalf("ParseDeviceDB(): %v", err)
	}
	c, err := db.Lookup("80:81:82:83:84")
	if err != nil {
		t.Fatalf("Lookup(): %v", err)
	}
	if c.Channel != 0x10 || c.Power != 0x10 {
		t.Errorf("channel %d power %d, want 16 16", c.Channel, c.Power)
	}
}

func TestLoadDeviceDB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.yml")
	content := "- id: \"80:81:82:83:84\"\n  tx_addr: \"e7:e7:e7:e7:e7\"\n  channel: 0x4c\n  power: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := LoadDeviceDB(path)
	if err != nil {
		t.Fatalf("LoadDeviceDB(): %v", err)
	}
	c, err := db.Lookup("80:81:82:83:84")
	if err != nil {
		t.Fatalf("Lookup(): %v", err)
	}
	if c.Channel != 0x4c || c.Power != 3 {
		t.Errorf("config = %+v", c)
	}
}

func TestFileBackup(t *testing.T) {
	dir := t.TempDir()
	old := now
	now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	defer func() { now = old }()

	page := pattern(PageSize, 9)
	b := &FileBackup{Dir: dir}
	if err := b.WriteBackup(page, "80:81:82:83:84"); err != nil {
		t.Fatalf("WriteBackup(): %v", err)
	}

	bs, err := os.ReadFile(filepath.Join(dir, "ip_backup-20240309_140507.80:81:82:83:84.bin"))
	if err != nil {
		t.Fatalf("backup file: %v", err)
	}
	if !bytes.Equal(bs, page) {
		t.Errorf("backup content differs")
	}
}

func TestChecksum(t *testing.T) {
	// CRC-16/XMODEM check value
	if got := Checksum([]byte("123456789")); got != 0x31C3 {
		t.Errorf("Checksum() = 0x%04x, want 0x31c3", got)
	}
}
