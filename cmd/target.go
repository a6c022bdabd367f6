package cmd

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jdelfes/nrf24le1-flasher/flash"
	"github.com/jdelfes/nrf24le1-flasher/spi"
	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

var green = color.New(color.FgGreen)

// newTransport builds the transport chosen with --backend
func newTransport() (spi.Transport, error) {
	switch backend {
	case "ft232r":
		return &spi.FT232R{
			Serial:    serialNumber,
			Speed:     physic.Frequency(speed) * physic.Hertz,
			FastClock: fastClock,
		}, nil
	case "gpio":
		g, err := parseGPIOPins(gpioPins)
		if err != nil {
			return nil, err
		}
		g.FastClock = fastClock
		return g, nil
	case "emulator":
		return flash.NewEmulator(), nil
	default:
		return nil, errors.Errorf("unknown backend %q", backend)
	}
}

// parseDevice reads a <bus>-<port> USB location. Empty means any.
func parseDevice(s string) (bus, port uint8, err error) {
	if s == "" {
		return 0, 0, nil
	}

	b, p, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, errors.Errorf("device %q is not <bus>-<port>", s)
	}
	bv, err := strconv.ParseUint(b, 10, 8)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "bad bus in %q", s)
	}
	pv, err := strconv.ParseUint(p, 10, 8)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "bad port in %q", s)
	}
	return uint8(bv), uint8(pv), nil
}

// parseUint reads a decimal or 0x prefixed number of the given width
func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, errors.Wrapf(err, "bad number %q", s)
	}
	return v, nil
}

// parseGPIOPins reads csn,miso,mosi,sck,reset,prog. Empty means the default
// Raspberry Pi wiring.
func parseGPIOPins(s string) (*spi.GPIO, error) {
	g := spi.DefaultGPIO
	if s == "" {
		return &g, nil
	}

	parts := strings.Split(s, ",")
	lines := []*int{&g.CSN, &g.MISO, &g.MOSI, &g.SCK, &g.RESET, &g.PROG}
	if len(parts) != len(lines) {
		return nil, errors.Errorf("want %d gpio numbers, got %d", len(lines), len(parts))
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return nil, errors.Errorf("bad gpio number %q", p)
		}
		*lines[i] = v
	}
	return &g, nil
}

// connectToTarget opens a session with the chip; callers close it
func connectToTarget() (*flash.Microcontroller, error) {
	t, err := newTransport()
	if err != nil {
		return nil, err
	}
	bus, port, err := parseDevice(device)
	if err != nil {
		return nil, err
	}

	mc := flash.NewMicrocontroller(t, &flash.Config{
		Bus:          bus,
		Port:         port,
		ReadyTimeout: readyTimeout,
		BackupDir:    backupDir,
	})
	if err := mc.Open(); err != nil {
		return nil, err
	}
	return mc, nil
}

func closeTarget(mc *flash.Microcontroller) {
	if err := mc.Close(); err != nil {
		logrus.Warnf("could not leave programming mode: %v", err)
	}
}

// writeImage saves data to path, as Intel HEX when the name ends in .hex or
// .ihx and raw otherwise
func writeImage(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihx":
		mem := gohex.NewMemory()
		if err = mem.AddBinary(0, data); err == nil {
			err = mem.DumpIntelHex(f, 16)
		}
	default:
		_, err = f.Write(data)
	}

	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "could not write %s", path)
	}

	green.Printf("%s: %d bytes, crc16 %04x\n", path, len(data), flash.Checksum(data))
	return nil
}
