package flash

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var ErrUnknownDevice = errors.New("chip id not found in device database")

// InfoPageConfig is the radio setup kept in the user area of the info page.
type InfoPageConfig struct {
	TxAddr  [5]byte
	Channel byte
	Power   byte
}

// Bytes returns the user area image.
func (c InfoPageConfig) Bytes() []byte {
	bs := make([]byte, 0, UserAreaSize)
	bs = append(bs, c.TxAddr[:]...)
	return append(bs, c.Channel, c.Power)
}

func (c InfoPageConfig) String() string {
	return fmt.Sprintf("tx %s channel %d power %d", ChipID(c.TxAddr), c.Channel, c.Power)
}

// ConfigLookup finds the user area settings of a chip by its id, written
// as in ChipID.String.
type ConfigLookup interface {
	Lookup(chipID string) (InfoPageConfig, error)
}

// DeviceDB maps chip ids to their settings.
type DeviceDB map[ChipID]InfoPageConfig

// Lookup implements ConfigLookup.
func (db DeviceDB) Lookup(chipID string) (InfoPageConfig, error) {
	id, err := parseID(chipID)
	if err != nil {
		return InfoPageConfig{}, err
	}
	c, ok := db[id]
	if !ok {
		return InfoPageConfig{}, errors.Wrap(ErrUnknownDevice, chipID)
	}
	return c, nil
}

// LoadDeviceDB will read the database at path. Files ending in .yaml or
// .yml are read as YAML, anything else as text.
func LoadDeviceDB(path string) (DeviceDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseDeviceDBYAML(f)
	default:
		return ParseDeviceDB(f)
	}
}

// ParseDeviceDB reads one device per line:
//
//	<chip id> <tx address> <channel> <power>
//
// Ids and addresses are five colon separated hex bytes, channel and power
// are hex with an optional 0x prefix. Blank lines and lines starting with #
// are skipped.
func ParseDeviceDB(r io.Reader) (DeviceDB, error) {
	db := DeviceDB{}
	sc := bufio.NewScanner(r)

	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, errors.Errorf("line %d: want 4 fields, got %d", n, len(fields))
		}

		id, err := parseID(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		var c InfoPageConfig
		if c.TxAddr, err = parseID(fields[1]); err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		if c.Channel, err = parseByte(fields[2]); err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		if c.Power, err = parseByte(fields[3]); err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		db[id] = c
	}

	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "could not read device database")
	}
	return db, nil
}

type yamlDevice struct {
	ID      string `yaml:"id"`
	TxAddr  string `yaml:"tx_addr"`
	Channel uint8  `yaml:"channel"`
	Power   uint8  `yaml:"power"`
}

// ParseDeviceDBYAML reads a list of devices:
//
//	- id: "80:81:82:83:84"
//	  tx_addr: "e7:e7:e7:e7:e7"
//	  channel: 76
//	  power: 3
func ParseDeviceDBYAML(r io.Reader) (DeviceDB, error) {
	var devices []yamlDevice
	if err := yaml.NewDecoder(r).Decode(&devices); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "could not parse device database")
	}

	db := DeviceDB{}
	for i, d := range devices {
		id, err := parseID(d.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "device %d", i)
		}
		tx, err := parseID(d.TxAddr)
		if err != nil {
			return nil, errors.Wrapf(err, "device %d", i)
		}
		db[id] = InfoPageConfig{TxAddr: tx, Channel: d.Channel, Power: d.Power}
	}
	return db, nil
}

// parseID reads five colon separated hex bytes.
func parseID(s string) (ChipID, error) {
	var id ChipID

	parts := strings.Split(s, ":")
	if len(parts) != len(id) {
		return id, errors.Errorf("%q: want %d bytes", s, len(id))
	}
	for i, p := range parts {
		bs, err := hex.DecodeString(p)
		if err != nil || len(bs) != 1 {
			return id, errors.Errorf("%q: bad byte %q", s, p)
		}
		id[i] = bs[0]
	}
	return id, nil
}

func parseByte(s string) (byte, error) {
	digits := s
	if len(digits) > 2 && (digits[:2] == "0x" || digits[:2] == "0X") {
		digits = digits[2:]
	}
	v, err := strconv.ParseUint(digits, 16, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "bad value %q", s)
	}
	return byte(v), nil
}
