package flash

import (
	"time"

	"github.com/jdelfes/nrf24le1-flasher/spi"
)

// Config defines configuration for opening and flashing the target
type Config struct {
	// Bus and Port select the USB device of the bridge. Zero picks the first
	// one found.
	Bus  uint8
	Port uint8

	// ReadyTimeout bounds every wait for the flash to finish an erase or
	// program cycle.
	ReadyTimeout time.Duration

	// ReadyPoll is the pause between two status reads while waiting.
	ReadyPoll time.Duration

	// Backup receives the info page before anything overwrites it. Nil
	// writes files to BackupDir.
	Backup    BackupWriter
	BackupDir string
}

// Microcontroller represents an nRF24LE1 reached through an SPI transport
type Microcontroller struct {
	config    *Config
	transport spi.Transport
	sess      spi.Session

	identity *ChipID
}

// NewMicrocontroller will create a new reference to a chip behind t
func NewMicrocontroller(t spi.Transport, c *Config) *Microcontroller {
	if c == nil {
		c = &Config{}
	}

	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.ReadyPoll <= 0 {
		c.ReadyPoll = DefaultReadyPoll
	}
	if c.Backup == nil {
		c.Backup = &FileBackup{Dir: c.BackupDir}
	}

	return &Microcontroller{
		config:    c,
		transport: t,
	}
}

// Identify will report back the chip id stored in the info page
func (mc *Microcontroller) Identify() (ChipID, error) {
	if mc.identity != nil {
		return *mc.identity, nil
	}

	if !mc.IsOpen() {
		if err := mc.Open(); err != nil {
			return ChipID{}, err
		}
		defer mc.Close()
	}

	id, err := mc.ReadChipID()
	if err != nil {
		return ChipID{}, err
	}
	mc.identity = &id

	return id, nil
}

// Reset will take the chip out of programming mode so it runs its firmware.
// The next operation enters programming mode again.
func (mc *Microcontroller) Reset() error {
	if !mc.IsOpen() {
		return nil
	}
	return mc.Close()
}
