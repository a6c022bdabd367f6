// Package cmd is the nrf24le1-flasher command line.
package cmd

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jdelfes/nrf24le1-flasher/flash"
	"github.com/jdelfes/nrf24le1-flasher/ihex"
	"github.com/jdelfes/nrf24le1-flasher/spi"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"
)

// Exit statuses.
const (
	exitOK        = 0
	exitOther     = 1
	exitDecode    = 2
	exitTransport = 3
	exitProtocol  = 4
)

var (
	verbose      bool
	device       string
	serialNumber string
	backend      string
	gpioPins     string
	backupDir    string
	readyTimeout time.Duration
	speed        uint
	fastClock    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nrf24le1-flasher",
	Short: "Program nRF24LE1 chips over an FT232R bit-bang link",
	Long: `Read, write and erase the flash and the info page of an nRF24LE1
through the synchronous bit-bang mode of an FTDI FT232R bridge, native GPIO
lines, or an in-memory emulator.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		logrus.SetLevel(logrus.InfoLevel)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.BoolVarP(&verbose, "verbose", "v", false, "Log SPI traffic and write plans")
	f.StringVarP(&device, "device", "d", "", "USB device of the bridge as <bus>-<port>")
	f.StringVarP(&serialNumber, "serial", "s", "", "Select the bridge by its serial number")
	f.StringVarP(&backend, "backend", "b", "ft232r", "Transport: ft232r, gpio or emulator")
	f.StringVar(&gpioPins, "gpio-pins", "", "GPIO numbers as csn,miso,mosi,sck,reset,prog")
	f.StringVar(&backupDir, "backup-dir", ".", "Directory for info page backups")
	f.DurationVar(&readyTimeout, "ready-timeout", flash.DefaultReadyTimeout, "Longest wait for an erase or program cycle")
	f.UintVar(&speed, "speed", uint(spi.DefaultSpeed/physic.Hertz), "Bit-bang tick rate in Hz")
	f.BoolVar(&fastClock, "fast-clock", false, "Use three ticks per bit instead of four")
}

// Execute runs the command line and returns the exit status.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
	return exitCode(err)
}

var decodeErrors = []error{
	ihex.ErrMalformedLine,
	ihex.ErrBufferTooSmall,
	ihex.ErrTruncatedLine,
	ihex.ErrChecksumMismatch,
	ihex.ErrUnsupportedRecordType,
	ihex.ErrAddressOutOfRange,
	ihex.ErrMissingEOF,
	flash.ErrImageTooLarge,
}

var transportErrors = []error{
	spi.ErrOpenFailed,
	spi.ErrWriteFailed,
	spi.ErrReadFailed,
}

var protocolErrors = []error{
	flash.ErrWriteLatchFailed,
	flash.ErrInfoPageToggleFailed,
	flash.ErrDeviceLocked,
	flash.ErrLockFailed,
	flash.ErrTimeout,
	flash.ErrVerification,
	flash.ErrExtraVerification,
	flash.ErrChipIDMismatch,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// exitCode maps an error to the exit status of its class
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case isAny(err, decodeErrors):
		return exitDecode
	case isAny(err, transportErrors):
		return exitTransport
	case isAny(err, protocolErrors):
		return exitProtocol
	default:
		return exitOther
	}
}
