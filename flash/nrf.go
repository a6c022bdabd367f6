package flash

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Flash geometry of the nRF24LE1.
const (
	PageSize  = 512
	PagesCnt  = 32
	FlashSize = PageSize * PagesCnt

	// ReadFlashSize covers the main block plus the data memory behind it.
	ReadFlashSize = 18 * 1024
)

// Info page layout.
const (
	ChipIDOffset   = 0x0B
	ChipIDSize     = 5
	NUPPOffset     = 0x20
	UserAreaOffset = 0x100
	UserAreaSize   = 7
)

// Defaults for Config.
var (
	DefaultReadyTimeout = 1 * time.Second
	DefaultReadyPoll    = 50 * time.Microsecond
)

var ErrWriteLatchFailed = errors.New("write enable latch did not set")
var ErrInfoPageToggleFailed = errors.New("info page enable bit did not change")
var ErrDeviceLocked = errors.New("device is read back protected")
var ErrLockFailed = errors.New("device did not lock")
var ErrTimeout = errors.New("timed out waiting for flash to be ready")
var ErrClosed = errors.New("session is closed")
var ErrChipIDMismatch = errors.New("chip id does not match")
var ErrImageTooLarge = errors.New("image does not fit in flash")
var ErrExtraVerification = errors.New("extra verification failed")
var ErrVerification = errors.New("verification failed")

// VerificationError reports the first byte that read back differently from
// what was programmed.
type VerificationError struct {
	Address uint16
	Want    byte
	Got     byte
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed at 0x%04x: wrote 0x%02x, read 0x%02x", e.Address, e.Want, e.Got)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerification
}

// Command is a flash command opcode.
type Command byte

const (
	CommandWREN      Command = 0x06
	CommandWRDIS     Command = 0x04
	CommandRDSR      Command = 0x05
	CommandWRSR      Command = 0x01
	CommandRead      Command = 0x03
	CommandProgram   Command = 0x02
	CommandErasePage Command = 0x52
	CommandEraseAll  Command = 0x62
	CommandRDFPCR    Command = 0x89
	CommandRDISMB    Command = 0x85
	CommandENDEBUG   Command = 0x86
)

var commandNames = map[Command]string{
	CommandWREN:      "WREN",
	CommandWRDIS:     "WRDIS",
	CommandRDSR:      "RDSR",
	CommandWRSR:      "WRSR",
	CommandRead:      "READ",
	CommandProgram:   "PROGRAM",
	CommandErasePage: "ERASE PAGE",
	CommandEraseAll:  "ERASE ALL",
	CommandRDFPCR:    "RDFPCR",
	CommandRDISMB:    "RDISMB",
	CommandENDEBUG:   "ENDEBUG",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Command(0x%02x)", byte(c))
}

// FSR is the flash status register.
type FSR byte

const (
	FSRENDEBUG FSR = 1 << 7
	FSRSTP     FSR = 1 << 6
	FSRWEN     FSR = 1 << 5
	FSRRDYN    FSR = 1 << 4 // low when ready
	FSRINFEN   FSR = 1 << 3
	FSRRDISMB  FSR = 1 << 2 // set when read back is disabled
)

var fsrBits = []struct {
	bit  FSR
	name string
}{
	{FSRENDEBUG, "DBG"},
	{FSRSTP, "STP"},
	{FSRWEN, "WEN"},
	{FSRRDYN, "RDYN"},
	{FSRINFEN, "INFEN"},
	{FSRRDISMB, "RDISMB"},
}

// Has reports whether every bit of b is set.
func (f FSR) Has(b FSR) bool {
	return f&b == b
}

// Ready reports whether the flash is idle.
func (f FSR) Ready() bool {
	return !f.Has(FSRRDYN)
}

func (f FSR) String() string {
	var set []string
	for _, b := range fsrBits {
		if f.Has(b.bit) {
			set = append(set, b.name)
		}
	}
	return fmt.Sprintf("0x%02x [%s]", byte(f), strings.Join(set, " "))
}

// Describe returns one line per known bit, in the order the register lists
// them.
func (f FSR) Describe() []string {
	lines := make([]string, 0, len(fsrBits))
	for _, b := range fsrBits {
		v := 0
		if f.Has(b.bit) {
			v = 1
		}
		lines = append(lines, fmt.Sprintf("%-7s %d", b.name+":", v))
	}
	return lines
}
