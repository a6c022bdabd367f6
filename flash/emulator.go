package flash

import (
	"sync"

	"github.com/jdelfes/nrf24le1-flasher/spi"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Emulator is an in-memory nRF24LE1 in programming mode. It serves as both
// the transport and the session so the flashing logic can run without
// hardware.
type Emulator struct {
	mu sync.Mutex

	FSR  FSR
	FPCR byte
	Main [ReadFlashSize]byte
	Info [PageSize]byte

	// BusyPolls is the number of status reads that report busy after every
	// erase or program.
	BusyPolls int

	// Stuck keeps the flash busy forever.
	Stuck bool

	// RejectWEN and RejectINFEN make the chip ignore the matching bit.
	RejectWEN   bool
	RejectINFEN bool

	busy   int
	counts map[Command]int
	begun  bool
}

// NewEmulator returns an erased chip with a factory info page.
func NewEmulator() *Emulator {
	e := &Emulator{counts: map[Command]int{}}
	for i := range e.Main {
		e.Main[i] = 0xFF
	}
	for i := range e.Info {
		e.Info[i] = 0xFF
	}
	for i := 0; i < ChipIDOffset; i++ {
		e.Info[i] = byte(i)
	}
	for i := 0; i < ChipIDSize; i++ {
		e.Info[ChipIDOffset+i] = 0x80 + byte(i)
	}
	return e
}

// Begin implements spi.Transport.
func (e *Emulator) Begin(bus, port uint8) (spi.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.begun {
		return nil, &spi.Error{Op: "emulator", Kind: spi.ErrOpenFailed, Err: errors.New("already in programming mode")}
	}
	e.begun = true
	e.FSR &^= FSRWEN | FSRINFEN | FSRRDYN

	logrus.Warn("using the flash emulator, no hardware is touched")
	return e, nil
}

// End implements spi.Session.
func (e *Emulator) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.begun = false
	return nil
}

// Count returns how many times c was received.
func (e *Emulator) Count(c Command) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[c]
}

// ResetCounts clears the command counters.
func (e *Emulator) ResetCounts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts = map[Command]int{}
}

// Transfer implements spi.Session.
func (e *Emulator) Transfer(buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.begun {
		return 0, &spi.Error{Op: "emulator", Kind: spi.ErrWriteFailed, Err: errors.New("not in programming mode")}
	}
	if len(buf) == 0 {
		return 0, nil
	}

	c := Command(buf[0])
	e.counts[c]++

	switch c {
	case CommandWREN:
		if !e.RejectWEN {
			e.FSR |= FSRWEN
		}
	case CommandWRDIS:
		e.FSR &^= FSRWEN
	case CommandRDSR:
		if len(buf) > 1 {
			buf[1] = byte(e.status())
		}
	case CommandWRSR:
		if len(buf) > 1 {
			const writable = FSRSTP | FSRWEN | FSRINFEN
			v := FSR(buf[1]) & writable
			if e.RejectINFEN {
				v = v&^FSRINFEN | e.FSR&FSRINFEN
			}
			e.FSR = e.FSR&^writable | v
		}
	case CommandRDFPCR:
		if len(buf) > 1 {
			buf[1] = e.FPCR
		}
	case CommandRDISMB:
		if e.latched() {
			e.FSR |= FSRRDISMB
		}
	case CommandENDEBUG:
		e.FSR |= FSRENDEBUG
	case CommandErasePage:
		if len(buf) > 1 && e.latched() {
			e.erasePage(int(buf[1]))
		}
	case CommandEraseAll:
		if e.latched() {
			e.eraseAll()
		}
	case CommandProgram, CommandRead:
		if len(buf) < 3 {
			break
		}
		addr := int(buf[1])<<8 | int(buf[2])
		if err := e.access(c, addr, buf[3:]); err != nil {
			return 0, err
		}
	default:
		logrus.Warnf("emulator: unknown command 0x%02x", buf[0])
	}

	return len(buf), nil
}

// TransferScattered implements spi.Session.
func (e *Emulator) TransferScattered(op byte, addr uint16, buf []byte) (int, error) {
	frame := make([]byte, 3+len(buf))
	frame[0] = op
	frame[1] = byte(addr >> 8)
	frame[2] = byte(addr)
	if Command(op) != CommandRead {
		copy(frame[3:], buf)
	}

	if _, err := e.Transfer(frame); err != nil {
		return 0, err
	}
	if Command(op) == CommandRead {
		copy(buf, frame[3:])
	}
	return len(buf), nil
}

func (e *Emulator) status() FSR {
	f := e.FSR
	switch {
	case e.Stuck:
		f |= FSRRDYN
	case e.busy > 0:
		e.busy--
		f |= FSRRDYN
	}
	return f
}

// latched consumes the write enable latch.
func (e *Emulator) latched() bool {
	ok := e.FSR.Has(FSRWEN)
	e.FSR &^= FSRWEN
	if ok {
		e.busy = e.BusyPolls
	}
	return ok
}

// region returns the memory currently mapped at address zero.
func (e *Emulator) region() []byte {
	if e.FSR.Has(FSRINFEN) {
		return e.Info[:]
	}
	return e.Main[:]
}

func (e *Emulator) erasePage(page int) {
	mem := e.region()
	if e.FSR.Has(FSRINFEN) {
		page = 0
	}
	start := page * PageSize
	if start >= FlashSize {
		logrus.Warnf("emulator: erase of page %d out of range", page)
		return
	}
	for i := start; i < start+PageSize; i++ {
		mem[i] = 0xFF
	}
}

func (e *Emulator) eraseAll() {
	for i := 0; i < FlashSize; i++ {
		e.Main[i] = 0xFF
	}
	if e.FSR.Has(FSRINFEN) {
		for i := range e.Info {
			e.Info[i] = 0xFF
		}
	}
	e.FSR &^= FSRRDISMB
}

func (e *Emulator) access(c Command, addr int, data []byte) error {
	mem := e.region()
	if addr+len(data) > len(mem) {
		return &spi.Error{Op: "emulator", Kind: spi.ErrReadFailed, Err: errors.Errorf("%s of %d bytes at 0x%04x out of range", c, len(data), addr)}
	}

	if c == CommandRead {
		copy(data, mem[addr:])
		return nil
	}

	if !e.latched() {
		return nil
	}
	for i, v := range data {
		mem[addr+i] &= v
	}
	return nil
}
