package ihex

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// LineError reports which line of the input a decoding failure came from.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Decoder reads records from a stream until the end-of-file record.
type Decoder struct {
	r    *bufio.Reader
	line int
	done bool

	scratch [MaxDataLen]byte
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Reset discards the decoder state and switches to r. It is used to scan the
// same file twice.
func (d *Decoder) Reset(r io.Reader) {
	d.r.Reset(r)
	d.line = 0
	d.done = false
}

// Line returns the number of the last line read.
func (d *Decoder) Line() int {
	return d.line
}

// Next decodes the next record into dst. After the end-of-file record has
// been returned, Next returns io.EOF.
func (d *Decoder) Next(dst []byte) (Record, error) {
	if d.done {
		return Record{}, io.EOF
	}

	line, err := d.readLine()
	if err != nil {
		return Record{}, err
	}

	rec, err := DecodeLine(line, dst)
	if err != nil {
		return Record{}, &LineError{Line: d.line, Err: err}
	}
	if rec.Type == RecordEOF {
		d.done = true
	}
	return rec, nil
}

// NextAt decodes the next record and places its payload in image at
// Address+offset. A record that would reach past the end of image fails with
// ErrAddressOutOfRange instead of being truncated, and image is not modified.
func (d *Decoder) NextAt(image []byte, offset uint32) (Record, error) {
	rec, err := d.Next(d.scratch[:])
	if err != nil || rec.Type != RecordData {
		return rec, err
	}

	start := uint32(rec.Address) + offset
	end := start + uint32(len(rec.Data))
	if end > uint32(len(image)) {
		return Record{}, &LineError{
			Line: d.line,
			Err:  errors.Wrapf(ErrAddressOutOfRange, "0x%04x..0x%04x exceeds limit 0x%04x", start, end, len(image)),
		}
	}

	copy(image[start:end], rec.Data)
	rec.Data = image[start:end]
	return rec, nil
}

func (d *Decoder) readLine() (string, error) {
	line, err := d.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err == io.EOF {
		return "", &LineError{Line: d.line + 1, Err: ErrMissingEOF}
	}
	if err != nil {
		return "", errors.Wrap(err, "could not read hex file")
	}
	d.line++
	return line, nil
}
