// Package ihex decodes Intel HEX files one record at a time.
//
// Only the two record types emitted for 16-bit targets are accepted: data
// (00) and end-of-file (01). Every line is checked byte-exactly; a record is
// either returned whole or rejected, never truncated.
package ihex

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// MaxDataLen is the largest payload a single record can carry.
const MaxDataLen = 255

// headerLen is the number of characters of ":CCAAAATT".
const headerLen = 9

var ErrMalformedLine = errors.New("malformed hex line")
var ErrBufferTooSmall = errors.New("buffer too small for record")
var ErrTruncatedLine = errors.New("hex line too short")
var ErrChecksumMismatch = errors.New("hex record checksum mismatch")
var ErrUnsupportedRecordType = errors.New("unsupported hex record type")
var ErrAddressOutOfRange = errors.New("hex record outside of allowed range")
var ErrMissingEOF = errors.New("hex file has no end-of-file record")

// RecordType is the TT field of a record.
type RecordType byte

const (
	RecordData RecordType = 0x00
	RecordEOF  RecordType = 0x01
)

func (t RecordType) String() string {
	switch t {
	case RecordData:
		return "data"
	case RecordEOF:
		return "eof"
	}
	return fmt.Sprintf("type 0x%02x", byte(t))
}

// Record is one decoded line. Data aliases the destination buffer passed to
// the decoder.
type Record struct {
	Type     RecordType
	Address  uint16
	Data     []byte
	Checksum byte
}

// Count returns the number of payload bytes.
func (r Record) Count() int {
	return len(r.Data)
}

// End returns the first address after the payload.
func (r Record) End() uint32 {
	return uint32(r.Address) + uint32(len(r.Data))
}

// Sum computes the checksum byte for the record fields, i.e. the two's
// complement of the sum of count, address, type and payload bytes.
func (r Record) Sum() byte {
	s := byte(len(r.Data)) + byte(r.Address>>8) + byte(r.Address) + byte(r.Type)
	for _, b := range r.Data {
		s += b
	}
	return -s
}

// Line encodes the record back into its textual form, without a line
// terminator. The checksum is recomputed from the fields.
func (r Record) Line() string {
	var sb strings.Builder
	sb.Grow(headerLen + 2*len(r.Data) + 2)
	fmt.Fprintf(&sb, ":%02X%04X%02X", len(r.Data), r.Address, byte(r.Type))
	sb.WriteString(strings.ToUpper(hex.EncodeToString(r.Data)))
	fmt.Fprintf(&sb, "%02X", r.Sum())
	return sb.String()
}

// DecodeLine parses a single record. The payload of a data record is copied
// into dst, which must be able to hold it; dst is left untouched when any
// check fails. A trailing CR/LF is ignored.
//
// For an end-of-file record the returned Record has no data; callers treat
// it as the normal termination signal.
func DecodeLine(line string, dst []byte) (Record, error) {
	line = strings.TrimRight(line, "\r\n")

	if len(line) == 0 || line[0] != ':' {
		return Record{}, ErrMalformedLine
	}
	if len(line) < headerLen {
		return Record{}, errors.Wrap(ErrMalformedLine, "incomplete header")
	}

	var hdr [4]byte
	if _, err := hex.Decode(hdr[:], []byte(line[1:headerLen])); err != nil {
		return Record{}, errors.Wrap(ErrMalformedLine, err.Error())
	}

	count := int(hdr[0])
	rec := Record{
		Address: binary.BigEndian.Uint16(hdr[1:3]),
		Type:    RecordType(hdr[3]),
	}

	if count > len(dst) {
		return Record{}, errors.Wrapf(ErrBufferTooSmall, "record holds %d bytes, buffer %d", count, len(dst))
	}

	want := headerLen + 2*count + 2
	if len(line) < want {
		return Record{}, errors.Wrapf(ErrTruncatedLine, "got %d characters, need %d", len(line), want)
	}

	var body [MaxDataLen + 1]byte
	if _, err := hex.Decode(body[:count+1], []byte(line[headerLen:want])); err != nil {
		return Record{}, errors.Wrap(ErrMalformedLine, err.Error())
	}

	var sum byte
	for _, b := range hdr {
		sum += b
	}
	for _, b := range body[:count] {
		sum += b
	}
	rec.Checksum = body[count]
	if -sum != rec.Checksum {
		return Record{}, errors.Wrapf(ErrChecksumMismatch, "got 0x%02x, computed 0x%02x", rec.Checksum, -sum)
	}

	switch rec.Type {
	case RecordData:
		rec.Data = dst[:count]
		copy(rec.Data, body[:count])
		return rec, nil
	case RecordEOF:
		return rec, nil
	}

	return Record{}, errors.Wrapf(ErrUnsupportedRecordType, "%v", rec.Type)
}
