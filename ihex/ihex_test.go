package ihex

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		dstLen  int
		want    Record
		wantErr error
	}{
		{
			name:   "data record",
			line:   ":10010000214601360121470136007EFE09D2190140",
			dstLen: MaxDataLen,
			want: Record{
				Type:     RecordData,
				Address:  0x0100,
				Data:     []byte{0x21, 0x46, 0x01, 0x36, 0x01, 0x21, 0x47, 0x01, 0x36, 0x00, 0x7E, 0xFE, 0x09, 0xD2, 0x19, 0x01},
				Checksum: 0x40,
			},
		},
		{
			name:   "data record with crlf",
			line:   ":0B0010006164647265737320676170A7\r\n",
			dstLen: 16,
			want: Record{
				Type:     RecordData,
				Address:  0x0010,
				Data:     []byte("address gap"),
				Checksum: 0xA7,
			},
		},
		{
			name:   "lower case digits",
			line:   ":0b0010006164647265737320676170a7",
			dstLen: 16,
			want: Record{
				Type:     RecordData,
				Address:  0x0010,
				Data:     []byte("address gap"),
				Checksum: 0xA7,
			},
		},
		{
			name:   "end of file",
			line:   ":00000001FF\n",
			dstLen: 0,
			want:   Record{Type: RecordEOF, Checksum: 0xFF},
		},
		{
			name:    "missing colon",
			line:    "10010000214601360121470136007EFE09D2190140",
			dstLen:  MaxDataLen,
			wantErr: ErrMalformedLine,
		},
		{
			name:    "empty line",
			line:    "\n",
			dstLen:  MaxDataLen,
			wantErr: ErrMalformedLine,
		},
		{
			name:    "short header",
			line:    ":1001",
			dstLen:  MaxDataLen,
			wantErr: ErrMalformedLine,
		},
		{
			name:    "bad header digit",
			line:    ":1G010000214601360121470136007EFE09D2190140",
			dstLen:  MaxDataLen,
			wantErr: ErrMalformedLine,
		},
		{
			name:    "bad data digit",
			line:    ":10010000214601360121470136007EFE09D21901Z0",
			dstLen:  MaxDataLen,
			wantErr: ErrMalformedLine,
		},
		{
			name:    "buffer too small",
			line:    ":10010000214601360121470136007EFE09D2190140",
			dstLen:  15,
			wantErr: ErrBufferTooSmall,
		},
		{
			name:    "truncated",
			line:    ":10010000214601360121470136007EFE09D21901",
			dstLen:  MaxDataLen,
			wantErr: ErrTruncatedLine,
		},
		{
			name:    "checksum",
			line:    ":10010000214601360121470136007EFE09D2190141",
			dstLen:  MaxDataLen,
			wantErr: ErrChecksumMismatch,
		},
		{
			name:    "extended linear address",
			line:    ":020000040800F2",
			dstLen:  MaxDataLen,
			wantErr: ErrUnsupportedRecordType,
		},
		{
			name:    "start segment address",
			line:    ":0400000300003800C1",
			dstLen:  MaxDataLen,
			wantErr: ErrUnsupportedRecordType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, tt.dstLen)
			got, err := DecodeLine(tt.line, dst)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeLine() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeLine() unexpected error: %v", err)
			}
			if got.Type != tt.want.Type || got.Address != tt.want.Address || got.Checksum != tt.want.Checksum {
				t.Errorf("DecodeLine() = %+v, want %+v", got, tt.want)
			}
			if !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("DecodeLine() data = %x, want %x", got.Data, tt.want.Data)
			}
			if got.Count() != len(tt.want.Data) {
				t.Errorf("Count() = %d, want %d", got.Count(), len(tt.want.Data))
			}
		})
	}
}

func TestDecodeLineReencode(t *testing.T) {
	lines := []string{
		":10010000214601360121470136007EFE09D2190140",
		":100110002146017E17C20001FF5F16002148011928",
		":0B0010006164647265737320676170A7",
		":00000001FF",
		":01FFFF0000" + "01",
	}
	for _, line := range lines {
		dst := make([]byte, MaxDataLen)
		rec, err := DecodeLine(line, dst)
		if err != nil {
			t.Fatalf("DecodeLine(%q): %v", line, err)
		}
		if rec.Sum() != rec.Checksum {
			t.Errorf("Sum() = 0x%02x, want 0x%02x for %q", rec.Sum(), rec.Checksum, line)
		}
		if got := rec.Line(); !strings.EqualFold(got, line) {
			t.Errorf("Line() = %q, want %q", got, line)
		}
	}
}

func TestDecodeLineCorruptChecksumKeepsBuffer(t *testing.T) {
	good := ":10010000214601360121470136007EFE09D2190140"
	for c := 0; c < 256; c++ {
		if c == 0x40 {
			continue
		}
		line := good[:len(good)-2] + strings.ToUpper(hexByte(byte(c)))

		dst := bytes.Repeat([]byte{0xA5}, 32)
		_, err := DecodeLine(line, dst)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("checksum 0x%02x: error = %v, want ErrChecksumMismatch", c, err)
		}
		if !bytes.Equal(dst, bytes.Repeat([]byte{0xA5}, 32)) {
			t.Fatalf("checksum 0x%02x: destination modified: %x", c, dst)
		}
	}
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

func TestDecoder(t *testing.T) {
	input := ":10000000000102030405060708090A0B0C0D0E0F78\r\n" +
		":04001000DEADBEEFB4\r\n" +
		":00000001FF\r\n" +
		"garbage after eof\r\n"

	d := NewDecoder(strings.NewReader(input))
	buf := make([]byte, MaxDataLen)

	rec, err := d.Next(buf)
	if err != nil {
		t.Fatalf("Next() #1: %v", err)
	}
	if rec.Address != 0 || rec.Count() != 16 || rec.Data[15] != 0x0F {
		t.Errorf("Next() #1 = %+v", rec)
	}

	rec, err = d.Next(buf)
	if err != nil {
		t.Fatalf("Next() #2: %v", err)
	}
	if rec.Address != 0x10 || !bytes.Equal(rec.Data, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("Next() #2 = %+v", rec)
	}
	if rec.End() != 0x14 {
		t.Errorf("End() = 0x%x, want 0x14", rec.End())
	}

	rec, err = d.Next(buf)
	if err != nil || rec.Type != RecordEOF {
		t.Fatalf("Next() #3 = %+v, %v; want eof record", rec, err)
	}
	if d.Line() != 3 {
		t.Errorf("Line() = %d, want 3", d.Line())
	}

	if _, err = d.Next(buf); err != io.EOF {
		t.Errorf("Next() after eof error = %v, want io.EOF", err)
	}
}

func TestDecoderReportsLine(t *testing.T) {
	input := ":04001000DEADBEEFB4\n:04001400DEADBEEFB5\n:00000001FF\n"
	d := NewDecoder(strings.NewReader(input))
	buf := make([]byte, MaxDataLen)

	if _, err := d.Next(buf); err != nil {
		t.Fatalf("Next() #1: %v", err)
	}
	_, err := d.Next(buf)

	var lerr *LineError
	if !errors.As(err, &lerr) {
		t.Fatalf("Next() #2 error = %v, want *LineError", err)
	}
	if lerr.Line != 2 {
		t.Errorf("LineError.Line = %d, want 2", lerr.Line)
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Next() #2 error = %v, want ErrChecksumMismatch", err)
	}
}

func TestDecoderMissingEOF(t *testing.T) {
	d := NewDecoder(strings.NewReader(":04001000DEADBEEFB4"))
	buf := make([]byte, MaxDataLen)

	if _, err := d.Next(buf); err != nil {
		t.Fatalf("Next() #1: %v", err)
	}
	if _, err := d.Next(buf); !errors.Is(err, ErrMissingEOF) {
		t.Errorf("Next() #2 error = %v, want ErrMissingEOF", err)
	}
}

func TestDecoderNextAt(t *testing.T) {
	input := ":04001000DEADBEEFB4\n:00000001FF\n"

	t.Run("placed with offset", func(t *testing.T) {
		image := make([]byte, 0x40)
		d := NewDecoder(strings.NewReader(input))
		rec, err := d.NextAt(image, 0x20)
		if err != nil {
			t.Fatalf("NextAt(): %v", err)
		}
		if !bytes.Equal(image[0x30:0x34], []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
			t.Errorf("image = %x", image)
		}
		if rec.Address != 0x10 || rec.Count() != 4 {
			t.Errorf("NextAt() = %+v", rec)
		}
		rec, err = d.NextAt(image, 0x20)
		if err != nil || rec.Type != RecordEOF {
			t.Errorf("NextAt() #2 = %+v, %v", rec, err)
		}
	})

	t.Run("fits exactly", func(t *testing.T) {
		image := make([]byte, 0x14)
		d := NewDecoder(strings.NewReader(input))
		if _, err := d.NextAt(image, 0); err != nil {
			t.Fatalf("NextAt(): %v", err)
		}
	})

	t.Run("past the limit", func(t *testing.T) {
		image := make([]byte, 0x13)
		d := NewDecoder(strings.NewReader(input))
		_, err := d.NextAt(image, 0)
		if !errors.Is(err, ErrAddressOutOfRange) {
			t.Fatalf("NextAt() error = %v, want ErrAddressOutOfRange", err)
		}
		if !bytes.Equal(image, make([]byte, 0x13)) {
			t.Errorf("image modified: %x", image)
		}
	})
}

// A file produced by another encoder must decode to the same memory.
func TestDecoderReadsGohexOutput(t *testing.T) {
	want := make([]byte, 600)
	for i := range want {
		want[i] = byte(i * 7)
	}

	mem := gohex.NewMemory()
	if err := mem.AddBinary(0x0100, want); err != nil {
		t.Fatalf("AddBinary(): %v", err)
	}
	var buf bytes.Buffer
	if err := mem.DumpIntelHex(&buf, 32); err != nil {
		t.Fatalf("DumpIntelHex(): %v", err)
	}

	image := make([]byte, 0x1000)
	d := NewDecoder(&buf)
	for {
		rec, err := d.NextAt(image, 0)
		if err != nil {
			t.Fatalf("NextAt(): %v", err)
		}
		if rec.Type == RecordEOF {
			break
		}
	}
	if !bytes.Equal(image[0x100:0x100+len(want)], want) {
		t.Errorf("decoded image differs from source")
	}
}
