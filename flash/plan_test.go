package flash

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jdelfes/nrf24le1-flasher/ihex"
	"github.com/pkg/errors"
)

type chunk struct {
	addr uint16
	data []byte
}

// hexImage encodes chunks as Intel HEX, split into records of at most 16
// bytes.
func hexImage(chunks ...chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		for pos := 0; pos < len(c.data); pos += 16 {
			end := min(pos+16, len(c.data))
			rec := ihex.Record{Type: ihex.RecordData, Address: c.addr + uint16(pos), Data: c.data[pos:end]}
			sb.WriteString(rec.Line())
			sb.WriteString("\n")
		}
	}
	sb.WriteString(":00000001FF\n")
	return sb.String()
}

func pattern(n int, seed byte) []byte {
	bs := make([]byte, n)
	for i := range bs {
		bs[i] = seed + byte(i*7)
	}
	return bs
}

type span struct{ offset, count int }

func spansOf(pp *PagePlan) []span {
	var out []span
	pp.spans(func(offset, count int) bool {
		out = append(out, span{offset, count})
		return true
	})
	return out
}

func TestAddRecordSplitsAcrossPages(t *testing.T) {
	var p Plan
	if err := p.AddRecord(506, 10); err != nil {
		t.Fatalf("AddRecord(): %v", err)
	}

	if got := p.Pages[0].Runs[506].Count; got != 6 {
		t.Errorf("page 0 run at 506 = %d, want 6", got)
	}
	if got := p.Pages[1].Runs[0].Count; got != 4 {
		t.Errorf("page 1 run at 0 = %d, want 4", got)
	}
	if p.Pages[0].BytesToWrite != 6 || p.Pages[1].BytesToWrite != 4 {
		t.Errorf("bytes to write = %d, %d, want 6, 4", p.Pages[0].BytesToWrite, p.Pages[1].BytesToWrite)
	}
}

func TestAddRecordOutOfRange(t *testing.T) {
	var p Plan
	err := p.AddRecord(FlashSize-4, 10)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("AddRecord() error = %v, want ErrImageTooLarge", err)
	}
}

func TestCompact(t *testing.T) {
	tests := []struct {
		name string
		runs []span
		want []span
	}{
		{"empty", nil, nil},
		{"single", []span{{10, 5}}, []span{{10, 5}}},
		{"adjacent pair", []span{{0, 16}, {16, 16}}, []span{{0, 32}}},
		{"chain", []span{{0, 16}, {16, 16}, {32, 16}, {48, 16}}, []span{{0, 64}}},
		{"gap", []span{{0, 16}, {17, 16}}, []span{{0, 16}, {17, 16}}},
		{"gap then chain", []span{{0, 4}, {100, 8}, {108, 8}, {116, 1}}, []span{{0, 4}, {100, 17}}},
		{"overlap", []span{{0, 16}, {8, 16}, {24, 4}}, []span{{0, 28}}},
		{"contained", []span{{0, 32}, {4, 4}}, []span{{0, 32}}},
		{"whole page", []span{{0, 256}, {256, 256}}, []span{{0, 512}}},
		{"ends at page end", []span{{496, 16}}, []span{{496, 16}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pp PagePlan
			for _, r := range tt.runs {
				pp.Runs[r.offset].Count = r.count
			}

			pp.compact()
			got := spansOf(&pp)
			if !equalSpans(got, tt.want) {
				t.Fatalf("compact() = %v, want %v", got, tt.want)
			}

			for i := 1; i < len(got); i++ {
				if got[i-1].offset+got[i-1].count >= got[i].offset {
					t.Errorf("spans %v and %v touch", got[i-1], got[i])
				}
			}

			pp.compact()
			if again := spansOf(&pp); !equalSpans(again, got) {
				t.Errorf("second compact() = %v, want %v", again, got)
			}
		})
	}
}

func equalSpans(a, b []span) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHighestOffset(t *testing.T) {
	tests := []struct {
		extent uint32
		want   uint16
		err    error
	}{
		{1000, FlashSize - 1024, nil},
		{512, FlashSize - 512, nil},
		{513, FlashSize - 1024, nil},
		{1, FlashSize - 512, nil},
		{FlashSize, 0, nil},
		{FlashSize + 1, 0, ErrImageTooLarge},
	}

	for _, tt := range tests {
		got, err := HighestOffset(tt.extent)
		if !errors.Is(err, tt.err) {
			t.Errorf("HighestOffset(%d) error = %v, want %v", tt.extent, err, tt.err)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("HighestOffset(%d) = %d, want %d", tt.extent, got, tt.want)
		}
	}
}

func TestBuildPlan(t *testing.T) {
	data := pattern(40, 0x10)
	img := hexImage(chunk{0x01F0, data})

	t.Run("offset", func(t *testing.T) {
		p, err := BuildPlan(strings.NewReader(img), PlanOptions{Offset: 0x0400})
		if err != nil {
			t.Fatalf("BuildPlan(): %v", err)
		}
		// 0x05F0..0x0618 crosses from page 2 into page 3
		if got := spansOf(&p.Pages[2]); !equalSpans(got, []span{{0x1F0, 16}}) {
			t.Errorf("page 2 spans = %v", got)
		}
		if got := spansOf(&p.Pages[3]); !equalSpans(got, []span{{0, 24}}) {
			t.Errorf("page 3 spans = %v", got)
		}
		if !bytes.Equal(p.Image[0x05F0:0x0618], data) {
			t.Errorf("image not placed at offset")
		}
		if p.Offset != 0x0400 {
			t.Errorf("Offset = 0x%04x", p.Offset)
		}
	})

	t.Run("highest offset", func(t *testing.T) {
		p, err := BuildPlan(strings.NewReader(img), PlanOptions{Offset: 0x0400, HighestOffset: true})
		if err != nil {
			t.Fatalf("BuildPlan(): %v", err)
		}
		// image ends at 0x0218, so it needs two pages
		if p.Offset != FlashSize-1024 {
			t.Fatalf("Offset = 0x%04x, want 0x%04x", p.Offset, FlashSize-1024)
		}
		if !bytes.Equal(p.Image[int(p.Offset)+0x01F0:int(p.Offset)+0x0218], data) {
			t.Errorf("image not placed at highest offset")
		}
	})

	t.Run("limit", func(t *testing.T) {
		_, err := BuildPlan(strings.NewReader(img), PlanOptions{Limited: true, Limit: PageSize})
		if !errors.Is(err, ihex.ErrAddressOutOfRange) {
			t.Fatalf("BuildPlan() error = %v, want ErrAddressOutOfRange", err)
		}
	})

	t.Run("zero limit", func(t *testing.T) {
		_, err := BuildPlan(strings.NewReader(hexImage(chunk{0x0000, []byte{1}})), PlanOptions{Limited: true})
		if !errors.Is(err, ihex.ErrAddressOutOfRange) {
			t.Fatalf("BuildPlan() error = %v, want ErrAddressOutOfRange", err)
		}
	})

	t.Run("bad record", func(t *testing.T) {
		_, err := BuildPlan(strings.NewReader(":0400000001020304F1\n"), PlanOptions{})
		if !errors.Is(err, ihex.ErrChecksumMismatch) {
			t.Fatalf("BuildPlan() error = %v, want ErrChecksumMismatch", err)
		}
	})
}

func TestPlanDump(t *testing.T) {
	var p Plan
	p.AddRecord(0x0200, 16)
	p.AddRecord(0x0210, 16)
	p.Compact()

	var buf bytes.Buffer
	p.Dump(&buf)

	want := "page 1: 32 bytes\n  0x0200 +32\n"
	if buf.String() != want {
		t.Errorf("Dump() = %q, want %q", buf.String(), want)
	}
}
