package flash

import (
	"fmt"
	"io"

	"github.com/jdelfes/nrf24le1-flasher/ihex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// WriteRun is the number of bytes pending from its position in the page.
type WriteRun struct {
	Count int
}

// PagePlan tracks what a single page needs.
type PagePlan struct {
	EraseNeeded  bool
	WriteNeeded  bool
	BytesToWrite int
	Runs         [PageSize]WriteRun
}

// Plan is the page by page work of writing an image.
type Plan struct {
	Pages  [PagesCnt]PagePlan
	Image  [FlashSize]byte
	Offset uint16
}

// PlanOptions controls how BuildPlan places the image.
type PlanOptions struct {
	// Offset is added to every record address.
	Offset uint16

	// HighestOffset replaces Offset with the largest page aligned offset that
	// still fits the image.
	HighestOffset bool

	// Limit is the number of bytes from the start of flash the image may
	// use when Limited is set. Otherwise the whole main block is allowed.
	Limited bool
	Limit   int
}

// AddRecord will mark count bytes at the absolute address addr as pending.
// A record crossing a page boundary carries its tail to the next page.
func (p *Plan) AddRecord(addr uint32, count int) error {
	if count == 0 {
		return nil
	}
	if addr+uint32(count) > FlashSize {
		return errors.Wrapf(ErrImageTooLarge, "record at 0x%04x", addr)
	}

	page := int(addr / PageSize)
	offset := int(addr % PageSize)

	if over := offset + count - PageSize; over > 0 {
		next := &p.Pages[page+1]
		next.Runs[0].Count = max(next.Runs[0].Count, over)
		next.BytesToWrite += over
		count -= over
	}

	pp := &p.Pages[page]
	pp.Runs[offset].Count = max(pp.Runs[offset].Count, count)
	pp.BytesToWrite += count

	return nil
}

// Compact will merge the runs of every page into maximal spans.
func (p *Plan) Compact() {
	for i := range p.Pages {
		p.Pages[i].compact()
	}
}

// compact folds every run that starts inside or right at the end of the
// current span into it, so no two spans touch afterwards.
func (pp *PagePlan) compact() {
	for prev := 0; prev < PageSize; {
		if pp.Runs[prev].Count == 0 {
			prev++
			continue
		}

		end := prev + pp.Runs[prev].Count
		for next := prev + 1; next <= end && next < PageSize; next++ {
			if c := pp.Runs[next].Count; c != 0 {
				end = max(end, next+c)
				pp.Runs[next].Count = 0
			}
		}

		pp.Runs[prev].Count = end - prev
		prev = end
	}
}

// spans will call fn for every pending run of the page
func (pp *PagePlan) spans(fn func(offset, count int) bool) {
	for i := 0; i < PageSize; i++ {
		if c := pp.Runs[i].Count; c != 0 {
			if !fn(i, c) {
				return
			}
		}
	}
}

// Target returns the image bytes of page.
func (p *Plan) Target(page int) []byte {
	return p.Image[page*PageSize : (page+1)*PageSize]
}

// Dump will write every pending page and its runs to w
func (p *Plan) Dump(w io.Writer) {
	for i := range p.Pages {
		pp := &p.Pages[i]
		if pp.BytesToWrite == 0 {
			continue
		}
		fmt.Fprintf(w, "page %d: %d bytes\n", i, pp.BytesToWrite)
		pp.spans(func(offset, count int) bool {
			fmt.Fprintf(w, "  0x%04x +%d\n", i*PageSize+offset, count)
			return true
		})
	}
}

func (p *Plan) debugDump(msg string) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	w := logrus.StandardLogger().WriterLevel(logrus.DebugLevel)
	defer w.Close()

	logrus.Debug(msg)
	p.Dump(w)
}

// HighestOffset returns the largest page aligned offset at which an image
// ending at extent still fits the main block.
func HighestOffset(extent uint32) (uint16, error) {
	if extent > FlashSize {
		return 0, errors.Wrapf(ErrImageTooLarge, "image ends at 0x%x", extent)
	}
	return uint16(FlashSize - roundUp(extent, PageSize)), nil
}

// imageExtent will return the end of the highest data record in d
func imageExtent(d *ihex.Decoder) (uint32, error) {
	var buf [ihex.MaxDataLen]byte
	var extent uint32

	for {
		rec, err := d.Next(buf[:])
		if err == io.EOF {
			return extent, nil
		}
		if err != nil {
			return 0, err
		}
		extent = max(extent, rec.End())
	}
}

// BuildPlan will decode the image in rs and work out the pending runs of
// every page. With HighestOffset rs is read twice.
func BuildPlan(rs io.ReadSeeker, opts PlanOptions) (*Plan, error) {
	d := ihex.NewDecoder(rs)

	offset := opts.Offset
	if opts.HighestOffset {
		extent, err := imageExtent(d)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan image")
		}
		if offset, err = HighestOffset(extent); err != nil {
			return nil, err
		}
		logrus.Infof("highest offset for image ending at 0x%04x is 0x%04x", extent, offset)

		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, errors.Wrap(err, "could not rewind image")
		}
		d.Reset(rs)
	}

	limit := FlashSize
	if opts.Limited {
		limit = min(max(opts.Limit, 0), FlashSize)
	}

	p := &Plan{Offset: offset}
	for {
		rec, err := d.NextAt(p.Image[:limit], uint32(offset))
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := p.AddRecord(uint32(rec.Address)+uint32(offset), rec.Count()); err != nil {
			return nil, err
		}
	}

	p.debugDump("writes before compaction")
	p.Compact()
	p.debugDump("writes after compaction")

	return p, nil
}
