package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strconv"

	simbridge "github.com/wippyai/simbridge"
	"github.com/wippyai/simbridge/card"
	simerrors "github.com/wippyai/simbridge/errors"
)

// Record field offsets shared by vs-list layouts.
const (
	fieldCard1 = 0
	fieldCard2 = 1
	fieldWins  = 2
	fieldTies  = 3
	fieldPlays = 4
	fieldHist  = 5
)

// Trace record field offsets.
const (
	traceHero1   = 0
	traceBoard   = 2
	traceOpp1    = 7
	traceOutcome = 9
	traceRank    = 10
)

// Categories is the number of hand categories in a histogram.
const Categories = 9

// CategoryLabels names histogram slots from weakest to strongest.
var CategoryLabels = [Categories]string{
	"High Card",
	"One Pair",
	"Two Pair",
	"Three of a Kind",
	"Straight",
	"Flush",
	"Full House",
	"Four of a Kind",
	"Straight Flush",
}

// Record is one fixed-width engine output record.
type Record []uint32

// IsHero reports whether r is the hero aggregate row.
func (r Record) IsHero() bool {
	return len(r) > fieldCard2 && r[fieldCard1] == card.Sentinel && r[fieldCard2] == card.Sentinel
}

// Hand decodes the two card words, e.g. "QcQd".
func (r Record) Hand() (string, error) {
	c1, err := card.Decode(r[fieldCard1])
	if err != nil {
		return "", err
	}
	c2, err := card.Decode(r[fieldCard2])
	if err != nil {
		return "", err
	}
	return c1 + c2, nil
}

// ReadRecords copies n records of width words from mem at off.
func ReadRecords(mem simbridge.Memory, off uint32, n int, width uint32) ([]Record, error) {
	if n == 0 {
		return nil, nil
	}
	words := uint32(n) * width
	raw, err := mem.Read(off, words*4)
	if err != nil {
		return nil, err
	}
	flat := make([]uint32, words)
	for i := range flat {
		flat[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	records := make([]Record, n)
	for i := range records {
		records[i] = Record(flat[uint32(i)*width : uint32(i+1)*width])
	}
	return records, nil
}

// Equity is (wins + ties/2) / plays, or 0 when nothing was played.
func Equity(wins, ties, plays uint32) float64 {
	if plays == 0 {
		return 0
	}
	return (float64(wins) + float64(ties)/2) / float64(plays)
}

// Histogram counts outcomes per hand category.
type Histogram [Categories]uint32

// Total sums all slots.
func (h Histogram) Total() uint64 {
	var n uint64
	for _, v := range h {
		n += uint64(v)
	}
	return n
}

// Get returns the count for a category label.
func (h Histogram) Get(label string) (uint32, bool) {
	for i, l := range CategoryLabels {
		if l == label {
			return h[i], true
		}
	}
	return 0, false
}

// MarshalJSON writes an object keyed by category label in category order.
func (h Histogram) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, l := range CategoryLabels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(l))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(h[i]), 10))
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON reads an object keyed by category label.
func (h *Histogram) UnmarshalJSON(data []byte) error {
	var m map[string]uint32
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Histogram
	for label, v := range m {
		idx := -1
		for i, l := range CategoryLabels {
			if l == label {
				idx = i
				break
			}
		}
		if idx < 0 {
			return simerrors.New(simerrors.PhaseDecode, simerrors.KindInvalidInput).
				Detail("unknown hand category %q", label).
				Build()
		}
		out[idx] = v
	}
	*h = out
	return nil
}

func histogramAt(r Record, at int) Histogram {
	var h Histogram
	copy(h[:], r[at:at+Categories])
	return h
}
