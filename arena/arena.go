// Package arena is a bump allocator over engine linear memory.
//
// Regions are handed out from a cursor that only moves forward, and every
// allocation advances it by at least one byte, so region offsets strictly
// increase even for empty text and zero-word reservations. Nothing is
// freed; an Arena lives exactly as long as the module instance whose memory
// it manages, and discarding the instance is the only way to reclaim space.
package arena

import (
	"math"
	"sync"

	simbridge "github.com/wippyai/simbridge"
	"github.com/wippyai/simbridge/engine"
	simerrors "github.com/wippyai/simbridge/errors"
)

// WordSize is the width of one output word in bytes.
const WordSize = 4

// Arena allocates regions from a monotonic cursor.
type Arena struct {
	mu     sync.Mutex
	mem    simbridge.Memory
	cursor uint32
}

// New creates an arena whose first allocation starts at start.
func New(mem simbridge.Memory, start uint32) *Arena {
	return &Arena{mem: mem, cursor: start}
}

// Offset returns the current cursor.
func (a *Arena) Offset() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// WriteText copies the UTF-8 bytes of s into a fresh unaligned region.
// An empty s yields a zero-length span that still consumes one byte.
func (a *Arena) WriteText(s string) (simbridge.Span, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := uint64(len(s))
	off, err := a.claim(uint64(a.cursor), n)
	if err != nil {
		return simbridge.Span{}, err
	}
	if n > 0 {
		if err := a.mem.Write(off, []byte(s)); err != nil {
			return simbridge.Span{}, err
		}
	}
	return simbridge.Span{Offset: off, Length: uint32(n)}, nil
}

// Reserve claims words 32-bit words at a 4-byte aligned offset.
// The region's contents are whatever the memory held before.
func (a *Arena) Reserve(words uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	aligned := (uint64(a.cursor) + WordSize - 1) &^ (WordSize - 1)
	return a.claim(aligned, uint64(words)*WordSize)
}

// claim moves the cursor past off+size, and at least one byte past off,
// after making sure memory covers it.
func (a *Arena) claim(off, size uint64) (uint32, error) {
	end := off + max(size, 1)
	if end > math.MaxUint32 {
		return 0, simerrors.AllocationFailed(uint32(min(size, math.MaxUint32)), WordSize, nil)
	}
	if err := engine.GrowMemory(a.mem, end); err != nil {
		return 0, simerrors.AllocationFailed(uint32(size), WordSize, err)
	}
	a.cursor = uint32(end)
	return uint32(off), nil
}
