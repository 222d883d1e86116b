// Package memtest provides an in-process linear memory for tests.
package memtest

import (
	"encoding/binary"
	"errors"

	simbridge "github.com/wippyai/simbridge"
	simerrors "github.com/wippyai/simbridge/errors"
)

var _ simbridge.Memory = (*Memory)(nil)

// Memory is a growable byte slice implementing simbridge.Memory.
type Memory struct {
	Data     []byte
	MaxPages uint32
	Grows    int
}

// New creates a memory of pages pages that may grow to maxPages.
func New(pages, maxPages uint32) *Memory {
	return &Memory{Data: make([]byte, pages*simbridge.PageSize), MaxPages: maxPages}
}

func (m *Memory) Read(off, n uint32) ([]byte, error) {
	if uint64(off)+uint64(n) > uint64(len(m.Data)) {
		return nil, simerrors.OutOfBounds(simerrors.PhaseDecode, off, n)
	}
	return append([]byte(nil), m.Data[off:off+n]...), nil
}

func (m *Memory) Write(off uint32, data []byte) error {
	if uint64(off)+uint64(len(data)) > uint64(len(m.Data)) {
		return simerrors.OutOfBounds(simerrors.PhaseEncode, off, uint32(len(data)))
	}
	copy(m.Data[off:], data)
	return nil
}

func (m *Memory) ReadU32(off uint32) (uint32, error) {
	b, err := m.Read(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *Memory) WriteU32(off, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Write(off, b[:])
}

// WriteWords stores consecutive little-endian words starting at off.
func (m *Memory) WriteWords(off uint32, words ...uint32) error {
	for i, w := range words {
		if err := m.WriteU32(off+uint32(4*i), w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Size() uint32 { return uint32(len(m.Data)) }

func (m *Memory) Grow(pages uint32) error {
	if uint32(len(m.Data))/simbridge.PageSize+pages > m.MaxPages {
		return errors.New("memory limit reached")
	}
	m.Grows++
	m.Data = append(m.Data, make([]byte, pages*simbridge.PageSize)...)
	return nil
}
