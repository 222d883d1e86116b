package engine

import (
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	simbridge "github.com/wippyai/simbridge"
	simerrors "github.com/wippyai/simbridge/errors"
)

var _ simbridge.Memory = (*Memory)(nil)

// Memory adapts wazero api.Memory to simbridge.Memory.
type Memory struct {
	mem api.Memory
}

// WrapMemory wraps a wazero memory. It returns nil for a nil memory.
func WrapMemory(mem api.Memory) *Memory {
	if mem == nil {
		return nil
	}
	return &Memory{mem: mem}
}

// Read copies length bytes starting at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	view, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, simerrors.OutOfBounds(simerrors.PhaseDecode, offset, length)
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// Write writes data at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return simerrors.OutOfBounds(simerrors.PhaseEncode, offset, uint32(len(data)))
	}
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, simerrors.OutOfBounds(simerrors.PhaseDecode, offset, 4)
	}
	return v, nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return simerrors.OutOfBounds(simerrors.PhaseEncode, offset, 4)
	}
	return nil
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Grow adds pages to the memory.
func (m *Memory) Grow(pages uint32) error {
	if _, ok := m.mem.Grow(pages); !ok {
		return simerrors.New(simerrors.PhaseEncode, simerrors.KindAllocation).
			Detail("grow memory by %d pages from %d bytes", pages, m.mem.Size()).
			Build()
	}
	return nil
}

// GrowMemory ensures mem holds at least needed bytes, growing by the
// smallest whole number of pages that covers the shortfall.
func GrowMemory(mem simbridge.Memory, needed uint64) error {
	current := uint64(mem.Size())
	if needed <= current {
		return nil
	}
	pages := (needed - current + simbridge.PageSize - 1) / simbridge.PageSize
	if pages > uint64(^uint32(0)) {
		return simerrors.New(simerrors.PhaseEncode, simerrors.KindAllocation).
			Detail("%d bytes exceeds addressable memory", needed).
			Build()
	}
	if err := mem.Grow(uint32(pages)); err != nil {
		return err
	}
	Logger().Debug("grew engine memory",
		zap.Uint64("needed", needed),
		zap.Uint64("pages", pages),
		zap.Uint32("size", mem.Size()))
	return nil
}
