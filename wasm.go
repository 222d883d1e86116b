package simbridge

// PageSize is the size of one WebAssembly linear memory page.
const PageSize = 65536

// Memory represents the engine module's linear memory.
//
// Grow never shrinks memory. Slices returned by Read are copies, so they stay
// valid after the memory grows.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	Size() uint32
	Grow(pages uint32) error
}

// Span locates a byte range in linear memory.
type Span struct {
	Offset uint32
	Length uint32
}

// End returns the offset one past the last byte.
func (s Span) End() uint32 {
	return s.Offset + s.Length
}
