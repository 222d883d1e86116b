package wasmbin

const (
	opUnreachable byte = 0x00
	opEnd         byte = 0x0b
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opLocalGet    byte = 0x20
	opI32Store    byte = 0x36
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42
	opI32Add      byte = 0x6a
)

// Code builds a straight-line function body.
type Code struct {
	w writer
}

// LocalGet pushes parameter or local idx.
func (c *Code) LocalGet(idx uint32) *Code {
	c.w.Byte(opLocalGet)
	c.w.WriteU32(idx)
	return c
}

// I32Const pushes a 32-bit constant.
func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(opI32Const)
	c.w.WriteS64(int64(v))
	return c
}

// I64Const pushes a 64-bit constant.
func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(opI64Const)
	c.w.WriteS64(v)
	return c
}

// I32Add adds the top two i32 values.
func (c *Code) I32Add() *Code {
	c.w.Byte(opI32Add)
	return c
}

// I32Store stores an i32 at address+offset with 4-byte alignment.
func (c *Code) I32Store(offset uint32) *Code {
	c.w.Byte(opI32Store)
	c.w.WriteU32(2)
	c.w.WriteU32(offset)
	return c
}

// Call invokes function idx.
func (c *Code) Call(idx uint32) *Code {
	c.w.Byte(opCall)
	c.w.WriteU32(idx)
	return c
}

// Drop discards the top of the stack.
func (c *Code) Drop() *Code {
	c.w.Byte(opDrop)
	return c
}

// Unreachable traps.
func (c *Code) Unreachable() *Code {
	c.w.Byte(opUnreachable)
	return c
}

// Bytes returns the body without the closing end opcode.
func (c *Code) Bytes() []byte {
	out := make([]byte, c.w.Len())
	copy(out, c.w.Bytes())
	return out
}
