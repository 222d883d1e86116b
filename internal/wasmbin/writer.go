package wasmbin

import "bytes"

// writer accumulates LEB128-encoded WebAssembly binary data.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) Bytes() []byte { return w.buf.Bytes() }

func (w *writer) Len() int { return w.buf.Len() }

func (w *writer) Byte(b byte) { w.buf.WriteByte(b) }

func (w *writer) WriteBytes(data []byte) { w.buf.Write(data) }

func (w *writer) WriteU32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func (w *writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf.WriteByte(b)
			return
		}
		w.buf.WriteByte(b | 0x80)
	}
}

func (w *writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) WriteU32LE(v uint32) {
	w.buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}
