package wasmbin

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestWriterLEB128(t *testing.T) {
	tests := []struct {
		name string
		fn   func(w *writer)
		want []byte
	}{
		{"u32 zero", func(w *writer) { w.WriteU32(0) }, []byte{0x00}},
		{"u32 127", func(w *writer) { w.WriteU32(127) }, []byte{0x7f}},
		{"u32 128", func(w *writer) { w.WriteU32(128) }, []byte{0x80, 0x01}},
		{"u32 624485", func(w *writer) { w.WriteU32(624485) }, []byte{0xe5, 0x8e, 0x26}},
		{"s64 -1", func(w *writer) { w.WriteS64(-1) }, []byte{0x7f}},
		{"s64 63", func(w *writer) { w.WriteS64(63) }, []byte{0x3f}},
		{"s64 64", func(w *writer) { w.WriteS64(64) }, []byte{0xc0, 0x00}},
		{"s64 -123456", func(w *writer) { w.WriteS64(-123456) }, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &writer{}
			tt.fn(w)
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Errorf("got % x, want % x", w.Bytes(), tt.want)
			}
		})
	}
}

func TestEmptyModule(t *testing.T) {
	got := (&Module{}).Encode()
	want := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % x, want % x", got, want)
	}
}

func TestMemoryOnlyModule(t *testing.T) {
	m := &Module{Memory: &Memory{Min: 1}}
	m.ExportMemory("memory")

	// Same bytes as a hand-written memory-export fixture.
	want := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x05, 0x03, 0x01, 0x00, 0x01,
		0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	}
	if got := m.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = % x, want % x", got, want)
	}
}

func TestAddTypeDedup(t *testing.T) {
	m := &Module{}
	a := m.AddType(FuncType{Params: []ValType{I32}, Results: []ValType{I32}})
	b := m.AddType(FuncType{Params: []ValType{I32}, Results: []ValType{I32}})
	c := m.AddType(FuncType{Params: []ValType{I64}})
	if a != b {
		t.Errorf("identical types got indices %d and %d", a, b)
	}
	if c == a {
		t.Error("distinct types share an index")
	}
	if len(m.Types) != 2 {
		t.Errorf("len(Types) = %d, want 2", len(m.Types))
	}
}

func TestModuleRunsOnWazero(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	var got []int32
	_, err := r.NewHostModuleBuilder("host").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, v int32) { got = append(got, v) }).
		Export("note").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}

	m := &Module{Memory: &Memory{Min: 1}}
	note := m.ImportFunc("host", "note", FuncType{Params: []ValType{I32}})

	body := (&Code{}).
		I32Const(-7).Call(note).
		LocalGet(0).I32Const(3).I32Add().Call(note).
		I32Const(16).I32Const(0x1234).I32Store(4).
		LocalGet(0).
		Bytes()
	fn := m.AddFunc(FuncType{Params: []ValType{I32}, Results: []ValType{I32}}, body)
	m.ExportFunc("run", fn)
	m.ExportMemory("memory")
	m.Data = append(m.Data, Data{Offset: 64, Init: []byte("hi")})

	mod, err := r.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("run").Call(ctx, api.EncodeI32(40))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if api.DecodeI32(res[0]) != 40 {
		t.Errorf("result = %d, want 40", api.DecodeI32(res[0]))
	}
	if len(got) != 2 || got[0] != -7 || got[1] != 43 {
		t.Errorf("host saw %v, want [-7 43]", got)
	}

	mem := mod.ExportedMemory("memory")
	if v, _ := mem.ReadUint32Le(20); v != 0x1234 {
		t.Errorf("stored word = %#x, want 0x1234", v)
	}
	if b, _ := mem.Read(64, 2); string(b) != "hi" {
		t.Errorf("data segment = %q, want hi", b)
	}
}
