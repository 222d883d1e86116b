// Package enginetest builds stub engine modules for tests.
//
// A stub entry point follows the engine calling convention but does no
// simulation: it reports the configured progress values, optionally touches
// the random callback, stores canned words at the output pointer and returns
// a fixed code.
package enginetest

import (
	"github.com/wippyai/simbridge/internal/wasmbin"
)

const (
	hostModule     = "env"
	progressImport = "report_progress"
	randomImport   = "getrandom_fill"

	// RandomOffset and RandomLength locate the bytes a stub asks the host
	// to fill when Entry.Random is set.
	RandomOffset = 64
	RandomLength = 16
)

// Shape selects an entry point signature.
type Shape int

const (
	// VsList is (hero, board, compare, trials, seed, out) with ptr/len pairs.
	VsList Shape = iota
	// HandsBoard is (hands, board, trials, seed, out) with ptr/len pairs.
	HandsBoard
)

func (s Shape) funcType() wasmbin.FuncType {
	i32, i64 := wasmbin.I32, wasmbin.I64
	if s == HandsBoard {
		return wasmbin.FuncType{
			Params:  []wasmbin.ValType{i32, i32, i32, i32, i32, i64, i32, i32},
			Results: []wasmbin.ValType{i32},
		}
	}
	return wasmbin.FuncType{
		Params:  []wasmbin.ValType{i32, i32, i32, i32, i32, i32, i32, i64, i32, i32},
		Results: []wasmbin.ValType{i32},
	}
}

func (s Shape) outParam() uint32 {
	if s == HandsBoard {
		return 6
	}
	return 8
}

// Entry describes one stub entry point.
type Entry struct {
	Name     string
	Shape    Shape
	Progress []int32
	Random   bool
	Words    []uint32
	Return   int32
	Trap     bool
}

// Options configures the stub module as a whole.
type Options struct {
	// HideMemory defines memory without exporting it.
	HideMemory bool
	// Pages is the initial memory size. 0 means one page.
	Pages uint32
}

// Module encodes a stub module with the given entry points.
func Module(opts Options, entries ...Entry) []byte {
	m := &wasmbin.Module{}
	progress := m.ImportFunc(hostModule, progressImport, wasmbin.FuncType{
		Params: []wasmbin.ValType{wasmbin.I32},
	})
	random := m.ImportFunc(hostModule, randomImport, wasmbin.FuncType{
		Params:  []wasmbin.ValType{wasmbin.I32, wasmbin.I32},
		Results: []wasmbin.ValType{wasmbin.I32},
	})

	pages := opts.Pages
	if pages == 0 {
		pages = 1
	}
	m.Memory = &wasmbin.Memory{Min: pages}
	if !opts.HideMemory {
		m.ExportMemory("memory")
	}

	for _, e := range entries {
		code := &wasmbin.Code{}
		if e.Trap {
			code.Unreachable()
		} else {
			for _, pct := range e.Progress {
				code.I32Const(pct).Call(progress)
			}
			if e.Random {
				code.I32Const(RandomOffset).I32Const(RandomLength).Call(random).Drop()
			}
			for i, w := range e.Words {
				code.LocalGet(e.Shape.outParam()).I32Const(int32(w)).I32Store(uint32(4 * i))
			}
			code.I32Const(e.Return)
		}
		fn := m.AddFunc(e.Shape.funcType(), code.Bytes())
		m.ExportFunc(e.Name, fn)
	}
	return m.Encode()
}

// Params builds call arguments for a vs-list entry point.
func Params(outPtr, outWords uint32) []uint64 {
	return []uint64{0, 0, 0, 0, 0, 0, 1, 0, uint64(outPtr), uint64(outWords)}
}
