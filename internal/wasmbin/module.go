// Package wasmbin assembles small core WebAssembly modules.
//
// It covers what the bridge needs to generate on the fly: function types,
// function imports, a single memory, exports, straight-line function bodies
// and active data segments.
package wasmbin

const (
	magic   uint32 = 0x6d736100
	version uint32 = 1

	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionExport   byte = 7
	sectionCode     byte = 10
	sectionData     byte = 11

	funcTypeByte byte = 0x60
)

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

// ExportKind identifies what an export refers to.
type ExportKind byte

const (
	ExportFunc   ExportKind = 0x00
	ExportMemory ExportKind = 0x02
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// Import is a function import.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Func is a defined function. Body holds the instruction bytes without the
// trailing end opcode.
type Func struct {
	Type uint32
	Body []byte
}

// Export names a function or the memory.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// Memory describes the module's single linear memory in pages.
type Memory struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// Data is an active data segment for memory 0.
type Data struct {
	Offset uint32
	Init   []byte
}

// Module is a module under construction.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	Memory  *Memory
	Exports []Export
	Data    []Data
}

// AddType returns the index of ft, appending it if not yet present.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ImportFunc adds a function import and returns its function index.
// Imports must be added before any defined function.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	m.Imports = append(m.Imports, Import{Module: module, Name: name, Type: m.AddType(ft)})
	return uint32(len(m.Imports) - 1)
}

// AddFunc adds a defined function and returns its function index.
func (m *Module) AddFunc(ft FuncType, body []byte) uint32 {
	m.Funcs = append(m.Funcs, Func{Type: m.AddType(ft), Body: body})
	return uint32(len(m.Imports) + len(m.Funcs) - 1)
}

// ExportFunc exports the function at index under name.
func (m *Module) ExportFunc(name string, index uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: ExportFunc, Index: index})
}

// ExportMemory exports memory 0 under name.
func (m *Module) ExportMemory(name string) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: ExportMemory})
}

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := &writer{}
	w.WriteU32LE(magic)
	w.WriteU32LE(version)

	if len(m.Types) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(funcTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, sectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(byte(ExportFunc))
			sec.WriteU32(imp.Type)
		}
		writeSection(w, sectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.WriteU32(f.Type)
		}
		writeSection(w, sectionFunction, sec.Bytes())
	}

	if m.Memory != nil {
		sec := &writer{}
		sec.WriteU32(1)
		if m.Memory.HasMax {
			sec.Byte(0x01)
			sec.WriteU32(m.Memory.Min)
			sec.WriteU32(m.Memory.Max)
		} else {
			sec.Byte(0x00)
			sec.WriteU32(m.Memory.Min)
		}
		writeSection(w, sectionMemory, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.WriteName(e.Name)
			sec.Byte(byte(e.Kind))
			sec.WriteU32(e.Index)
		}
		writeSection(w, sectionExport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			body := &writer{}
			body.WriteU32(0) // no locals beyond params
			body.WriteBytes(f.Body)
			body.Byte(opEnd)
			sec.WriteU32(uint32(body.Len()))
			sec.WriteBytes(body.Bytes())
		}
		writeSection(w, sectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.WriteU32(0)
			sec.Byte(opI32Const)
			sec.WriteS64(int64(int32(d.Offset)))
			sec.Byte(opEnd)
			sec.WriteU32(uint32(len(d.Init)))
			sec.WriteBytes(d.Init)
		}
		writeSection(w, sectionData, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func writeValTypes(w *writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}
