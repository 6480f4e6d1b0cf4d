// Package wasmbin builds small core WebAssembly modules in memory.
//
// It covers what C-string guests need: i32 functions, one memory, mutable
// globals, active data segments, function imports and exports. It is used by
// the cstr CLI for its built-in guest and by tests.
package wasmbin

const (
	sectionType   = 1
	sectionImport = 2
	sectionFunc   = 3
	sectionMemory = 5
	sectionGlobal = 6
	sectionExport = 7
	sectionCode   = 10
	sectionData   = 11

	funcTypeMarker = 0x60

	kindFunc   = 0x00
	kindMemory = 0x02
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// ValType is a core value type
type ValType byte

const I32 ValType = 0x7F

// FuncType is a function signature
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) equal(o FuncType) bool {
	if len(ft.Params) != len(o.Params) || len(ft.Results) != len(o.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

type funcImport struct {
	module string
	name   string
	typ    uint32
}

type function struct {
	body   *Expr
	locals []ValType
	typ    uint32
}

type global struct {
	init    int32
	typ     ValType
	mutable bool
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	data   []byte
	offset uint32
}

// Module is a module under construction. Imports must be added before
// functions so function indices stay stable.
type Module struct {
	types    []FuncType
	imports  []funcImport
	funcs    []function
	globals  []global
	exports  []export
	data     []segment
	memPages uint32
	hasMem   bool
}

// New creates an empty module.
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(ft FuncType) uint32 {
	for i, t := range m.types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

// ImportFunc declares an imported function and returns its function index.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmbin: imports must precede functions")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typ: m.typeIndex(ft)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function, exported under name when name is non-empty, and
// returns its function index. body must not include the final end opcode.
func (m *Module) Func(name string, ft FuncType, locals []ValType, body *Expr) uint32 {
	idx := uint32(len(m.imports) + len(m.funcs))
	m.funcs = append(m.funcs, function{typ: m.typeIndex(ft), locals: locals, body: body})
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
	}
	return idx
}

// Global defines a global initialized to init and returns its index.
func (m *Module) Global(t ValType, mutable bool, init int32) uint32 {
	m.globals = append(m.globals, global{typ: t, mutable: mutable, init: init})
	return uint32(len(m.globals) - 1)
}

// Memory defines the module's memory with the given page count, exported
// under name when name is non-empty.
func (m *Module) Memory(pages uint32, name string) {
	m.hasMem = true
	m.memPages = pages
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindMemory, idx: 0})
	}
}

// Data places b at offset in memory 0 at instantiation.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset: offset, data: b})
}

// Encode returns the module binary.
func (m *Module) Encode() []byte {
	buf := &Buffer{}
	buf.WriteBytes(header)

	if len(m.types) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.types)))
		for _, ft := range m.types {
			sec.AppendByte(funcTypeMarker)
			sec.WriteU32(uint32(len(ft.Params)))
			for _, p := range ft.Params {
				sec.AppendByte(byte(p))
			}
			sec.WriteU32(uint32(len(ft.Results)))
			for _, r := range ft.Results {
				sec.AppendByte(byte(r))
			}
		}
		writeSection(buf, sectionType, sec)
	}

	if len(m.imports) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.WriteName(imp.module)
			sec.WriteName(imp.name)
			sec.AppendByte(kindFunc)
			sec.WriteU32(imp.typ)
		}
		writeSection(buf, sectionImport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.WriteU32(f.typ)
		}
		writeSection(buf, sectionFunc, sec)
	}

	if m.hasMem {
		sec := &Buffer{}
		sec.WriteU32(1)
		sec.AppendByte(0x00) // no maximum
		sec.WriteU32(m.memPages)
		writeSection(buf, sectionMemory, sec)
	}

	if len(m.globals) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.AppendByte(byte(g.typ))
			if g.mutable {
				sec.AppendByte(0x01)
			} else {
				sec.AppendByte(0x00)
			}
			sec.AppendByte(opI32Const)
			sec.WriteI32(g.init)
			sec.AppendByte(opEnd)
		}
		writeSection(buf, sectionGlobal, sec)
	}

	if len(m.exports) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.exports)))
		for _, e := range m.exports {
			sec.WriteName(e.name)
			sec.AppendByte(e.kind)
			sec.WriteU32(e.idx)
		}
		writeSection(buf, sectionExport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := &Buffer{}
			body.WriteU32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.WriteU32(1)
				body.AppendByte(byte(l))
			}
			if f.body != nil {
				body.WriteBytes(f.body.buf.Bytes)
			}
			body.AppendByte(opEnd)
			sec.WriteVec(body.Bytes)
		}
		writeSection(buf, sectionCode, sec)
	}

	if len(m.data) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.data)))
		for _, d := range m.data {
			sec.WriteU32(0) // active, memory 0
			sec.AppendByte(opI32Const)
			sec.WriteI32(int32(d.offset))
			sec.AppendByte(opEnd)
			sec.WriteVec(d.data)
		}
		writeSection(buf, sectionData, sec)
	}

	return buf.Bytes
}
