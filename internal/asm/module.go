package asm

import "fmt"

// Permission is a global's mutability class (spec.md §3 "Global").
type Permission int

const (
	ReadOnly Permission = iota
	ReadWrite
)

func (p Permission) String() string {
	if p == ReadWrite {
		return "read_write"
	}
	return "read_only"
}

// Global is one module-level allocation: either const data with an initial
// image, zero-initialized mutable data, or mutable data with an initial
// image (spec.md §6's add_global_const_data/add_global_mut_data/
// add_global_zero_data).
type Global struct {
	Index int
	Size  uint64
	Perms Permission
	Data  []byte // nil for zero-initialized globals
}

// Signature is a function or builtin's input/output arity (spec.md §3
// "Function address").
type Signature struct {
	In  uint8
	Out uint8
}

func (s Signature) String() string { return fmt.Sprintf("%d => %d", s.In, s.Out) }

// Function is one callable unit of a module: a name, its declared
// signature, and its instruction stream once building finishes (spec.md
// §4.2's lauf_asm_function).
type Function struct {
	Index     int
	Name      string
	Sig       Signature
	Code      []Inst
	Exported  bool
	MaxVstack int
	MaxCstack int

	// Declared marks a function added via Module.DeclareFunction that has
	// not yet been defined by a Builder; destroy/link code uses this to
	// tell a forward declaration from a function body.
	Declared bool

	blockOrder []string   // debug: block labels in emission order
	debug      debugTable // per-instruction source locations, see debug.go
}

// Module is a collection of functions and globals sharing one arena-backed
// lifetime (spec.md §3 "Module", §6 create_module/destroy_module).
type Module struct {
	Name string

	arena *Arena

	globals   []*Global
	functions []*Function
	byName    map[string]int
}

// NewModule creates an empty module named name.
func NewModule(name string) *Module {
	return &Module{
		Name:   name,
		arena:  NewArena(),
		byName: make(map[string]int),
	}
}

// Destroy releases the module's arena-backed storage. Go's GC would
// reclaim this regardless, but callers mirror the original's explicit
// destroy_module to keep lifetime boundaries visible at call sites that
// interop with manually-managed programs.
func (m *Module) Destroy() {
	m.arena.Reset()
	m.globals = nil
	m.functions = nil
	m.byName = nil
}

// AddGlobalConstData adds a read-only global initialized from data.
func (m *Module) AddGlobalConstData(data []byte) *Global {
	return m.addGlobal(uint64(len(data)), ReadOnly, data)
}

// AddGlobalMutData adds a mutable global initialized from data.
func (m *Module) AddGlobalMutData(data []byte) *Global {
	return m.addGlobal(uint64(len(data)), ReadWrite, data)
}

// AddGlobalZeroData adds a mutable global of size bytes, zero-initialized.
func (m *Module) AddGlobalZeroData(size uint64) *Global {
	return m.addGlobal(size, ReadWrite, nil)
}

func (m *Module) addGlobal(size uint64, perms Permission, data []byte) *Global {
	g := &Global{Index: len(m.globals), Size: size, Perms: perms}
	if data != nil {
		buf := m.arena.Alloc(len(data))
		copy(buf, data)
		g.Data = buf
	}
	m.globals = append(m.globals, g)
	return g
}

// Globals returns every global in declaration order.
func (m *Module) Globals() []*Global { return m.globals }

// DeclareFunction registers name with the given signature without a body,
// for forward references resolved later by a Builder or at link time
// (spec.md §4.2's separation of declaration from definition).
func (m *Module) DeclareFunction(name string, sig Signature) *Function {
	if idx, ok := m.byName[name]; ok {
		return m.functions[idx]
	}
	f := &Function{Index: len(m.functions), Name: name, Sig: sig, Declared: true}
	m.byName[name] = f.Index
	m.functions = append(m.functions, f)
	return f
}

// Function looks up a function by name, or nil if none was declared.
func (m *Module) Function(name string) *Function {
	if idx, ok := m.byName[name]; ok {
		return m.functions[idx]
	}
	return nil
}

// Functions returns every function in declaration order.
func (m *Module) Functions() []*Function { return m.functions }

// MarkExported flags fn as visible to link_module's symbol resolution
// (spec.md §4.2 "Linking").
func (f *Function) MarkExported() { f.Exported = true }

func (f *Function) String() string {
	return fmt.Sprintf("%s(%s)", f.Name, f.Sig)
}
