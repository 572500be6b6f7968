// Package abi defines the contract between the dispatcher and a builtin
// function's implementation (spec.md §4.5 "Builtin ABI"), grounded on
// include/lauf/runtime/builtin.h's lauf_runtime_builtin. It exists as its
// own package, independent of internal/runtime and internal/lib, so that
// internal/lib can declare concrete builtins and internal/runtime can
// dispatch to them without the two importing each other.
package abi

import "github.com/lauf-vm/lauf/internal/asm"

// Flags are the declared capabilities and restrictions of a builtin. The
// builder copies them into the call_builtin_sig trailer; it has no
// constant-folding pass, so a FlagConstantFold builtin runs at execution
// time like any other.
type Flags uint32

const (
	FlagDefault Flags = 0
	// FlagNoPanic promises the builtin never calls Host.Panic.
	FlagNoPanic Flags = 1 << 0
	// FlagNoProcess means the implementation only touches its args and
	// return values, never Host; callers may invoke it with a nil Host
	// as long as it never panics.
	FlagNoProcess Flags = 1 << 1
	// FlagVMDirective marks a builtin that can only run under the VM
	// executor, never under an alternative backend.
	FlagVMDirective Flags = 1 << 2
	// FlagConstantFold marks a builtin safe for the builder to evaluate at
	// build time when every input is a literal; such a builtin may only
	// touch its args, per LAUF_RUNTIME_BUILTIN_CONSTANT_FOLD.
	FlagConstantFold Flags = 1 << 3
	// FlagAlwaysPanic promises the builtin never returns normally. The
	// builder and verifier do not treat a call to one as a block
	// terminator; the block still needs its own terminating instruction.
	FlagAlwaysPanic Flags = 1 << 4
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Host is the subset of a runtime Process a builtin implementation is
// allowed to touch: memory validation/allocation and panicking. Builtins
// never see the full Process type, so internal/lib has no import-time
// dependency on internal/runtime.
type Host interface {
	// CheckedOffset validates addr and returns its backing bytes, or nil
	// if addr is invalid for a region of size bytes aligned to 1<<alignLog2.
	CheckedOffset(addr asm.Addr, size int, alignLog2 uint8) []byte
	// Alloc reserves size bytes as a new heap allocation and returns its
	// address.
	Alloc(size int) asm.Addr
	// Panic reports a panic with message to the process and returns the
	// error the builtin returns to abort it.
	Panic(message string) error
}

// Impl is a builtin implementation: consumes its declared input values and
// produces its declared output values, optionally touching host for
// memory or an explicit panic.
type Impl func(host Host, args []asm.Value) ([]asm.Value, error)

// Builtin is one registered builtin function (spec.md §4.5, grounded on
// lauf_runtime_builtin).
type Builtin struct {
	Name  string
	Sig   asm.Signature
	Flags Flags
	Fn    Impl
}

// Library is a named group of builtins sharing a dotted-name prefix
// (spec.md §4.5 "Builtin libraries", lauf_runtime_builtin_library).
type Library struct {
	Prefix    string
	Functions []*Builtin
}

// Table is the flattened, index-addressable view of every builtin a
// program can call_builtin into; the instruction's offset is an index
// into this slice (spec.md §6's supplemented builtin-table linking —
// the original embeds a direct function pointer per call site instead,
// which Go's 24-bit instruction payload can't carry).
type Table struct {
	entries []*Builtin
	byName  map[string]int32
}

// NewTable builds a Table from one or more libraries, in declaration
// order, with dotted "prefix.name" keys for lookup by name.
func NewTable(libs ...Library) *Table {
	t := &Table{byName: make(map[string]int32)}
	for _, lib := range libs {
		for _, b := range lib.Functions {
			idx := int32(len(t.entries))
			t.entries = append(t.entries, b)
			name := b.Name
			if lib.Prefix != "" {
				name = lib.Prefix + "." + b.Name
			}
			t.byName[name] = idx
		}
	}
	return t
}

// Index returns the table offset of the builtin named name.
func (t *Table) Index(name string) (int32, bool) {
	idx, ok := t.byName[name]
	return idx, ok
}

// At returns the builtin at offset, or nil if out of range.
func (t *Table) At(offset int32) *Builtin {
	if offset < 0 || int(offset) >= len(t.entries) {
		return nil
	}
	return t.entries[offset]
}
