package asm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lauf-vm/lauf/internal/errors"
)

// NativeFunction is a host-provided implementation plugged in for a
// function the module only declared (spec.md §6's
// define_native_function, grounded on the original's
// lauf_asm_define_native_function / native_function_definition).
type NativeFunction struct {
	Decl *Function
	Impl func(args []Value) ([]Value, error)
}

// NativeGlobal is host-provided backing storage plugged in for a global
// the module only declared zero-sized (lauf_asm_define_native_global).
type NativeGlobal struct {
	Decl *Global
	Data []byte
}

// Program pairs a module with an entry function and the native
// definitions and linked modules resolving anything the base module left
// declared-but-undefined (spec.md §4.2 "Linking", §6 create_program).
type Program struct {
	Base  *Module
	Entry *Function

	linked   []*Module
	natFuncs map[*Function]*NativeFunction
	natGlobs map[*Global]*NativeGlobal
}

// CreateProgram pairs mod with entry, matching lauf_asm_create_program.
//
// `exit` is reserved for the program's entry frame (this port's stand-in
// for the original's hidden two-instruction trampoline, see
// MakeTrampolineFrame); entry-ness is only known once a function is chosen
// here, not at a per-function Builder.Finish(), so that's where this is
// caught. Any other function in mod containing an `exit` is a build error.
func CreateProgram(mod *Module, entry *Function) (*Program, error) {
	for _, fn := range mod.Functions() {
		if fn == entry || fn.Declared {
			continue
		}
		if idx := indexOfExit(fn.Code); idx >= 0 {
			return nil, &errors.BuildError{
				Code:     errors.EInvalidExit,
				Function: fn.Name,
				Offset:   idx,
				Message:  "exit used in a function other than the program's entry",
			}
		}
	}
	return &Program{
		Base:     mod,
		Entry:    entry,
		natFuncs: make(map[*Function]*NativeFunction),
		natGlobs: make(map[*Global]*NativeGlobal),
	}, nil
}

// indexOfExit returns the index of the first OpExit in code, or -1.
func indexOfExit(code []Inst) int {
	for i, inst := range code {
		if inst.Op == OpExit {
			return i
		}
	}
	return -1
}

// DefineNativeFunction attaches a host implementation to a declared-only
// function.
func (p *Program) DefineNativeFunction(decl *Function, impl func(args []Value) ([]Value, error)) {
	p.natFuncs[decl] = &NativeFunction{Decl: decl, Impl: impl}
}

// DefineNativeGlobal attaches host-owned backing storage to a declared
// global.
func (p *Program) DefineNativeGlobal(decl *Global, data []byte) {
	p.natGlobs[decl] = &NativeGlobal{Decl: decl, Data: data}
}

// NativeGlobal looks up the native backing storage for g, if any.
func (p *Program) NativeGlobal(g *Global) (*NativeGlobal, bool) {
	ng, ok := p.natGlobs[g]
	return ng, ok
}

// NativeFunction looks up the native implementation for fn, if any.
func (p *Program) NativeFunction(fn *Function) (*NativeFunction, bool) {
	nf, ok := p.natFuncs[fn]
	return nf, ok
}

// LinkModule resolves every function the base module declared but did not
// define against dependency's exported functions, by name (spec.md §4.2's
// supplemented multi-module linking). A symbol that dependency does not
// export is left declared (see Unresolved) rather than reported. Returns an
// error when an exported body's signature differs from the declaration, or
// when a body linked into a non-entry function contains exit.
func (p *Program) LinkModule(dependency *Module) error {
	resolved := 0
	for _, fn := range p.Base.Functions() {
		if !fn.Declared {
			continue
		}
		dep := dependency.Function(fn.Name)
		if dep == nil || dep.Declared || !dep.Exported {
			continue
		}
		if dep.Sig != fn.Sig {
			return &linkErrorf{fn.Name, fmt.Sprintf("signature mismatch: declared %s, linked module exports %s", fn.Sig, dep.Sig)}
		}
		if fn != p.Entry {
			if idx := indexOfExit(dep.Code); idx >= 0 {
				return &linkErrorf{fn.Name, "exit used in a function other than the program's entry"}
			}
		}
		fn.Code = dep.Code
		fn.MaxVstack = dep.MaxVstack
		fn.MaxCstack = dep.MaxCstack
		fn.Declared = false
		resolved++
		logger.Debug("linker resolved symbol", zap.String("function", fn.Name), zap.String("from_module", dependency.Name))
	}
	p.linked = append(p.linked, dependency)
	logger.Info("linked module", zap.String("module", dependency.Name), zap.Int("resolved", resolved))
	return nil
}

// Unresolved returns the names of every function the base module still
// has no body for, after every LinkModule and DefineNativeFunction call.
func (p *Program) Unresolved() []string {
	var names []string
	for _, fn := range p.Base.Functions() {
		if !fn.Declared {
			continue
		}
		if _, ok := p.natFuncs[fn]; ok {
			continue
		}
		names = append(names, fn.Name)
	}
	return names
}

// linkErrorf is the plain error LinkModule returns; it carries no
// errors-package code. Callers that want the typed errors.LinkError
// construct it themselves from this error's Error() text when surfacing it
// to a user.
type linkErrorf struct {
	function string
	message  string
}

func (e *linkErrorf) Error() string {
	return fmt.Sprintf("link error: %s: %s", e.function, e.message)
}
