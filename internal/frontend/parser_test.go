package frontend

import (
	"testing"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/lib"
)

func TestParserSimpleFunction(t *testing.T) {
	source := `fn @main (0 => 1) export {
  block %entry (0 => 1):
    push 42
    return
}`
	p := NewParser(source, "test", nil)
	mod := p.Parse()
	if p.HasErrors() {
		t.Fatalf("parser errors: %v", p.Errors())
	}

	fn := mod.Function("main")
	if fn == nil {
		t.Fatal("module has no function named main")
	}
	if !fn.Exported {
		t.Error("fn.Exported = false, want true")
	}
	if len(fn.Code) == 0 {
		t.Error("fn.Code is empty")
	}
}

func TestParserForwardReference(t *testing.T) {
	source := `
fn @main (0 => 1) export {
  block %entry (0 => 1):
    call @helper
    return
}

fn @helper (0 => 1) {
  block %entry (0 => 1):
    push 7
    return
}`
	p := NewParser(source, "test", nil)
	mod := p.Parse()
	if p.HasErrors() {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	if mod.Function("main") == nil || mod.Function("helper") == nil {
		t.Fatal("expected both main and helper to be declared")
	}
}

func TestParserGlobalDeclaration(t *testing.T) {
	source := `
global @buf mut zero 16

fn @main (0 => 1) export {
  block %entry (0 => 1):
    global_addr @buf
    return
}`
	p := NewParser(source, "test", nil)
	mod := p.Parse()
	if p.HasErrors() {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	if len(mod.Globals()) != 1 {
		t.Fatalf("len(mod.Globals()) = %d, want 1", len(mod.Globals()))
	}
}

func TestParserCallBuiltin(t *testing.T) {
	source := `
fn @main (0 => 1) export {
  block %entry (0 => 1):
    push 3
    push 5
    call_builtin lauf.bits.and
    return
}`
	builtins := abi.NewTable(lib.Standard()...)
	p := NewParser(source, "test", builtins)
	mod := p.Parse()
	if p.HasErrors() {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	if mod.Function("main") == nil {
		t.Fatal("module has no function named main")
	}
}

func TestParserUnknownBuiltinIsAnError(t *testing.T) {
	source := `
fn @main (0 => 0) {
  block %entry (0 => 0):
    call_builtin lauf.nope.nothing
    return
}`
	builtins := abi.NewTable(lib.Standard()...)
	p := NewParser(source, "test", builtins)
	p.Parse()
	if !p.HasErrors() {
		t.Fatal("expected a parser error for an unknown builtin")
	}
}

func TestParserUndeclaredBranchTargetIsABuildError(t *testing.T) {
	source := `
fn @main (0 => 0) {
  block %entry (0 => 0):
    jump %nowhere
}`
	p := NewParser(source, "test", nil)
	p.Parse()
	if !p.HasErrors() {
		t.Fatal("expected a build error surfaced through the parser for a jump to an undeclared block")
	}
}
