package asm

import "testing"

// buildAddOne builds the balanced fixture
// `fn(1 => 1) { entry(1=>1): push 1, pop_top, return_ }`.
func buildAddOne(t *testing.T) (*Module, *Function) {
	t.Helper()
	mod := NewModule("test")
	fn := mod.DeclareFunction("add_one", Signature{In: 1, Out: 1})
	b := NewBuilder(mod, fn)
	b.Block("entry", Signature{In: 1, Out: 1})
	b.EmitPush(1)
	b.EmitPopTop()
	b.EmitReturn()
	if _, err := b.Finish(); err != nil {
		t.Fatalf("Finish() = %v, want nil", err)
	}
	return mod, fn
}

func TestBuilderBalancedFunction(t *testing.T) {
	_, fn := buildAddOne(t)
	if fn.Declared {
		t.Error("fn.Declared = true after Finish, want false")
	}
	if len(fn.Code) == 0 {
		t.Error("fn.Code is empty after Finish")
	}
}

func TestBuilderStackUnderflow(t *testing.T) {
	mod := NewModule("test")
	fn := mod.DeclareFunction("bad", Signature{In: 0, Out: 1})
	b := NewBuilder(mod, fn)
	b.Block("entry", Signature{In: 0, Out: 1})
	// pop_top on an empty stack: declared 0 inputs, block tries to consume
	// a value that was never pushed.
	b.EmitPopTop()
	b.EmitReturn()

	_, err := b.Finish()
	if err == nil {
		t.Fatal("Finish() = nil, want a stack-underflow error")
	}
}

func TestBuilderDuplicateBlock(t *testing.T) {
	mod := NewModule("test")
	fn := mod.DeclareFunction("dup", Signature{In: 0, Out: 0})
	b := NewBuilder(mod, fn)
	b.Block("entry", Signature{In: 0, Out: 0})
	b.EmitReturn()
	b.EndBlock()
	b.Block("entry", Signature{In: 0, Out: 0})
	b.EmitReturn()
	b.EndBlock()

	if _, err := b.Finish(); err == nil {
		t.Fatal("Finish() = nil, want a duplicate-block error")
	}
}

func TestBuilderUndeclaredBlockTarget(t *testing.T) {
	mod := NewModule("test")
	fn := mod.DeclareFunction("jumpy", Signature{In: 0, Out: 0})
	b := NewBuilder(mod, fn)
	b.Block("entry", Signature{In: 0, Out: 0})
	b.EmitJump("nowhere")
	b.EndBlock()

	if _, err := b.Finish(); err == nil {
		t.Fatal("Finish() = nil, want an undeclared-block error")
	}
}

func TestBuilderCallResolution(t *testing.T) {
	mod := NewModule("test")
	callee := mod.DeclareFunction("callee", Signature{In: 0, Out: 1})
	cb := NewBuilder(mod, callee)
	cb.Block("entry", Signature{In: 0, Out: 1})
	cb.EmitPush(42)
	cb.EmitReturn()
	if _, err := cb.Finish(); err != nil {
		t.Fatalf("callee Finish() = %v", err)
	}

	caller := mod.DeclareFunction("caller", Signature{In: 0, Out: 1})
	b := NewBuilder(mod, caller)
	b.Block("entry", Signature{In: 0, Out: 1})
	b.EmitCall(callee)
	b.EmitReturn()
	if _, err := b.Finish(); err != nil {
		t.Fatalf("caller Finish() = %v", err)
	}

	found := caller.Code[0]
	if found.Op != OpCall {
		t.Fatalf("caller.Code[0].Op = %s, want call", found.Op)
	}
	if target := caller.Index + int(found.Offset()); target != callee.Index {
		t.Errorf("call offset resolves to function %d, want %d", target, callee.Index)
	}
}
