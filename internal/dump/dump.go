// Package dump renders a built Module as human-readable text or
// structured JSON, resolving call_builtin targets to their dotted names
// via a supplied set of libraries, grounded on lauf/backend/dump.cpp's
// lauf_backend_dump.
package dump

import (
	"fmt"
	"strings"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

// Options configures a dump, mirroring lauf_backend_dump_options: the
// libraries searched to resolve call_builtin offsets to names.
type Options struct {
	Builtins *abi.Table
}

// Module renders mod as text using the instruction mnemonics
// internal/frontend accepts. Each instruction line is prefixed with its
// code offset and there are no block headers, so the parser does not
// accept a dump back as input.
func Module(mod *asm.Module, opts Options) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %q\n\n", mod.Name)

	for _, g := range mod.Globals() {
		dumpGlobal(&sb, g)
	}
	if len(mod.Globals()) > 0 {
		sb.WriteByte('\n')
	}

	for _, fn := range mod.Functions() {
		dumpFunction(&sb, mod, fn, opts)
	}
	return sb.String()
}

func dumpGlobal(sb *strings.Builder, g *asm.Global) {
	perm := "const"
	if g.Perms == asm.ReadWrite {
		perm = "mut"
	}
	if g.Data == nil {
		fmt.Fprintf(sb, "global @global_%d %s zero %d\n", g.Index, perm, g.Size)
		return
	}
	fmt.Fprintf(sb, "global @global_%d %s data (", g.Index, perm)
	for i, b := range g.Data {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(sb, "%d", b)
	}
	sb.WriteString(")\n")
}

func dumpFunction(sb *strings.Builder, mod *asm.Module, fn *asm.Function, opts Options) {
	sb.WriteString(functionText(mod, fn, opts))
}

// functionText renders one function's header and body, used both by the
// text dumper and, per-function, by the JSON dumper's "text" field.
func functionText(mod *asm.Module, fn *asm.Function, opts Options) string {
	var sb strings.Builder
	exported := ""
	if fn.Exported {
		exported = " export"
	}
	if fn.Declared {
		fmt.Fprintf(&sb, "fn @%s %s%s // declared, not defined\n\n", fn.Name, fn.Sig, exported)
		return sb.String()
	}
	fmt.Fprintf(&sb, "fn @%s %s%s {\n", fn.Name, fn.Sig, exported)

	funcs := mod.Functions()
	for ip := 0; ip < len(fn.Code); ip++ {
		inst := fn.Code[ip]
		if inst.Op == asm.OpCallBuiltinSig {
			continue // not printed; the call_builtin line shows only the builtin's name
		}
		fmt.Fprintf(&sb, "  %04x: %s", ip, formatInst(mod, fn, funcs, opts, ip, inst))
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n\n")
	return sb.String()
}

func formatInst(mod *asm.Module, fn *asm.Function, funcs []*asm.Function, opts Options, ip int, inst asm.Inst) string {
	switch inst.Op {
	case asm.OpCall:
		target := fn.Index + int(inst.Offset())
		if target >= 0 && target < len(funcs) {
			return fmt.Sprintf("call @%s", funcs[target].Name)
		}
		return fmt.Sprintf("call <invalid offset %d>", inst.Offset())
	case asm.OpFunctionAddr:
		target := fn.Index + int(inst.Offset())
		if target >= 0 && target < len(funcs) {
			return fmt.Sprintf("function_addr @%s", funcs[target].Name)
		}
		return fmt.Sprintf("function_addr <invalid offset %d>", inst.Offset())
	case asm.OpCallBuiltin, asm.OpCallBuiltinNoProcess:
		mnemonic := "call_builtin"
		if inst.Op == asm.OpCallBuiltinNoProcess {
			mnemonic = "call_builtin_no_process"
		}
		name := builtinName(opts.Builtins, int32(inst.ImmValue()))
		return fmt.Sprintf("%s %s", mnemonic, name)
	case asm.OpJump, asm.OpBranchFalse, asm.OpBranchEq, asm.OpBranchNe,
		asm.OpBranchLt, asm.OpBranchLe, asm.OpBranchGe, asm.OpBranchGt:
		return fmt.Sprintf("%s <%04x>", inst.Op, ip+1+int(inst.Offset()))
	default:
		return inst.String()
	}
}

func builtinName(t *abi.Table, offset int32) string {
	if t == nil {
		return fmt.Sprintf("<builtin#%d>", offset)
	}
	b := t.At(offset)
	if b == nil {
		return fmt.Sprintf("<builtin#%d out of range>", offset)
	}
	return b.Name
}
