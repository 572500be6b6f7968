package asm

import "fmt"

// blockSig records a named block's declared entry stack depth, keyed by the
// index of its first instruction in the function's final, laid-out code
// (spec.md §4.1's explicit block signatures).
type blockSig struct {
	label string
	entry int
	sig   Signature
}

// verifyStack runs a work-list data-flow pass over code to check that every
// block is entered with the stack depth it declared, and that the net
// effect of falling from one declared block into the next matches. This is
// the teacher's stack_checker.go two-pass approach (seed a depths array,
// flood-fill along every control edge, flag depth conflicts) generalized
// from a single linear function to jump/branch/call instructions that
// reference other functions and builtins rather than just constant-pool
// slots.
//
// funcs is the owning module's function table (for resolving call's
// function-relative offset to a callee signature); selfIndex is the index
// of the function being verified within it.
func verifyStack(code []Inst, blocks []blockSig, funcs []*Function, selfIndex int) (maxVstack int, err error) {
	if len(code) == 0 {
		return 0, nil
	}

	entryDepth := make(map[int]int, len(blocks))
	for _, b := range blocks {
		entryDepth[b.entry] = int(b.sig.In)
	}

	depth := make([]int, len(code))
	for i := range depth {
		depth[i] = -1
	}

	type item struct{ ip, d int }
	var work []item

	visit := func(ip, d int) error {
		if ip < 0 || ip >= len(code) {
			return fmt.Errorf("branch target %d out of range", ip)
		}
		if want, ok := entryDepth[ip]; ok && want != d {
			return fmt.Errorf("block at instruction %d entered with stack depth %d, declared %d", ip, d, want)
		}
		if depth[ip] == -1 {
			depth[ip] = d
			work = append(work, item{ip, d})
		} else if depth[ip] != d {
			return fmt.Errorf("instruction %d reached with stack depth %d, previously computed %d", ip, d, depth[ip])
		}
		return nil
	}

	if err := visit(0, int(entryDepth[0])); err != nil {
		return 0, err
	}

	resolveCall := func(ip int, offset int32) (Signature, error) {
		target := selfIndex + int(offset)
		if target < 0 || target >= len(funcs) {
			return Signature{}, fmt.Errorf("instruction %d: call target function index %d out of range", ip, target)
		}
		return funcs[target].Sig, nil
	}

	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		ip, d := it.ip, it.d

		if d > maxVstack {
			maxVstack = d
		}

		inst := code[ip]
		advance := 1

		switch inst.Op {
		case OpReturn, OpPanic, OpExit:
			continue

		case OpJump:
			if err := visit(ip+1+int(inst.Offset()), d); err != nil {
				return 0, err
			}
			continue

		case OpBranchFalse, OpBranchEq, OpBranchNe, OpBranchLt, OpBranchLe, OpBranchGe, OpBranchGt:
			d--
			if d < 0 {
				return 0, fmt.Errorf("instruction %d: stack underflow", ip)
			}
			if err := visit(ip+1+int(inst.Offset()), d); err != nil {
				return 0, err
			}

		case OpCall:
			sig, cerr := resolveCall(ip, inst.Offset())
			if cerr != nil {
				return 0, cerr
			}
			d += int(sig.Out) - int(sig.In)

		case OpCallIndirect:
			in, out, _ := inst.Signature()
			d -= 1 + int(in)
			if d < 0 {
				return 0, fmt.Errorf("instruction %d: stack underflow", ip)
			}
			d += int(out)

		case OpCallBuiltin, OpCallBuiltinNoProcess:
			if ip+1 >= len(code) || code[ip+1].Op != OpCallBuiltinSig {
				return 0, fmt.Errorf("instruction %d: call_builtin missing signature trailer", ip)
			}
			in, out, _ := code[ip+1].Signature()
			d -= int(in)
			if d < 0 {
				return 0, fmt.Errorf("instruction %d: stack underflow", ip)
			}
			d += int(out)
			advance = 2

		case OpCallBuiltinSig:
			return 0, fmt.Errorf("instruction %d: call_builtin_sig without a preceding call_builtin", ip)

		default:
			delta, derr := simpleStackDelta(inst)
			if derr != nil {
				return 0, fmt.Errorf("instruction %d: %w", ip, derr)
			}
			d += delta
			if d < 0 {
				return 0, fmt.Errorf("instruction %d: stack underflow", ip)
			}
		}

		next := ip + advance
		if next < len(code) {
			if err := visit(next, d); err != nil {
				return 0, err
			}
		}
	}

	for ip, d := range depth {
		if d == -1 && code[ip].Op != OpCallBuiltinSig {
			return 0, fmt.Errorf("instruction %d is unreachable", ip)
		}
	}
	return maxVstack, nil
}

// simpleStackDelta returns the net vstack effect of instructions whose
// effect doesn't depend on a resolved call target (spec.md §3's per-opcode
// catalogue).
func simpleStackDelta(i Inst) (int, error) {
	switch i.Op {
	case OpNop, OpLocalFree, OpRoll, OpSwap:
		return 0, nil
	case OpPush, OpPushN, OpGlobalAddr, OpFunctionAddr, OpLocalAddr, OpLocalAlloc, OpLocalAllocAligned, OpDup, OpPick:
		return 1, nil
	case OpPush2, OpPush3, OpDerefConst, OpDerefMut:
		return 0, nil
	case OpPopTop:
		return -1, nil
	case OpPop:
		return -1, nil
	default:
		return 0, fmt.Errorf("unhandled opcode %s in stack-delta analysis", i.Op)
	}
}
