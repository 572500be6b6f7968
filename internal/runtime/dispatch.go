package runtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lauf-vm/lauf/internal/asm"
	lauferrors "github.com/lauf-vm/lauf/internal/errors"
)

// dispatch runs fn's code starting at ip within frame until the call
// started by vm.run either returns past the trampoline (success) or a
// panic/budget error stops it. It is a loop-based fallback of the
// tail-call-chained dispatcher the original builds with
// [[clang::musttail]] (vm_execute.cpp): Go has no guaranteed tail call, so
// every opcode handler here is a case in one switch instead of its own
// mutually tail-calling function, but the state it threads through --
// ip, the vstack, and the current frame -- is exactly the same three
// values the original threads through its dispatch table.
func dispatch(p *Process, fn *asm.Function, ip int, frame *Frame) error {
	for {
		if ip < 0 || ip >= len(fn.Code) {
			return p.PanicCode(lauferrors.RUnknownOpcode, fmt.Sprintf("instruction pointer %d out of range", ip))
		}
		if !p.Step() {
			logger.Warn("step limit exceeded", zap.String("function", fn.Name), zap.Uint64("limit", p.VM.StepLimit))
			return ErrStepLimitExceeded
		}

		inst := fn.Code[ip]
		switch inst.Op {
		case asm.OpNop:
			ip++

		case asm.OpReturn:
			if frame.Prev.IsTrampolineFrame() {
				p.FreeFrameLocals(frame.FirstLocalAlloc)
				return nil
			}
			retIP := frame.ReturnIP
			p.PopFrame()
			frame = p.CallstackLeaf
			fn = frame.Function
			ip = retIP

		case asm.OpJump:
			ip = ip + 1 + int(inst.Offset())

		case asm.OpBranchFalse, asm.OpBranchEq, asm.OpBranchNe, asm.OpBranchLt, asm.OpBranchLe,
			asm.OpBranchGe, asm.OpBranchGt:
			cond, ok := p.PopVstack()
			if !ok {
				return p.PanicCode(lauferrors.RVstackOverflow, "branch with an empty value stack")
			}
			if branchTaken(inst.Op, cond) {
				ip = ip + 1 + int(inst.Offset())
			} else {
				ip++
			}

		case asm.OpPanic:
			msgAddr, ok := p.PopVstack()
			if !ok {
				return p.PanicCode(lauferrors.RVstackOverflow, "panic with an empty value stack")
			}
			return p.Panic(messageFromAddr(p, msgAddr.AsAddr()))

		case asm.OpExit:
			if !frame.IsRootFrame() {
				return ErrExitOutsideTrampoline
			}
			p.FreeFrameLocals(frame.FirstLocalAlloc)
			return nil

		case asm.OpCall:
			target := p.Program.Base.Functions()[fn.Index+int(inst.Offset())]
			newFn, newIP, newFrame, err := p.call(target, ip+1, fn, frame)
			if err != nil {
				return err
			}
			fn, ip, frame = newFn, newIP, newFrame

		case asm.OpCallIndirect:
			in, out, _ := inst.Signature()
			addrVal, ok := p.PopVstack()
			if !ok {
				return p.PanicCode(lauferrors.RVstackOverflow, "call_indirect with an empty value stack")
			}
			target := addrVal.AsFuncAddr()
			if target.In != in || target.Out != out {
				return p.PanicCode(lauferrors.RArityMismatch,
					fmt.Sprintf("call_indirect expected (%d=>%d), function address declares (%d=>%d)",
						in, out, target.In, target.Out))
			}
			funcs := p.Program.Base.Functions()
			if target.Index < 0 || target.Index >= len(funcs) {
				return p.PanicCode(lauferrors.RInvalidAddress, "call_indirect target function index out of range")
			}
			newFn, newIP, newFrame, err := p.call(funcs[target.Index], ip+1, fn, frame)
			if err != nil {
				return err
			}
			fn, ip, frame = newFn, newIP, newFrame

		case asm.OpCallBuiltin, asm.OpCallBuiltinNoProcess:
			if ip+1 >= len(fn.Code) || fn.Code[ip+1].Op != asm.OpCallBuiltinSig {
				return p.PanicCode(lauferrors.RUnknownOpcode, "call_builtin missing signature trailer")
			}
			in, out, _ := fn.Code[ip+1].Signature()
			if err := p.callBuiltin(int32(inst.Offset()), in, out); err != nil {
				return err
			}
			ip += 2

		case asm.OpCallBuiltinSig:
			return p.PanicCode(lauferrors.RUnknownOpcode, "call_builtin_sig reached outside a call_builtin")

		case asm.OpPush:
			if !p.PushVstack(asm.NewUint(uint64(inst.ImmValue()))) {
				return p.PanicCode(lauferrors.RVstackOverflow, "value stack overflow")
			}
			ip++
		case asm.OpPushN:
			if !p.PushVstack(asm.NewUint(^uint64(inst.ImmValue()))) {
				return p.PanicCode(lauferrors.RVstackOverflow, "value stack overflow")
			}
			ip++
		case asm.OpPush2:
			top, ok := p.PopVstack()
			if !ok {
				return p.PanicCode(lauferrors.RVstackOverflow, "push2 with an empty value stack")
			}
			p.PushVstack(asm.NewUint(top.AsUint() | uint64(inst.ImmValue())<<24))
			ip++
		case asm.OpPush3:
			top, ok := p.PopVstack()
			if !ok {
				return p.PanicCode(lauferrors.RVstackOverflow, "push3 with an empty value stack")
			}
			p.PushVstack(asm.NewUint(top.AsUint() | uint64(inst.ImmValue())<<48))
			ip++

		case asm.OpGlobalAddr:
			if !p.PushVstack(asm.NewAddrValue(asm.PackAddr(inst.ImmValue(), 0, 0))) {
				return p.PanicCode(lauferrors.RVstackOverflow, "value stack overflow")
			}
			ip++

		case asm.OpFunctionAddr:
			target := fn.Index + int(inst.Offset())
			tf := p.Program.Base.Functions()[target]
			if !p.PushVstack(asm.NewFuncAddrValue(asm.FuncAddr{Index: target, In: tf.Sig.In, Out: tf.Sig.Out})) {
				return p.PanicCode(lauferrors.RVstackOverflow, "value stack overflow")
			}
			ip++

		case asm.OpLocalAddr:
			slot, offset := inst.LocalAddr()
			addr := asm.PackAddr(frame.FirstLocalAlloc+uint32(slot), frame.LocalGeneration&0b11, uint32(offset))
			if !p.PushVstack(asm.NewAddrValue(addr)) {
				return p.PanicCode(lauferrors.RVstackOverflow, "value stack overflow")
			}
			ip++

		case asm.OpPop:
			if err := p.removeAt(int(inst.StackIdx())); err != nil {
				return p.PanicCode(lauferrors.RVstackOverflow, err.Error())
			}
			ip++
		case asm.OpPopTop:
			if _, ok := p.PopVstack(); !ok {
				return p.PanicCode(lauferrors.RVstackOverflow, "pop_top with an empty value stack")
			}
			ip++
		case asm.OpPick:
			if err := p.pickAt(int(inst.StackIdx())); err != nil {
				return p.PanicCode(lauferrors.RVstackOverflow, err.Error())
			}
			ip++
		case asm.OpDup:
			if err := p.pickAt(0); err != nil {
				return p.PanicCode(lauferrors.RVstackOverflow, err.Error())
			}
			ip++
		case asm.OpRoll:
			if err := p.rollAt(int(inst.StackIdx())); err != nil {
				return p.PanicCode(lauferrors.RVstackOverflow, err.Error())
			}
			ip++
		case asm.OpSwap:
			if err := p.rollAt(1); err != nil {
				return p.PanicCode(lauferrors.RVstackOverflow, err.Error())
			}
			ip++

		case asm.OpLocalAlloc, asm.OpLocalAllocAligned:
			_, size := inst.Layout()
			addr := p.NewLocalAlloc(int(size))
			if !p.PushVstack(asm.NewAddrValue(addr)) {
				return p.PanicCode(lauferrors.RVstackOverflow, "value stack overflow")
			}
			ip++
		case asm.OpLocalFree:
			p.FreeLocalAllocs(int(inst.ImmValue()))
			ip++

		case asm.OpDerefConst, asm.OpDerefMut:
			align, size := inst.Layout()
			addrVal, ok := p.PopVstack()
			if !ok {
				return p.PanicCode(lauferrors.RVstackOverflow, "deref with an empty value stack")
			}
			addr := addrVal.AsAddr()
			data := p.Allocations.CheckedOffset(addr, int(size), align)
			if data == nil {
				return p.PanicCode(lauferrors.RInvalidAddress, fmt.Sprintf("invalid memory access at %s", addr))
			}
			if inst.Op == asm.OpDerefMut {
				if a := p.Allocations.Get(addr.Allocation()); a != nil && a.Source.IsConst() {
					return p.PanicCode(lauferrors.RWriteToConst, fmt.Sprintf("write to read-only memory at %s", addr))
				}
			}
			p.PushVstack(asm.NewAddrValue(addr))
			ip++

		default:
			return p.PanicCode(lauferrors.RUnknownOpcode, fmt.Sprintf("unrecognized opcode %s", inst.Op))
		}
	}
}

// call dispatches a call to target: a native-defined function executes
// synchronously and control resumes in the caller, while a lauf-defined
// one pushes a new Frame and control resumes at its first instruction
// (spec.md §4.3 "Calls").
func (p *Process) call(target *asm.Function, returnIP int, callerFn *asm.Function, callerFrame *Frame) (*asm.Function, int, *Frame, error) {
	if nf, ok := p.Program.NativeFunction(target); ok {
		args := make([]asm.Value, target.Sig.In)
		for i := int(target.Sig.In) - 1; i >= 0; i-- {
			v, ok := p.PopVstack()
			if !ok {
				return nil, 0, nil, p.PanicCode(lauferrors.RVstackOverflow, "native call with too few arguments")
			}
			args[i] = v
		}
		results, err := nf.Impl(args)
		if err != nil {
			return nil, 0, nil, p.Panic(err.Error())
		}
		for _, r := range results {
			p.PushVstack(r)
		}
		return callerFn, returnIP, callerFrame, nil
	}

	if cap(p.Vstack)-len(p.Vstack) < target.MaxVstack {
		return nil, 0, nil, p.PanicCode(lauferrors.RVstackOverflow,
			fmt.Sprintf("call to %q needs %d vstack slots, only %d remain", target.Name, target.MaxVstack, cap(p.Vstack)-len(p.Vstack)))
	}

	newFrame, ok := p.PushFrame(target, returnIP)
	if !ok {
		return nil, 0, nil, ErrCstackOverflow
	}
	return target, 0, newFrame, nil
}

// callBuiltin dispatches a call_builtin through the VM's builtin table
// (spec.md §4.5 "Builtin ABI").
func (p *Process) callBuiltin(offset int32, in, out uint8) error {
	if p.VM.Builtins == nil {
		return p.PanicCode(lauferrors.RUnknownOpcode, "call_builtin with no builtin table configured")
	}
	b := p.VM.Builtins.At(offset)
	if b == nil {
		return p.PanicCode(lauferrors.RUnknownOpcode, fmt.Sprintf("call_builtin offset %d out of range", offset))
	}

	args := make([]asm.Value, in)
	for i := int(in) - 1; i >= 0; i-- {
		v, ok := p.PopVstack()
		if !ok {
			return p.PanicCode(lauferrors.RVstackOverflow, "call_builtin with too few arguments")
		}
		args[i] = v
	}

	results, err := b.Fn(p, args)
	if err != nil {
		return err
	}
	if len(results) != int(out) {
		return p.PanicCode(lauferrors.RArityMismatch,
			fmt.Sprintf("builtin %q returned %d values, declared %d", b.Name, len(results), out))
	}
	for _, r := range results {
		p.PushVstack(r)
	}
	return nil
}

// CallIsolated runs fn to completion with the current panic handler
// temporarily replaced by one that records the panic message instead of
// invoking it, for lauf.test.assert_panic. fn must declare (0 => 0); any
// other arity is rejected rather than silently mismatched against an
// empty argument list.
func (p *Process) CallIsolated(fn asm.FuncAddr) (message string, paniced bool, err error) {
	if fn.In != 0 || fn.Out != 0 {
		return "", false, fmt.Errorf("assert_panic target must declare (0 => 0)")
	}
	funcs := p.Program.Base.Functions()
	if fn.Index < 0 || fn.Index >= len(funcs) {
		return "", false, p.PanicCode(lauferrors.RInvalidAddress, "assert_panic target function index out of range")
	}
	target := funcs[fn.Index]

	savedHandler := p.PanicHandler
	var captured string
	p.PanicHandler = func(_ *Process, msg string) { captured = msg }
	defer func() { p.PanicHandler = savedHandler }()

	savedLeaf := p.CallstackLeaf
	trampoline := MakeTrampolineFrame(target)
	newFrame, ok := p.PushFrame(target, 0)
	if !ok {
		return "", false, ErrCstackOverflow
	}
	newFrame.Prev = trampoline
	p.CallstackLeaf = newFrame
	defer func() { p.CallstackLeaf = savedLeaf }()

	runErr := dispatch(p, target, 0, newFrame)
	if runErr == nil {
		return "", false, nil
	}
	if captured != "" {
		return captured, true, nil
	}
	if rp, ok := runErr.(*lauferrors.RuntimePanic); ok {
		return rp.Message, true, nil
	}
	return "", false, runErr
}

// branchTaken evaluates a conditional branch's signed-zero-compare family
// (spec.md §3's branch catalogue).
func branchTaken(op asm.OpCode, cond asm.Value) bool {
	switch op {
	case asm.OpBranchFalse, asm.OpBranchEq:
		return cond.AsUint() == 0
	case asm.OpBranchNe:
		return cond.AsUint() != 0
	case asm.OpBranchLt:
		return cond.AsInt() < 0
	case asm.OpBranchLe:
		return cond.AsInt() <= 0
	case asm.OpBranchGe:
		return cond.AsInt() >= 0
	case asm.OpBranchGt:
		return cond.AsInt() > 0
	default:
		return false
	}
}

// messageFromAddr resolves a panic message's address to a Go string via
// the allocation table, falling back to the address's own text form if it
// doesn't point at readable memory. A message is conventionally a
// global_addr into a const byte global.
func messageFromAddr(p *Process, addr asm.Addr) string {
	a := p.Allocations.Get(addr.Allocation())
	if a == nil || int(addr.Offset()) > len(a.Data) {
		return addr.String()
	}
	return string(a.Data[addr.Offset():])
}

func (p *Process) removeAt(idx int) error {
	n := len(p.Vstack)
	if idx < 0 || idx >= n {
		return fmt.Errorf("pop index %d out of range (depth %d)", idx, n)
	}
	at := n - 1 - idx
	p.Vstack = append(p.Vstack[:at], p.Vstack[at+1:]...)
	return nil
}

func (p *Process) pickAt(idx int) error {
	n := len(p.Vstack)
	if idx < 0 || idx >= n {
		return fmt.Errorf("pick index %d out of range (depth %d)", idx, n)
	}
	if n >= cap(p.Vstack) {
		return fmt.Errorf("value stack overflow")
	}
	p.Vstack = append(p.Vstack, p.Vstack[n-1-idx])
	return nil
}

func (p *Process) rollAt(idx int) error {
	n := len(p.Vstack)
	if idx < 0 || idx >= n {
		return fmt.Errorf("roll index %d out of range (depth %d)", idx, n)
	}
	at := n - 1 - idx
	v := p.Vstack[at]
	p.Vstack = append(p.Vstack[:at], p.Vstack[at+1:]...)
	p.Vstack = append(p.Vstack, v)
	return nil
}
