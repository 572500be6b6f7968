package runtime

import (
	"fmt"

	"github.com/lauf-vm/lauf/internal/asm"
)

// frameHeaderBytes approximates the fixed portion of a call stack frame
// when checking the configured cstack budget, standing in for
// sizeof(lauf_runtime_stack_frame) in the original. Go frames are heap
// objects rather than raw bytes, so this is a budget accounting constant,
// not a real struct size.
const frameHeaderBytes = 32

// Frame is one call stack entry (spec.md §4.3's stack frame, grounded on
// lauf_runtime_stack_frame): the executing function, where to resume the
// caller, and the slice of the allocation table this call's local_allocs
// own.
type Frame struct {
	Function *asm.Function
	ReturnIP int

	FirstLocalAlloc uint32
	LocalGeneration uint8
	NextOffset      uint32

	Prev *Frame
}

// IsTrampolineFrame reports whether f is the synthetic bottom frame
// created by vm_execute, never a real call (Prev == nil).
func (f *Frame) IsTrampolineFrame() bool { return f.Prev == nil }

// IsRootFrame reports whether f is the entry function's own frame, i.e.
// its caller is the trampoline.
func (f *Frame) IsRootFrame() bool { return f.Prev != nil && f.Prev.IsTrampolineFrame() }

// MakeTrampolineFrame builds the synthetic frame vm_execute starts with,
// so that the entry function's own Return pops into a well-defined
// terminal state instead of a nil pointer (lauf_runtime_stack_frame::
// make_trampoline_frame).
func MakeTrampolineFrame(fn *asm.Function) *Frame {
	return &Frame{Function: fn, NextOffset: frameHeaderBytes}
}

// MakeCallFrame builds the frame for a call to callee, capturing the
// allocation table's current high-water mark as the index its first
// local_alloc will land at (lauf_runtime_stack_frame::make_call_frame).
func MakeCallFrame(callee *asm.Function, p *Process, returnIP int, prev *Frame) *Frame {
	return &Frame{
		Function:        callee,
		ReturnIP:        returnIP,
		FirstLocalAlloc: uint32(p.Allocations.Len()),
		LocalGeneration: p.Allocations.Generation(),
		NextOffset:      frameHeaderBytes,
		Prev:            prev,
	}
}

// Process is one execution of a Program: its value stack, its call stack
// (modeled as a Frame chain plus a byte budget rather than a raw arena,
// since Go frames are ordinary heap values), its allocation table, and
// the program being run (spec.md §4.3 "Process", grounded on
// lauf_runtime_process).
type Process struct {
	VM      *VM
	Program *asm.Program

	Vstack []asm.Value // top of stack is the last element

	CstackUsed  int
	CstackLimit int

	CallstackLeaf *Frame

	Allocations *AllocationTable
	RemainingSteps uint64
	StepLimited    bool

	PanicHandler func(p *Process, message string)
}

// NewProcess creates a process ready to run prog under vm's configured
// stack sizes and step budget.
func NewProcess(vm *VM, prog *asm.Program) *Process {
	p := &Process{
		VM:          vm,
		Program:     prog,
		Vstack:      make([]asm.Value, 0, vm.VstackElements),
		CstackLimit: vm.CstackBytes,
		Allocations: NewAllocationTable(),
		RemainingSteps: vm.StepLimit,
		StepLimited:    vm.StepLimit > 0,
		PanicHandler:   vm.PanicHandler,
	}
	p.seedGlobals(prog)
	return p
}

// seedGlobals materializes every global of prog's base module as an
// allocation, in declaration order, so a global_addr instruction's
// module-relative index lines up with the allocation table's index
// (OpGlobalAddr packs that index directly with generation 0). A global a
// host defined natively (DefineNativeGlobal) gets that backing storage
// instead of the module's own data/zero-init.
func (p *Process) seedGlobals(prog *asm.Program) {
	for _, g := range prog.Base.Globals() {
		data := g.Data
		if ng, ok := prog.NativeGlobal(g); ok {
			data = ng.Data
		}
		if data == nil {
			data = make([]byte, g.Size)
		}
		source := SourceStaticConst
		if g.Perms == asm.ReadWrite {
			source = SourceStaticMut
		}
		p.Allocations.Add(data, source)
	}
}

// PushVstack pushes v onto the value stack, reporting false on overflow
// (spec.md §4.4 "Value stack overflow").
func (p *Process) PushVstack(v asm.Value) bool {
	if len(p.Vstack) >= cap(p.Vstack) {
		return false
	}
	p.Vstack = append(p.Vstack, v)
	return true
}

// PopVstack removes and returns the top value, reporting false if empty.
func (p *Process) PopVstack() (asm.Value, bool) {
	n := len(p.Vstack)
	if n == 0 {
		return asm.Value{}, false
	}
	v := p.Vstack[n-1]
	p.Vstack = p.Vstack[:n-1]
	return v, true
}

// PushFrame accounts callee's frame against the cstack byte budget and
// links it in as the new callstack leaf, reporting false on overflow
// (spec.md §4.4 "Call stack overflow").
func (p *Process) PushFrame(callee *asm.Function, returnIP int) (*Frame, bool) {
	need := frameHeaderBytes + callee.MaxCstack
	if p.CstackUsed+need > p.CstackLimit {
		return nil, false
	}
	f := MakeCallFrame(callee, p, returnIP, p.CallstackLeaf)
	p.CstackUsed += need
	p.CallstackLeaf = f
	return f, true
}

// PopFrame unwinds the current leaf frame back to its caller, releasing
// its share of the cstack budget and freeing every local allocation the
// frame still owns (spec.md §4.3: "When a frame returns, its locals are
// marked freed" — all at once, not only the ones an explicit local_free
// already covered).
func (p *Process) PopFrame() {
	if p.CallstackLeaf == nil {
		return
	}
	p.FreeFrameLocals(p.CallstackLeaf.FirstLocalAlloc)
	p.CstackUsed -= frameHeaderBytes + p.CallstackLeaf.Function.MaxCstack
	p.CallstackLeaf = p.CallstackLeaf.Prev
}

// FreeFrameLocals marks every allocation from first through the table's
// current end as freed and trims the table's trailing freed entries. Calls
// nest strictly (a frame only returns after every frame it called already
// has), so at the moment a frame unwinds, everything from its own
// FirstLocalAlloc to Allocations.Len() is exactly its own locals, not a
// nested callee's.
func (p *Process) FreeFrameLocals(first uint32) {
	n := uint32(p.Allocations.Len())
	for i := first; i < n; i++ {
		p.Allocations.Free(i)
	}
	p.Allocations.TrimFreed()
}

// NewLocalAlloc reserves size bytes of local memory for the current frame,
// registers it in the allocation table, and returns its address
// (spec.md §4.4 local_alloc).
func (p *Process) NewLocalAlloc(size int) asm.Addr {
	data := make([]byte, size)
	gen := p.CallstackLeaf.LocalGeneration
	addr := p.Allocations.Add(data, SourceLocal)
	return asm.PackAddr(addr.Allocation(), gen&0b11, 0)
}

// FreeLocalAllocs marks the most recently created count local allocations
// as freed and trims the table's trailing freed entries (local_free).
func (p *Process) FreeLocalAllocs(count int) {
	n := p.Allocations.Len()
	for i := 0; i < count && n-1-i >= 0; i++ {
		p.Allocations.Free(uint32(n - 1 - i))
	}
	p.Allocations.TrimFreed()
}

// Step consumes one unit of the cooperative step budget, reporting false
// once it's exhausted (spec.md §4.4 "step-limit cooperative cancellation").
func (p *Process) Step() bool {
	if !p.StepLimited {
		return true
	}
	if p.RemainingSteps == 0 {
		return false
	}
	p.RemainingSteps--
	return true
}

// ConsumeStep is Step under the name lauf.limits.step calls through
// abi.Host's dynamic interface lookup.
func (p *Process) ConsumeStep() bool { return p.Step() }

// SetStepLimit tightens the remaining step budget; it refuses to raise an
// already-limited process's budget, matching lauf_runtime_set_step_limit's
// one-directional contract (lauf.limits.set_step_limit may only shrink).
func (p *Process) SetStepLimit(limit uint64) bool {
	if p.StepLimited && limit > p.RemainingSteps {
		return false
	}
	p.RemainingSteps = limit
	p.StepLimited = true
	return true
}

// CheckedOffset implements abi.Host for builtins that dereference a
// memory address.
func (p *Process) CheckedOffset(addr asm.Addr, size int, alignLog2 uint8) []byte {
	return p.Allocations.CheckedOffset(addr, size, alignLog2)
}

// Alloc implements abi.Host for builtins that allocate heap memory
// (e.g. lauf.heap.alloc). Requests large enough to be worth a page,
// when the VM was configured with one, come from the mmap-backed
// PageAllocator instead of the Go heap.
func (p *Process) Alloc(size int) asm.Addr {
	if pa := p.VM.PageAllocator; pa != nil && size >= pa.pageSize {
		if block, err := pa.Allocate(pa.PageCountFor(size)); err == nil {
			return p.Allocations.Add(block[:size], SourceHeap)
		}
	}
	return p.Allocations.Add(make([]byte, size), SourceHeap)
}

// FreeHeapAlloc releases a SourceHeap allocation explicitly, for
// lauf.heap.free. Freeing anything else (a local, a static, an
// already-freed allocation) is rejected rather than silently ignored.
func (p *Process) FreeHeapAlloc(addr asm.Addr) error {
	a := p.Allocations.Get(addr.Allocation())
	if a == nil || a.Status != StatusAllocated {
		return fmt.Errorf("free of invalid allocation")
	}
	if a.Source != SourceHeap {
		return fmt.Errorf("free of non-heap allocation")
	}
	p.Allocations.Free(addr.Allocation())
	p.Allocations.TrimFreed()
	return nil
}
