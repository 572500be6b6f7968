package runtime

import (
	"go.uber.org/atomic"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

// Options configures a VM, mirroring lauf_vm_options (spec.md §6
// create_vm): stack sizes, the cooperative step budget, and the panic
// handler a process falls back to when none is set on it directly.
type Options struct {
	CstackBytes    int
	VstackElements int
	StepLimit      uint64
	PanicHandler   func(p *Process, message string)
	Builtins       *abi.Table
	// HeapPageBytes sizes the page allocator backing large heap
	// allocations (internal/pkg's [heap] page_bytes); 0 disables it and
	// every heap allocation goes through the Go heap instead.
	HeapPageBytes int
}

// DefaultOptions matches the VM's built-in defaults. internal/pkg's
// DefaultVMConfig mirrors the stack sizes and step limit for the lauf.toml
// file format; HeapPageBytes stays 0 here, so the page allocator is off.
func DefaultOptions() Options {
	return Options{
		CstackBytes:    1 << 20,
		VstackElements: 4096,
		StepLimit:      0,
		PanicHandler:   DefaultPanicHandler,
	}
}

// VM is a reusable execution context: its stack sizes, step limit, panic
// handler and builtins are set once and apply to every vm_execute call.
// Each call runs on a fresh Process that allocates its own stacks.
type VM struct {
	CstackBytes    int
	VstackElements int
	StepLimit      uint64
	PanicHandler   func(p *Process, message string)
	Builtins       *abi.Table
	PageAllocator  *PageAllocator

	// totalSteps and peakAllocations are process-wide counters exposed via
	// Stats for a host's monitoring loop; go.uber.org/atomic keeps them
	// safe to read concurrently with an in-flight vm_execute even though
	// lauf itself runs one process per goroutine at a time.
	totalSteps      *atomic.Uint64
	peakAllocations *atomic.Uint64
}

// CreateVM builds a VM from opts (lauf_create_vm), creating its page
// allocator when opts.HeapPageBytes is positive.
func CreateVM(opts Options) *VM {
	if opts.PanicHandler == nil {
		opts.PanicHandler = DefaultPanicHandler
	}
	vm := &VM{
		CstackBytes:     opts.CstackBytes,
		VstackElements:  opts.VstackElements,
		StepLimit:       opts.StepLimit,
		PanicHandler:    opts.PanicHandler,
		Builtins:        opts.Builtins,
		totalSteps:      atomic.NewUint64(0),
		peakAllocations: atomic.NewUint64(0),
	}
	if opts.HeapPageBytes > 0 {
		vm.PageAllocator = NewPageAllocator(opts.HeapPageBytes)
	}
	return vm
}

// DestroyVM releases a VM's resources: it unmaps the blocks cached by the
// VM's page allocator, if it has one. Everything else a VM holds is
// ordinary Go memory the garbage collector reclaims once vm is
// unreferenced.
func DestroyVM(vm *VM) {
	if vm.PageAllocator != nil {
		_ = vm.PageAllocator.Release()
	}
}

// Stats reports the VM's lifetime step and peak-allocation counters.
// TotalSteps only counts runs made with a non-zero StepLimit: after each
// successful run it adds StepLimit minus the process's remaining step
// budget. A run that ends in an error adds nothing to either counter.
type Stats struct {
	TotalSteps      uint64
	PeakAllocations uint64
}

func (vm *VM) Stats() Stats {
	return Stats{
		TotalSteps:      vm.totalSteps.Load(),
		PeakAllocations: vm.peakAllocations.Load(),
	}
}

// Execute runs prog's entry function to completion on a fresh Process,
// returning the values left on the vstack or the panic that stopped it
// (lauf_vm_execute).
func (vm *VM) Execute(prog *asm.Program, args []asm.Value) ([]asm.Value, error) {
	p := NewProcess(vm, prog)
	return vm.run(p, prog.Entry, args)
}

// ExecuteOneshot runs prog once on a throwaway VM, skipping the reusable
// VM entirely (lauf_vm_execute_oneshot) — the cheap path for a host that
// only ever runs a program once. It sizes that VM's stacks from the
// default budget rather than prog.Entry's own declared depth: the entry
// function's MaxVstack/MaxCstack only bound what it pushes itself, not
// the transient depth anything it calls in turn adds on top, so the
// original doesn't special-size this path either (lauf_vm_execute_oneshot
// just runs on whatever stacks the VM it's given already has).
func ExecuteOneshot(prog *asm.Program, args []asm.Value) ([]asm.Value, error) {
	vm := CreateVM(DefaultOptions())
	return vm.Execute(prog, args)
}

func (vm *VM) run(p *Process, entry *asm.Function, args []asm.Value) ([]asm.Value, error) {
	for _, a := range args {
		if !p.PushVstack(a) {
			return nil, ErrVstackOverflow
		}
	}

	trampoline := MakeTrampolineFrame(entry)
	frame, ok := p.PushFrame(entry, -1)
	if !ok {
		return nil, ErrCstackOverflow
	}
	frame.Prev = trampoline
	p.CallstackLeaf = frame

	if err := dispatch(p, entry, 0, frame); err != nil {
		return nil, err
	}

	vm.totalSteps.Add(vm.StepLimit - p.RemainingSteps)
	if n := uint64(p.Allocations.Len()); n > vm.peakAllocations.Load() {
		vm.peakAllocations.Store(n)
	}

	out := make([]asm.Value, len(p.Vstack))
	copy(out, p.Vstack)
	return out, nil
}
