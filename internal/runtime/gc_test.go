package runtime

import (
	"encoding/binary"
	"testing"

	"github.com/lauf-vm/lauf/internal/asm"
)

func newTestProcess() *Process {
	vm := CreateVM(DefaultOptions())
	mod := asm.NewModule("gc-test")
	fn := mod.DeclareFunction("main", asm.Signature{In: 0, Out: 0})
	b := asm.NewBuilder(mod, fn)
	b.Block("entry", asm.Signature{In: 0, Out: 0})
	b.EmitReturn()
	b.Finish()
	prog, _ := asm.CreateProgram(mod, fn)
	return NewProcess(vm, prog)
}

func TestCollectFreesUnreachableHeapAllocations(t *testing.T) {
	p := newTestProcess()

	kept := p.Alloc(8)
	p.Allocations.Get(kept.Allocation()) // sanity: allocation exists

	p.Alloc(8) // unreachable, never referenced again
	p.Alloc(8) // unreachable, never referenced again

	p.Vstack = append(p.Vstack, asm.NewAddrValue(kept))

	freed := p.Collect()
	if freed != 2 {
		t.Errorf("Collect() freed %d allocations, want 2", freed)
	}
	if p.Allocations.Len() != 1 {
		t.Errorf("Allocations.Len() = %d, want 1 after trimming", p.Allocations.Len())
	}
	if data := p.CheckedOffset(kept, 8, 0); data == nil {
		t.Error("the reachable allocation should still validate after Collect")
	}
}

func TestCollectSparesRootAllocations(t *testing.T) {
	p := newTestProcess()

	root := p.Alloc(8)
	p.DeclareReachable(root)

	freed := p.Collect()
	if freed != 0 {
		t.Errorf("Collect() freed %d allocations, want 0 (root-declared)", freed)
	}
	if data := p.CheckedOffset(root, 8, 0); data == nil {
		t.Error("a DeclareReachable allocation should survive Collect even off the vstack")
	}
}

func TestCollectDoesNotTreatWeakAllocationsAsRoots(t *testing.T) {
	p := newTestProcess()

	weak := p.Alloc(8)
	p.DeclareWeak(weak)
	p.Vstack = append(p.Vstack, asm.NewAddrValue(weak))

	// A weak allocation is explicitly excluded from being traced as a
	// root even when a live value still points at it.
	freed := p.Collect()
	if freed != 1 {
		t.Errorf("Collect() freed %d allocations, want 1 (weak allocation not a root)", freed)
	}
}

// TestCollectTracesAddressEmbeddedInFrameLocal covers spec.md's conservative
// trace requirement directly: a heap allocation referenced only through the
// bytes of a local_alloc'd local (never itself pushed to the vstack) must
// survive Collect.
func TestCollectTracesAddressEmbeddedInFrameLocal(t *testing.T) {
	p := newTestProcess()

	target := p.Alloc(8) // would be unreachable if nothing points at it

	// Link a trampoline under the frame, as vm.run does, so the pushed
	// frame is a live call frame rather than the bottom of the chain.
	p.CallstackLeaf = MakeTrampolineFrame(p.Program.Entry)
	if _, ok := p.PushFrame(p.Program.Entry, 0); !ok {
		t.Fatal("PushFrame() failed")
	}
	local := p.NewLocalAlloc(8)
	data := p.CheckedOffset(local, 8, 0)
	if data == nil {
		t.Fatal("CheckedOffset() on a fresh local = nil")
	}
	binary.LittleEndian.PutUint64(data, asm.NewAddrValue(target).Bits())

	// Nothing on the vstack points at target; only the local's own bytes do.
	freed := p.Collect()
	if freed != 0 {
		t.Errorf("Collect() freed %d allocations, want 0 (target is reachable via the local's bytes)", freed)
	}
	if data := p.CheckedOffset(target, 8, 0); data == nil {
		t.Error("target should survive Collect: its address is embedded in a live frame's local")
	}
}

// TestCollectTracesTransitivelyThroughHeapAllocation covers the work-list
// half of the conservative trace: an allocation reachable only through
// another already-marked heap allocation's own bytes (not directly from the
// vstack or a frame) must also survive.
func TestCollectTracesTransitivelyThroughHeapAllocation(t *testing.T) {
	p := newTestProcess()

	tail := p.Alloc(8)
	head := p.Alloc(8)
	data := p.CheckedOffset(head, 8, 0)
	if data == nil {
		t.Fatal("CheckedOffset() on head = nil")
	}
	binary.LittleEndian.PutUint64(data, asm.NewAddrValue(tail).Bits())

	p.Vstack = append(p.Vstack, asm.NewAddrValue(head))

	freed := p.Collect()
	if freed != 0 {
		t.Errorf("Collect() freed %d allocations, want 0 (tail is reachable transitively through head)", freed)
	}
	if data := p.CheckedOffset(tail, 8, 0); data == nil {
		t.Error("tail should survive Collect: it's only reachable through head's own bytes")
	}
}

func TestVstackSnapshotOrdersTopFirst(t *testing.T) {
	p := newTestProcess()
	p.Vstack = append(p.Vstack, asm.NewUint(1), asm.NewUint(2), asm.NewUint(3))

	snap := p.VstackSnapshot()
	want := []uint64{3, 2, 1}
	if len(snap) != len(want) {
		t.Fatalf("len(snap) = %d, want %d", len(snap), len(want))
	}
	for i, w := range want {
		if got := snap[i].AsUint(); got != w {
			t.Errorf("snap[%d] = %d, want %d", i, got, w)
		}
	}
}
