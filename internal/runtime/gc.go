package runtime

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/lauf-vm/lauf/internal/asm"
)

// DeclareReachable marks the allocation at addr as a GC root regardless of
// whether any live value still points at it, for a builtin handing out a
// handle the vstack doesn't directly carry (spec.md §4.4, grounded on
// lauf_runtime_declare_reachable).
func (p *Process) DeclareReachable(addr asm.Addr) bool {
	a := p.Allocations.Get(addr.Allocation())
	if a == nil {
		return false
	}
	a.Root = true
	return true
}

// UndeclareReachable clears a previous DeclareReachable.
func (p *Process) UndeclareReachable(addr asm.Addr) bool {
	a := p.Allocations.Get(addr.Allocation())
	if a == nil {
		return false
	}
	a.Root = false
	return true
}

// DeclareWeak excludes the allocation at addr from GC tracing: a value or
// another allocation pointing at it does not keep it alive (only
// DeclareReachable does), and the collector never follows pointers found
// inside it (spec.md §4.4's Open Question
// resolution: a weak allocation is not a root, and is not traced through).
func (p *Process) DeclareWeak(addr asm.Addr) bool {
	a := p.Allocations.Get(addr.Allocation())
	if a == nil {
		return false
	}
	a.Weak = true
	return true
}

// UndeclareWeak clears a previous DeclareWeak.
func (p *Process) UndeclareWeak(addr asm.Addr) bool {
	a := p.Allocations.Get(addr.Allocation())
	if a == nil {
		return false
	}
	a.Weak = false
	return true
}

// VstackSnapshot returns a copy of the current value stack, top first, for
// lauf.debug.print_vstack.
func (p *Process) VstackSnapshot() []asm.Value {
	out := make([]asm.Value, len(p.Vstack))
	for i, v := range p.Vstack {
		out[len(out)-1-i] = v
	}
	return out
}

// CallstackNames returns the executing function names from the leaf frame
// down to (excluding) the trampoline, for lauf.debug.print_cstack.
func (p *Process) CallstackNames() []string {
	var names []string
	for f := p.CallstackLeaf; f != nil && !f.IsTrampolineFrame(); f = f.Prev {
		names = append(names, f.Function.Name)
	}
	return names
}

// Collect runs one conservative mark-sweep pass to full transitive
// closure: allocations reachable from the vstack, from any live frame's
// locals (scanned for embedded addresses, not just ones the frame itself
// pushed to the vstack), from an explicit DeclareReachable root, or
// transitively from the bytes of any allocation already found reachable,
// are kept; everything else backed by SourceHeap is freed. Static and
// local allocations are never swept here -- locals are released
// explicitly by local_free or a frame's return, and statics live for the
// program's whole run.
//
// "Conservative" means a Value is treated as a potential address and
// scanned for a match against a live allocation index whenever its bit
// pattern decodes to one, the same discipline the original's
// mark_reachable/process_reachable_memory uses scanning raw machine
// words: false positives (an integer that happens to look like an
// address) only cost a wasted mark, never an incorrect free.
func (p *Process) Collect() int {
	reachable := make(map[uint32]bool, p.Allocations.Len())
	var worklist []uint32

	mark := func(v asm.Value) {
		addr := v.AsAddr()
		if addr.IsNull() {
			return
		}
		idx := addr.Allocation()
		a := p.Allocations.Get(idx)
		if a == nil || a.Status != StatusAllocated || a.Weak || reachable[idx] {
			return
		}
		reachable[idx] = true
		worklist = append(worklist, idx)
	}

	// Treat an allocation's bytes as an array of 64-bit words and mark
	// whichever ones decode to another live allocation, the same
	// word-at-a-time scan process_reachable_memory does over raw machine
	// words.
	scanBytes := func(data []byte) {
		for off := 0; off+8 <= len(data); off += 8 {
			mark(asm.NewValue(binary.LittleEndian.Uint64(data[off : off+8])))
		}
	}

	for _, v := range p.Vstack {
		mark(v)
	}

	// Every live frame's own locals are scanned for embedded addresses,
	// not just ones a local_addr happened to push to the vstack -- a local
	// never addressed directly can still hold the only live pointer to a
	// heap object. Frames nest strictly, so walking the chain from the
	// leaf back to (excluding) the trampoline and narrowing the upper
	// bound to each frame's own FirstLocalAlloc visits each local
	// allocation exactly once, under the frame that actually owns it.
	bound := uint32(p.Allocations.Len())
	for f := p.CallstackLeaf; f != nil && !f.IsTrampolineFrame(); f = f.Prev {
		for i := f.FirstLocalAlloc; i < bound; i++ {
			if a := p.Allocations.Get(i); a != nil && a.Status == StatusAllocated {
				scanBytes(a.Data)
			}
		}
		bound = f.FirstLocalAlloc
	}

	for i := 0; i < p.Allocations.Len(); i++ {
		idx := uint32(i)
		if a := p.Allocations.Get(idx); a != nil && a.Root && a.Status == StatusAllocated && !reachable[idx] {
			reachable[idx] = true
			worklist = append(worklist, idx)
		}
	}

	// Recursively mark everything reachable from an already-reachable
	// allocation's own contents, to full transitive closure.
	for len(worklist) > 0 {
		idx := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if a := p.Allocations.Get(idx); a != nil && !a.Weak {
			scanBytes(a.Data)
		}
	}

	freed := 0
	for i := 0; i < p.Allocations.Len(); i++ {
		a := p.Allocations.Get(uint32(i))
		if a == nil || a.Status != StatusAllocated || a.Source != SourceHeap {
			continue
		}
		if !reachable[uint32(i)] {
			p.Allocations.Free(uint32(i))
			freed++
		}
	}
	p.Allocations.TrimFreed()
	logger.Debug("gc collect",
		zap.Int("freed", freed),
		zap.Int("reachable", len(reachable)),
		zap.Int("live", p.Allocations.Len()),
	)
	return freed
}
